package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sipeed/monopay/pkg/logger"
)

// EnrollPin registers the PIN with the backend so the session path can
// verify it.
func (c *Client) EnrollPin(ctx context.Context, pin string) (*EnrollPinResponse, error) {
	var out EnrollPinResponse
	if err := c.Do(ctx, http.MethodPost, "/pin/enroll", EnrollPinRequest{PIN: pin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyPin(ctx context.Context, pin string) (*PinVerifyResponse, error) {
	var out PinVerifyResponse
	if err := c.Do(ctx, http.MethodPost, "/pin/verify", PinVerifyRequest{PIN: pin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentSession returns nil, nil when the backend has no session for this user.
func (c *Client) CurrentSession(ctx context.Context) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.Do(ctx, http.MethodGet, "/sessions/current", nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.Do(ctx, http.MethodPost, "/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Quote(ctx context.Context, asset string, inr float64) (*QuoteResponse, error) {
	path := fmt.Sprintf("/quotes/%s?inr=%s", url.PathEscape(strings.ToLower(asset)), strconv.FormatFloat(inr, 'f', -1, 64))
	var out QuoteResponse
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentCreateRequest) (*PaymentIntentCreateResponse, error) {
	var out PaymentIntentCreateResponse
	if err := c.Do(ctx, http.MethodPost, "/payment-intents", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExecutePaymentIntent(ctx context.Context, id string, req ExecuteIntentRequest) (*ExecuteIntentResponse, error) {
	var out ExecuteIntentResponse
	path := "/payment-intents/" + url.PathEscape(id) + "/execute"
	if err := c.Do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentStatusResponse, error) {
	var out PaymentIntentStatusResponse
	if err := c.Do(ctx, http.MethodGet, "/payment-intents/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RegisterHandle(ctx context.Context, handle, wallet string) (*HandleResponse, error) {
	var out HandleResponse
	if err := c.Do(ctx, http.MethodPost, "/handles", UpsertHandleRequest{Handle: handle, Wallet: wallet}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResolveHandle(ctx context.Context, handle string) (*HandleResponse, error) {
	var out HandleResponse
	if err := c.Do(ctx, http.MethodGet, "/handles/"+url.PathEscape(handle), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitIntent polls an intent until it reaches a terminal status or ctx ends.
// Transient errors are retried; HTTP 4xx responses stop polling.
func (c *Client) WaitIntent(ctx context.Context, id string, maxInterval time.Duration) (*PaymentIntentStatusResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	if maxInterval > 0 {
		policy.MaxInterval = maxInterval
	}
	policy.MaxElapsedTime = 0

	var last *PaymentIntentStatusResponse
	operation := func() error {
		status, err := c.GetPaymentIntent(ctx, id)
		if err != nil {
			var he *HTTPError
			if errors.As(err, &he) && he.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		last = status
		if !status.Terminal() {
			return fmt.Errorf("intent %s still %s", id, status.Status)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.DebugCF("api", "Intent not settled, polling again", map[string]any{
			"intent": id,
			"wait":   wait.String(),
			"reason": err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		if ctx.Err() != nil && last != nil {
			return last, ctx.Err()
		}
		return last, err
	}
	return last, nil
}
