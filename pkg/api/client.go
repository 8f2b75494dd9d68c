// Package api talks to the MonoPay backend over HTTP/JSON.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sipeed/monopay/pkg/logger"
)

const (
	DefaultTimeout = 10 * time.Second
	userIDHeader   = "x-user-id"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// Client is the backend request wrapper. Every call is bounded by a fixed timeout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	timeout    time.Duration
}

func NewClient(baseURL, userID string, options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userID:     userID,
		timeout:    DefaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Do sends body (if non-nil) as JSON and decodes a 2xx response into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(userIDHeader, c.userID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			logger.WarnCF("api", "Request timed out", map[string]any{
				"method": method,
				"path":   path,
			})
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return &NetworkError{Method: method, Path: path, Err: err}
	}

	logger.DebugCF("api", "Request completed", map[string]any{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(method, path, resp, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func parseHTTPError(method, path string, resp *http.Response, raw []byte) *HTTPError {
	he := &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path}

	var envelope errorEnvelope
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		he.Code = envelope.Error.Code
		he.Message = envelope.Error.Message
		return he
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 512 {
		he.Message = text
		return he
	}
	he.Message = resp.Status
	if he.Message == "" {
		he.Message = http.StatusText(resp.StatusCode)
	}
	return he
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
