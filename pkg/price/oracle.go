// Package price sizes payments by converting INR to the payment token.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/logger"
)

const (
	DefaultFallbackRate = 15000.0
	DefaultUSDINR       = 83.5
	DefaultQuoteTTL     = 30 * time.Second

	SourceMarket   = "market"
	SourceBackend  = "backend"
	SourceFallback = "fallback"
)

// Quote is a time-bounded INR-per-token rate.
type Quote struct {
	Rate      float64
	Source    string
	AsOf      time.Time
	ExpiresAt time.Time
}

func (q Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// InrToToken converts with this quote's rate.
func (q Quote) InrToToken(inr float64) float64 {
	if q.Rate <= 0 {
		return 0
	}
	return inr / q.Rate
}

func (q Quote) TokenToInr(amount float64) float64 {
	return amount * q.Rate
}

// BackendQuoter is the backend's quote endpoint.
type BackendQuoter interface {
	Quote(ctx context.Context, asset string, inr float64) (*api.QuoteResponse, error)
}

type Option func(*Oracle)

func WithHTTPClient(hc *http.Client) Option {
	return func(o *Oracle) { o.httpClient = hc }
}

func WithBackend(b BackendQuoter, asset string) Option {
	return func(o *Oracle) {
		o.backend = b
		o.asset = asset
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithUSDINR(v float64) Option {
	return func(o *Oracle) {
		if v > 0 {
			o.usdINR = v
		}
	}
}

func WithFallbackRate(v float64) Option {
	return func(o *Oracle) {
		if v > 0 {
			o.fallback = v
		}
	}
}

// Oracle fetches a market USD price and scales it to INR. It never fails:
// any fetch or parse error yields the fallback rate.
type Oracle struct {
	httpClient *http.Client
	sourceURL  string
	usdINR     float64
	fallback   float64
	ttl        time.Duration
	backend    BackendQuoter
	asset      string
	group      singleflight.Group
	now        func() time.Time
}

func NewOracle(sourceURL string, options ...Option) *Oracle {
	o := &Oracle{
		httpClient: &http.Client{Timeout: api.DefaultTimeout},
		sourceURL:  sourceURL,
		usdINR:     DefaultUSDINR,
		fallback:   DefaultFallbackRate,
		ttl:        DefaultQuoteTTL,
		now:        time.Now,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// GetRate returns INR per token.
func (o *Oracle) GetRate(ctx context.Context) float64 {
	return o.Quote(ctx, 0).Rate
}

func (o *Oracle) InrToToken(ctx context.Context, inr float64) float64 {
	return o.Quote(ctx, inr).InrToToken(inr)
}

func (o *Oracle) TokenToInr(ctx context.Context, amount float64) float64 {
	return o.Quote(ctx, 0).TokenToInr(amount)
}

// Quote composes a fresh quote. Concurrent callers share one in-flight fetch.
// inr is passed to the backend quote endpoint when one is configured.
func (o *Oracle) Quote(ctx context.Context, inr float64) Quote {
	key := strconv.FormatFloat(inr, 'f', -1, 64)
	v, _, _ := o.group.Do(key, func() (any, error) {
		return o.compose(ctx, inr), nil
	})
	return v.(Quote)
}

func (o *Oracle) compose(ctx context.Context, inr float64) Quote {
	now := o.now()

	if o.backend != nil {
		q, err := o.fromBackend(ctx, inr, now)
		if err == nil {
			return q
		}
		logger.WarnCF("price", "Backend quote unavailable, using market source", map[string]any{
			"error": err.Error(),
		})
	}

	usd, err := o.fetchUSD(ctx)
	if err != nil {
		logger.WarnCF("price", "Price source unavailable, using fallback rate", map[string]any{
			"error":    err.Error(),
			"fallback": o.fallback,
		})
		return Quote{Rate: o.fallback, Source: SourceFallback, AsOf: now, ExpiresAt: now.Add(o.ttl)}
	}
	return Quote{Rate: usd * o.usdINR, Source: SourceMarket, AsOf: now, ExpiresAt: now.Add(o.ttl)}
}

func (o *Oracle) fromBackend(ctx context.Context, inr float64, now time.Time) (Quote, error) {
	resp, err := o.backend.Quote(ctx, o.asset, inr)
	if err != nil {
		return Quote{}, err
	}
	rate, err := strconv.ParseFloat(resp.Rate, 64)
	if err != nil || rate <= 0 {
		return Quote{}, fmt.Errorf("invalid backend rate %q", resp.Rate)
	}
	q := Quote{Rate: rate, Source: SourceBackend, AsOf: resp.AsOf, ExpiresAt: resp.ExpiresAt}
	if q.AsOf.IsZero() {
		q.AsOf = now
	}
	if q.ExpiresAt.IsZero() {
		q.ExpiresAt = now.Add(o.ttl)
	}
	return q, nil
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (o *Oracle) fetchUSD(ctx context.Context) (float64, error) {
	if o.sourceURL == "" {
		return 0, fmt.Errorf("no price source configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.sourceURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price source returned %s", resp.Status)
	}
	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("failed to decode price: %w", err)
	}
	usd, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || usd <= 0 {
		return 0, fmt.Errorf("invalid price %q", ticker.Price)
	}
	return usd, nil
}
