// Package resolver turns handles and scanned strings into ledger addresses.
package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/logger"
)

type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnverified Status = "unverified"
	StatusTooShort   Status = "too_short"
	StatusInvalid    Status = "invalid"
)

const DefaultMinLength = 3

// HandleLookup is the backend handle lookup.
type HandleLookup interface {
	ResolveHandle(ctx context.Context, handle string) (*api.HandleResponse, error)
}

// NameSource supplies locally saved display names.
type NameSource interface {
	SavedName(address string) (string, bool)
}

// Result is the outcome of one resolution. Seq is the issuance number for
// results produced through Submit.
type Result struct {
	Seq         uint64
	Input       string
	Handle      string
	Address     string
	DisplayName string
	Status      Status
	Err         error
}

func (r Result) OK() bool { return r.Status == StatusResolved }

type Option func(*Resolver)

func WithMinLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minLength = n
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) { r.debounce = d }
}

func WithNames(names NameSource) Option {
	return func(r *Resolver) { r.names = names }
}

type Resolver struct {
	lookup    HandleLookup
	names     NameSource
	minLength int
	debounce  time.Duration

	mu       sync.Mutex
	issued   uint64
	latest   Result
	cancel   context.CancelFunc
	onResult func(Result)
	wg       sync.WaitGroup
}

func New(lookup HandleLookup, options ...Option) *Resolver {
	r := &Resolver{lookup: lookup, minLength: DefaultMinLength}
	for _, option := range options {
		option(r)
	}
	return r
}

// OnResult registers fn to receive every result that becomes Latest.
func (r *Resolver) OnResult(fn func(Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResult = fn
}

// Resolve resolves input immediately. Unknown handles come back as
// StatusUnverified with a nil error; only transport failures return an error.
func (r *Resolver) Resolve(ctx context.Context, input string) (Result, error) {
	res := Result{Input: input}
	trimmed := strings.TrimPrefix(strings.TrimSpace(input), "@")
	if len(trimmed) < r.minLength {
		res.Status = StatusTooShort
		return res, nil
	}

	scanned, err := ParseScanned(input)
	if err != nil {
		res.Status = StatusInvalid
		res.Err = err
		return res, nil
	}

	if scanned.IsAddress {
		res.Address = scanned.Recipient
		res.DisplayName = r.displayName(scanned.Recipient, scanned.Label)
		res.Status = StatusResolved
		return res, nil
	}

	res.Handle = scanned.Recipient
	resp, err := r.lookup.ResolveHandle(ctx, scanned.Recipient)
	if err != nil {
		if api.IsNotFound(err) {
			res.Status = StatusUnverified
			return res, nil
		}
		res.Err = err
		return res, err
	}
	if resp == nil || !IsAddress(resp.Wallet) {
		res.Status = StatusUnverified
		return res, nil
	}

	res.Address = resp.Wallet
	res.DisplayName = r.displayName(resp.Wallet, "@"+LocalPart(scanned.Recipient))
	res.Status = StatusResolved
	return res, nil
}

func (r *Resolver) displayName(address, fallback string) string {
	if r.names != nil {
		if name, ok := r.names.SavedName(address); ok {
			return name
		}
	}
	if fallback != "" {
		return fallback
	}
	return logger.ShortAddress(address)
}

// Submit schedules a debounced resolution and returns its sequence number. Any
// earlier in-flight request is cancelled, and its result is dropped even if it
// finishes later.
func (r *Resolver) Submit(ctx context.Context, input string) uint64 {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.issued++
	seq := r.issued
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()

		if r.debounce > 0 {
			timer := time.NewTimer(r.debounce)
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		res, err := r.Resolve(runCtx, input)
		res.Seq = seq
		if err != nil && errors.Is(err, context.Canceled) && !r.isLatest(seq) {
			return
		}
		r.apply(res)
	}()
	return seq
}

func (r *Resolver) isLatest(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return seq == r.issued
}

func (r *Resolver) apply(res Result) {
	r.mu.Lock()
	if res.Seq != r.issued {
		r.mu.Unlock()
		logger.DebugCF("resolver", "Dropping superseded result", map[string]any{
			"input": res.Input,
			"seq":   res.Seq,
		})
		return
	}
	r.latest = res
	fn := r.onResult
	r.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

// Latest returns the result of the most recently issued request that has completed.
func (r *Resolver) Latest() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Wait blocks until every submitted resolution has finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
