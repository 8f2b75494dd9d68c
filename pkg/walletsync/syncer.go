// Package walletsync keeps the active wallet's balance and recent activity fresh.
package walletsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sipeed/monopay/pkg/blockchain"
	"github.com/sipeed/monopay/pkg/logger"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultSignatureLimit = 5
	DefaultDetailDelay    = 200 * time.Millisecond
)

// ErrStale is returned by RunOnce when the active wallet changed mid-run.
var ErrStale = errors.New("walletsync: wallet switched during run")

// ErrBusy is returned by RunOnce when another run is in progress.
var ErrBusy = errors.New("walletsync: run in progress")

// Ledger is the read side of the ledger client.
type Ledger interface {
	GetBalance(ctx context.Context, address string) (*blockchain.BalanceInfo, error)
	RecentSignatures(ctx context.Context, address string, limit int) ([]blockchain.SignatureInfo, error)
	TransactionDetail(ctx context.Context, signature, owner string) (*blockchain.TransactionRecord, error)
}

// Snapshot is the last known state for one wallet. Balance stays at the last
// good value when a refresh fails.
type Snapshot struct {
	Address      string
	Balance      *blockchain.BalanceInfo
	Transactions []blockchain.TransactionRecord
	UpdatedAt    time.Time
	BalanceStale bool
	Skipped      int
}

type Option func(*Syncer)

func WithInterval(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSignatureLimit(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithDetailDelay spaces per-transaction detail requests at least d apart.
func WithDetailDelay(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

type Syncer struct {
	ledger   Ledger
	interval time.Duration
	limit    int
	limiter  *rate.Limiter

	runMu   sync.Mutex
	rerun   atomic.Bool
	trigger chan struct{}
	wg      sync.WaitGroup

	mu         sync.RWMutex
	active     string
	generation uint64
	snapshot   Snapshot
	listeners  []func(Snapshot)
}

func New(ledger Ledger, options ...Option) *Syncer {
	s := &Syncer{
		ledger:   ledger,
		interval: DefaultInterval,
		limit:    DefaultSignatureLimit,
		limiter:  rate.NewLimiter(rate.Every(DefaultDetailDelay), 1),
		trigger:  make(chan struct{}, 1),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// OnUpdate registers fn to receive each completed snapshot.
func (s *Syncer) OnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetActive switches the wallet being synced. Results of runs started for the
// previous wallet are discarded. An empty address stops syncing.
func (s *Syncer) SetActive(address string) {
	s.mu.Lock()
	if address == s.active {
		s.mu.Unlock()
		return
	}
	s.active = address
	s.generation++
	s.snapshot = Snapshot{Address: address}
	s.mu.Unlock()

	if address != "" {
		s.Trigger()
	}
}

func (s *Syncer) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Syncer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	snap.Transactions = append([]blockchain.TransactionRecord(nil), s.snapshot.Transactions...)
	return snap
}

// Trigger requests a run as soon as possible. If a run is in progress, one more
// run follows it.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start runs the timer loop until ctx is done.
func (s *Syncer) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.spawn(ctx, false)
			case <-s.trigger:
				s.spawn(ctx, true)
			}
		}
	}()
}

// Wait blocks until the loop and all runs it started have returned.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

func (s *Syncer) spawn(ctx context.Context, explicit bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if explicit {
			// Set before TryLock so a run that is finishing sees the request.
			s.rerun.Store(true)
		}
		if errors.Is(s.RunOnce(ctx), ErrBusy) && !explicit {
			logger.DebugC("sync", "Run in progress, skipping timer tick")
		}
	}()
}

// RunOnce performs one refresh for the active wallet. It returns ErrBusy
// without doing anything if another run holds the lock. Triggers that arrive
// while it runs cause one more pass.
func (s *Syncer) RunOnce(ctx context.Context) error {
	var err error
	for {
		if !s.runMu.TryLock() {
			return ErrBusy
		}
		s.rerun.Store(false)
		err = s.run(ctx)
		s.runMu.Unlock()

		if !s.rerun.Load() || ctx.Err() != nil {
			return err
		}
	}
}

func (s *Syncer) run(ctx context.Context) error {
	s.mu.RLock()
	address, gen := s.active, s.generation
	s.mu.RUnlock()
	if address == "" {
		return nil
	}

	start := time.Now()
	balance, err := s.ledger.GetBalance(ctx, address)
	balanceStale := false
	if err != nil {
		balanceStale = true
		logger.WarnCF("sync", "Balance fetch failed, keeping last value", map[string]any{
			"wallet": logger.ShortAddress(address),
			"error":  err.Error(),
		})
	}
	if !s.current(gen) {
		return ErrStale
	}

	var records []blockchain.TransactionRecord
	skipped := 0
	sigs, err := s.ledger.RecentSignatures(ctx, address, s.limit)
	if err != nil {
		logger.WarnCF("sync", "Signature list fetch failed", map[string]any{
			"wallet": logger.ShortAddress(address),
			"error":  err.Error(),
		})
	}
	if !s.current(gen) {
		return ErrStale
	}

	for _, sig := range sigs {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		rec, err := s.ledger.TransactionDetail(ctx, sig.Signature, address)
		if !s.current(gen) {
			return ErrStale
		}
		if err != nil {
			skipped++
			logger.WarnCF("sync", "Skipping transaction detail", map[string]any{
				"signature": sig.Signature,
				"error":     err.Error(),
			})
			continue
		}
		if sig.ConfirmationStatus != "" && !rec.Failed {
			rec.Status = sig.ConfirmationStatus
		}
		if rec.Time.IsZero() {
			rec.Time = sig.Time
		}
		records = append(records, *rec)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrStale
	}
	next := s.snapshot
	next.Address = address
	next.UpdatedAt = time.Now()
	next.BalanceStale = balanceStale
	next.Skipped = skipped
	if balance != nil {
		next.Balance = balance
	}
	if sigs != nil || next.Transactions == nil {
		next.Transactions = records
	}
	s.snapshot = next
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	logger.DebugCF("sync", "Wallet refreshed", map[string]any{
		"wallet":       logger.ShortAddress(address),
		"transactions": len(records),
		"skipped":      skipped,
		"duration":     time.Since(start).String(),
	})
	for _, fn := range listeners {
		fn(next)
	}
	return nil
}

func (s *Syncer) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}
