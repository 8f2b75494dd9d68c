// Package payment drives a payment from recipient input to a submitted
// ledger signature.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/blockchain"
	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/price"
	"github.com/sipeed/monopay/pkg/resolver"
	"github.com/sipeed/monopay/pkg/session"
	"github.com/sipeed/monopay/pkg/wallet"
)

type Resolver interface {
	Resolve(ctx context.Context, input string) (resolver.Result, error)
}

type Quoter interface {
	Quote(ctx context.Context, inr float64) price.Quote
}

type PINVerifier interface {
	Verify(ctx context.Context, pin string) (bool, error)
}

type KeySource interface {
	Signer(ctx context.Context, address string) (solana.PrivateKey, error)
}

type SessionSource interface {
	Current(ctx context.Context) (*session.Session, error)
}

// IntentBackend is the backend's fast path API.
type IntentBackend interface {
	VerifyPin(ctx context.Context, pin string) (*api.PinVerifyResponse, error)
	CreatePaymentIntent(ctx context.Context, req api.PaymentIntentCreateRequest) (*api.PaymentIntentCreateResponse, error)
	ExecutePaymentIntent(ctx context.Context, id string, req api.ExecuteIntentRequest) (*api.ExecuteIntentResponse, error)
}

type Transferer interface {
	TransferNative(ctx context.Context, from, to string, lamports uint64, signer blockchain.SignerFunc) (solana.Signature, error)
}

// Refresher is told to resync after a submission.
type Refresher interface {
	Trigger()
}

type ContactSaver interface {
	Save(ctx context.Context, address, name string) error
}

// Deps are the pipeline's collaborators. Sessions, Backend, Refresher and
// Contacts may be nil.
type Deps struct {
	Resolver  Resolver
	Quoter    Quoter
	Gate      PINVerifier
	Keys      KeySource
	Sessions  SessionSource
	Backend   IntentBackend
	Transfers Transferer
	Refresher Refresher
	Contacts  ContactSaver
}

type Config struct {
	Token           string
	FastPathEnabled bool
	ExplorerLink    func(signature string) string
}

// Pipeline runs one payment at a time for the wallet in its Session.
type Pipeline struct {
	owner wallet.Session
	deps  Deps
	cfg   Config
	now   func() time.Time

	mu          sync.Mutex
	status      Status
	cancel      context.CancelFunc
	subscribers []func(Status)
}

func New(owner wallet.Session, deps Deps, cfg Config) *Pipeline {
	if cfg.Token == "" {
		cfg.Token = "SOL"
	}
	return &Pipeline{
		owner:  owner,
		deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		status: Status{State: StateIdle},
	}
}

// Subscribe registers fn to observe every state transition, in order.
func (p *Pipeline) Subscribe(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pipeline) snapshotLocked() Status {
	s := p.status
	if s.Intent != nil {
		in := *s.Intent
		s.Intent = &in
	}
	return s
}

// unlockAndNotify releases p.mu and delivers the current status to subscribers.
func (p *Pipeline) unlockAndNotify() Status {
	snap := p.snapshotLocked()
	subs := append([]func(Status){}, p.subscribers...)
	p.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return snap
}

// transition applies fn under the lock if the intent is still id, then
// notifies subscribers. It reports false when the intent was cancelled.
func (p *Pipeline) transition(id string, fn func(*Status)) (Status, bool) {
	p.mu.Lock()
	if p.status.Intent == nil || p.status.Intent.ID != id {
		p.mu.Unlock()
		return Status{}, false
	}
	fn(&p.status)
	return p.unlockAndNotify(), true
}

// abandon returns the pipeline to idle when the caller's context ended before
// the intent reached pin_required.
func (p *Pipeline) abandon(id string, cause error) (Status, error) {
	p.mu.Lock()
	if p.status.Intent == nil || p.status.Intent.ID != id {
		p.mu.Unlock()
		return p.Status(), ErrCancelled
	}
	p.status = Status{State: StateIdle}
	p.cancel = nil
	logger.InfoCF("payment", "Payment abandoned", map[string]any{
		"intent": id,
		"error":  cause.Error(),
	})
	snap := p.unlockAndNotify()
	return snap, fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func (p *Pipeline) fail(id string, reason FailureReason, err error) (Status, error) {
	f := &Failure{Reason: reason, Err: err}
	snap, ok := p.transition(id, func(s *Status) {
		s.State = StateFailed
		s.Failure = f
	})
	if !ok {
		return p.Status(), ErrCancelled
	}
	logger.WarnCF("payment", "Payment failed", map[string]any{
		"intent": id,
		"reason": string(reason),
		"error":  err.Error(),
	})
	return snap, f
}

// Start resolves the recipient and sizes the payment, stopping at
// pin_required. It is rejected with ErrBusy unless the pipeline is idle or terminal.
func (p *Pipeline) Start(ctx context.Context, req Request) (Status, error) {
	p.mu.Lock()
	if !p.status.State.Terminal() {
		p.mu.Unlock()
		return p.Status(), ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	intent := &Intent{
		ID:             uuid.NewString(),
		RecipientInput: strings.TrimSpace(req.Recipient),
		Memo:           req.Memo,
		CreatedAt:      p.now().UTC(),
	}
	p.status = Status{State: StateResolving, Intent: intent}
	p.cancel = cancel
	p.unlockAndNotify()
	defer cancel()

	id := intent.ID
	logger.InfoCF("payment", "Payment started", map[string]any{
		"intent":    id,
		"recipient": intent.RecipientInput,
	})

	if intent.RecipientInput == "" {
		return p.fail(id, FailureInvalidRecipient, &ValidationError{Field: "recipient", Message: "empty"})
	}

	amountText := strings.TrimSpace(req.Amount)
	if scanned, err := resolver.ParseScanned(intent.RecipientInput); err == nil && scanned.HasAmount && amountText == "" {
		amountText = strconv.FormatFloat(scanned.Amount, 'f', -1, 64)
	}

	res, err := p.deps.Resolver.Resolve(ctx, intent.RecipientInput)
	if ctx.Err() != nil {
		return p.abandon(id, ctx.Err())
	}
	if err != nil {
		return p.fail(id, classify(err), err)
	}
	if !res.OK() {
		msg := "unknown handle"
		if res.Err != nil {
			msg = res.Err.Error()
		} else if res.Status == resolver.StatusTooShort {
			msg = "too short"
		}
		return p.fail(id, FailureInvalidRecipient, &ValidationError{Field: "recipient", Message: msg})
	}
	if res.Address == p.owner.Wallet.Address {
		return p.fail(id, FailureInvalidRecipient, &ValidationError{Field: "recipient", Message: "cannot pay yourself"})
	}

	if _, ok := p.transition(id, func(s *Status) {
		s.State = StateQuoting
		s.Intent.RecipientHandle = res.Handle
		s.Intent.RecipientAddress = res.Address
		s.Intent.DisplayName = res.DisplayName
	}); !ok {
		return p.Status(), ErrCancelled
	}

	inr, verr := parseAmount(amountText)
	if verr != nil {
		return p.fail(id, FailureInvalidAmount, verr)
	}
	quote := p.deps.Quoter.Quote(ctx, inr)
	if ctx.Err() != nil {
		return p.abandon(id, ctx.Err())
	}
	token := quote.InrToToken(inr)
	lamports, err := blockchain.SOLToLamports(token)
	if err != nil {
		return p.fail(id, FailureInvalidAmount, &ValidationError{Field: "amount", Message: "too small to send"})
	}

	snap, ok := p.transition(id, func(s *Status) {
		s.State = StatePINRequired
		s.Intent.INRAmount = inr
		s.Intent.TokenAmount = token
		s.Intent.Lamports = lamports
		s.Intent.Quote = quote
	})
	if !ok {
		return p.Status(), ErrCancelled
	}
	return snap, nil
}

func parseAmount(text string) (float64, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if text == "" {
		return 0, &ValidationError{Field: "amount", Message: "empty"}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "amount", Message: fmt.Sprintf("%q is not a number", text)}
	}
	if v <= 0 {
		return 0, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return v, nil
}

// Cancel abandons a payment that has not reached authorization. The pipeline
// returns to idle.
func (p *Pipeline) Cancel() error {
	p.mu.Lock()
	if !p.status.State.Cancellable() {
		state := p.status.State
		p.mu.Unlock()
		if state.Terminal() {
			return nil
		}
		return ErrCannotCancel
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.status = Status{State: StateIdle}
	p.cancel = nil
	logger.InfoC("payment", "Payment cancelled")
	p.unlockAndNotify()
	return nil
}

// SubmitPIN authorizes and executes the pending payment. A wrong PIN returns
// the pipeline to pin_required with PINFailures incremented and makes no
// network calls.
func (p *Pipeline) SubmitPIN(ctx context.Context, pin string) (Status, error) {
	p.mu.Lock()
	if p.status.State != StatePINRequired || p.status.Intent == nil {
		p.mu.Unlock()
		return p.Status(), ErrNotAwaitingPIN
	}
	id := p.status.Intent.ID
	p.status.State = StateAuthorizing
	p.unlockAndNotify()

	verified, err := p.deps.Gate.Verify(ctx, pin)
	if err != nil {
		if errors.Is(err, wallet.ErrPINNotEnrolled) {
			return p.fail(id, FailureAuth, err)
		}
		snap, _ := p.transition(id, func(s *Status) { s.State = StatePINRequired })
		return snap, fmt.Errorf("PIN check failed: %w", err)
	}
	if !verified {
		snap, _ := p.transition(id, func(s *Status) {
			s.State = StatePINRequired
			s.PINFailures++
		})
		logger.WarnCF("payment", "Incorrect PIN", map[string]any{
			"intent":   id,
			"failures": snap.PINFailures,
		})
		return snap, nil
	}

	key, err := p.deps.Keys.Signer(ctx, p.owner.Wallet.Address)
	if err != nil {
		return p.fail(id, FailureMissingKey, err)
	}
	defer clear(key)

	intent := p.Status().Intent
	if intent.Quote.Expired(p.now()) {
		intent = p.requote(ctx, id)
		if intent == nil {
			return p.fail(id, FailureInvalidAmount, &ValidationError{Field: "amount", Message: "too small to send"})
		}
	}

	mode, sess := p.selectMode(ctx, intent)
	p.transition(id, func(s *Status) {
		s.State = StateExecuting
		s.Intent.Mode = mode
	})
	logger.InfoCF("payment", "Executing payment", map[string]any{
		"intent": id,
		"mode":   string(mode),
		"inr":    intent.INRAmount,
		"to":     logger.ShortAddress(intent.RecipientAddress),
	})

	var signature string
	if mode == ModeSession {
		signature, err = p.executeSession(ctx, id, intent, sess, pin)
		if err != nil && (api.RequiresFallback(err) || errors.Is(err, errRemotePIN)) {
			logger.WarnCF("payment", "Session path rejected, retrying with wallet key", map[string]any{
				"intent": id,
				"error":  err.Error(),
			})
			p.transition(id, func(s *Status) {
				s.Intent.Mode = ModeWallet
				s.Intent.Fallback = true
			})
			signature, err = p.executeWallet(ctx, intent, key)
		}
	} else {
		signature, err = p.executeWallet(ctx, intent, key)
	}
	if err != nil {
		return p.fail(id, classify(err), err)
	}

	return p.submitted(ctx, id, signature)
}

func (p *Pipeline) requote(ctx context.Context, id string) *Intent {
	intent := p.Status().Intent
	quote := p.deps.Quoter.Quote(ctx, intent.INRAmount)
	token := quote.InrToToken(intent.INRAmount)
	lamports, err := blockchain.SOLToLamports(token)
	if err != nil {
		return nil
	}
	snap, ok := p.transition(id, func(s *Status) {
		s.Intent.Quote = quote
		s.Intent.TokenAmount = token
		s.Intent.Lamports = lamports
	})
	if !ok {
		return nil
	}
	logger.InfoCF("payment", "Quote expired, re-quoted", map[string]any{
		"intent": id,
		"rate":   quote.Rate,
		"source": quote.Source,
	})
	return snap.Intent
}

func (p *Pipeline) selectMode(ctx context.Context, intent *Intent) (Mode, *session.Session) {
	if !p.cfg.FastPathEnabled || p.deps.Sessions == nil || p.deps.Backend == nil || intent.RecipientHandle == "" {
		return ModeWallet, nil
	}
	sess, err := p.deps.Sessions.Current(ctx)
	if err != nil {
		logger.WarnCF("payment", "Session lookup failed, using wallet key", map[string]any{
			"error": err.Error(),
		})
		return ModeWallet, nil
	}
	if sess == nil || (sess.Wallet != "" && sess.Wallet != p.owner.Wallet.Address) {
		return ModeWallet, nil
	}
	if !sess.Covers(intent.INRAmount, p.now()) {
		return ModeWallet, nil
	}
	return ModeSession, sess
}

func (p *Pipeline) executeSession(ctx context.Context, id string, intent *Intent, sess *session.Session, pin string) (string, error) {
	backendID := intent.BackendIntentID
	if backendID == "" {
		created, err := p.deps.Backend.CreatePaymentIntent(ctx, api.PaymentIntentCreateRequest{
			RecipientHandle: intent.RecipientHandle,
			INRAmount:       intent.INRAmount,
			Token:           p.cfg.Token,
			Memo:            intent.Memo,
		})
		if err != nil {
			return "", err
		}
		backendID = created.ID
		p.transition(id, func(s *Status) { s.Intent.BackendIntentID = backendID })
	}

	verified, err := p.deps.Backend.VerifyPin(ctx, pin)
	if err != nil {
		var he *api.HTTPError
		if errors.As(err, &he) && (he.StatusCode == 401 || he.StatusCode == 404) {
			return "", fmt.Errorf("%w: %w", errRemotePIN, err)
		}
		return "", err
	}
	if !verified.Verified {
		return "", errRemotePIN
	}

	proof, err := sess.Sign([]byte(backendID))
	if err != nil {
		return "", err
	}
	resp, err := p.deps.Backend.ExecutePaymentIntent(ctx, backendID, api.ExecuteIntentRequest{
		PinToken:         verified.PinToken,
		SessionID:        sess.ID,
		SessionSignature: proof.String(),
	})
	if err != nil {
		return "", err
	}
	if resp.Status == "failed" || resp.Signature == "" {
		return "", fmt.Errorf("intent %s not executed: status %s", backendID, resp.Status)
	}
	return resp.Signature, nil
}

func (p *Pipeline) executeWallet(ctx context.Context, intent *Intent, key solana.PrivateKey) (string, error) {
	sig, err := p.deps.Transfers.TransferNative(ctx, p.owner.Wallet.Address, intent.RecipientAddress, intent.Lamports, blockchain.KeySigner(key))
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (p *Pipeline) submitted(ctx context.Context, id, signature string) (Status, error) {
	explorer := ""
	if p.cfg.ExplorerLink != nil {
		explorer = p.cfg.ExplorerLink(signature)
	}
	snap, _ := p.transition(id, func(s *Status) {
		s.State = StateSubmitted
		s.Signature = signature
		s.ExplorerURL = explorer
	})
	logger.InfoCF("payment", "Payment submitted", map[string]any{
		"intent":    id,
		"signature": signature,
		"mode":      string(snap.Intent.Mode),
	})

	if p.deps.Refresher != nil {
		p.deps.Refresher.Trigger()
	}
	if p.deps.Contacts != nil {
		if err := p.deps.Contacts.Save(ctx, snap.Intent.RecipientAddress, snap.Intent.DisplayName); err != nil {
			logger.WarnCF("payment", "Failed to save contact", map[string]any{
				"error": err.Error(),
			})
		}
	}
	return snap, nil
}
