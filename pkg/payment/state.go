package payment

import (
	"time"

	"github.com/sipeed/monopay/pkg/price"
)

type State string

const (
	StateIdle        State = "idle"
	StateResolving   State = "resolving"
	StateQuoting     State = "quoting"
	StatePINRequired State = "pin_required"
	StateAuthorizing State = "authorizing"
	StateExecuting   State = "executing"
	StateSubmitted   State = "submitted"
	StateFailed      State = "failed"
)

// Terminal reports whether a new payment may start from this state.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateSubmitted || s == StateFailed
}

// Cancellable reports whether Cancel is allowed. Nothing has been signed or
// sent in these states.
func (s State) Cancellable() bool {
	switch s {
	case StateResolving, StateQuoting, StatePINRequired:
		return true
	}
	return false
}

type Mode string

const (
	ModeSession Mode = "session"
	ModeWallet  Mode = "wallet"
)

// Request is what the user asked for. Amount is the raw INR text; it may be
// empty when Recipient is a payment URI that carries an amount.
type Request struct {
	Recipient string
	Amount    string
	Memo      string
}

// Intent is the single in-flight payment. ID is local and stays the same
// across a fallback retry.
type Intent struct {
	ID               string
	BackendIntentID  string
	RecipientInput   string
	RecipientHandle  string
	RecipientAddress string
	DisplayName      string
	INRAmount        float64
	TokenAmount      float64
	Lamports         uint64
	Quote            price.Quote
	Memo             string
	Mode             Mode
	Fallback         bool
	CreatedAt        time.Time
}

// Status is an immutable view of the pipeline.
type Status struct {
	State       State
	Intent      *Intent
	PINFailures int
	Signature   string
	ExplorerURL string
	Failure     *Failure
}
