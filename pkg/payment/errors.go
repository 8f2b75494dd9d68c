package payment

import (
	"errors"
	"fmt"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/wallet"
)

var (
	// ErrBusy is returned when a payment is started while another is unresolved
	ErrBusy = errors.New("payment already in progress")

	// ErrNotAwaitingPIN is returned when a PIN is submitted outside pin_required
	ErrNotAwaitingPIN = errors.New("pipeline is not waiting for a PIN")

	// ErrCannotCancel is returned once authorization has begun
	ErrCannotCancel = errors.New("payment can no longer be cancelled")

	// ErrCancelled is returned by Start when Cancel or the caller's context
	// interrupted it
	ErrCancelled = errors.New("payment cancelled")

	// errRemotePIN means the backend has no usable PIN profile for this user,
	// so the session path is unavailable even though the local PIN verified.
	errRemotePIN = errors.New("backend PIN verification unavailable")
)

type FailureReason string

const (
	FailureInvalidRecipient FailureReason = "invalid_recipient"
	FailureInvalidAmount    FailureReason = "invalid_amount"
	FailureMissingKey       FailureReason = "missing_key"
	FailureAuth             FailureReason = "auth"
	FailureNetwork          FailureReason = "network"
	FailureExecution        FailureReason = "execution"
)

// ValidationError is bad user input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return wallet.ErrValidation }

// Failure is the terminal error of a payment attempt.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	return string(f.Reason) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func classify(err error) FailureReason {
	var ne *api.NetworkError
	if errors.Is(err, api.ErrTimeout) || errors.As(err, &ne) {
		return FailureNetwork
	}
	return FailureExecution
}
