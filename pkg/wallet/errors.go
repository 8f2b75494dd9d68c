package wallet

import (
	"errors"
	"fmt"
)

// ErrValidation is the root of every input-format error. It is never retried.
var ErrValidation = errors.New("validation error")

var (
	// ErrInvalidPINFormat is returned when a PIN is not 4-6 digits
	ErrInvalidPINFormat = fmt.Errorf("%w: PIN must be 4-6 digits", ErrValidation)

	// ErrInvalidKeyFormat is returned when an imported secret key cannot be parsed
	ErrInvalidKeyFormat = fmt.Errorf("%w: invalid secret key", ErrValidation)

	// ErrInvalidHandle is returned when a handle does not normalise
	ErrInvalidHandle = fmt.Errorf("%w: invalid handle", ErrValidation)

	// ErrPINNotEnrolled is returned when verifying before a PIN exists
	ErrPINNotEnrolled = errors.New("PIN not enrolled")

	// ErrKeyNotFound is returned when no secret is stored for an address.
	// The wallet must be re-imported.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrCorruptKey is returned when the stored secret is not a 64-byte keypair.
	ErrCorruptKey = errors.New("stored signing key is corrupt")

	// ErrNoActiveWallet is returned when no wallet has been imported or selected
	ErrNoActiveWallet = errors.New("no active wallet")

	// ErrUnknownWallet is returned when switching to an address that was never imported
	ErrUnknownWallet = errors.New("wallet not imported")
)
