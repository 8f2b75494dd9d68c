package wallet

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/securestore"
)

const (
	MinPINLength = 4
	MaxPINLength = 6
)

// ValidatePIN checks the PIN is 4-6 ASCII digits.
func ValidatePIN(pin string) bool {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pinDigest(pin string) []byte {
	sum := sha256.Sum256([]byte(pin))
	return sum[:]
}

// AuthGate enrolls and verifies the local PIN. It only ever stores a digest and
// holds no reference to signing keys.
type AuthGate struct {
	store securestore.Store
}

func NewAuthGate(store securestore.Store) *AuthGate {
	return &AuthGate{store: store}
}

// Enroll replaces any existing PIN. Nothing is written when the format is invalid.
func (g *AuthGate) Enroll(ctx context.Context, pin string) error {
	if !ValidatePIN(pin) {
		return ErrInvalidPINFormat
	}
	if err := g.store.Set(ctx, securestore.KeyPINDigest, pinDigest(pin)); err != nil {
		return fmt.Errorf("failed to store PIN digest: %w", err)
	}
	logger.InfoC("auth", "PIN enrolled")
	return nil
}

// Verify reports whether pin matches the enrolled digest. A mismatch is false, not an error.
func (g *AuthGate) Verify(ctx context.Context, pin string) (bool, error) {
	stored, err := g.store.Get(ctx, securestore.KeyPINDigest)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return false, ErrPINNotEnrolled
		}
		return false, fmt.Errorf("failed to load PIN digest: %w", err)
	}
	// Malformed input is hashed and compared like any other so control flow
	// does not depend on the candidate.
	ok := subtle.ConstantTimeCompare(stored, pinDigest(pin)) == 1
	return ok && ValidatePIN(pin), nil
}

func (g *AuthGate) IsEnrolled(ctx context.Context) (bool, error) {
	_, err := g.store.Get(ctx, securestore.KeyPINDigest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, securestore.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (g *AuthGate) Reset(ctx context.Context) error {
	if err := g.store.Delete(ctx, securestore.KeyPINDigest); err != nil {
		return fmt.Errorf("failed to reset PIN: %w", err)
	}
	logger.InfoC("auth", "PIN reset")
	return nil
}
