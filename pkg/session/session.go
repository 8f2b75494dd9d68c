// Package session manages the ephemeral delegate key used by the fast payment path.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/wallet"
)

const StatusActive = "active"

// Backend is the session part of the backend API.
type Backend interface {
	CurrentSession(ctx context.Context) (*api.SessionResponse, error)
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (*api.SessionResponse, error)
}

// Session is the backend's view of the delegate key merged with the local keypair.
// Key is nil when this device holds no session key.
type Session struct {
	ID                string
	Status            string
	Wallet            string
	PerTxLimitINR     float64
	DailyLimitINR     float64
	RemainingTodayINR float64
	ExpiresAt         time.Time
	Key               solana.PrivateKey
}

// Covers reports whether the session may authorize a payment of inr at now.
func (s *Session) Covers(inr float64, now time.Time) bool {
	if s == nil || len(s.Key) == 0 || s.Status != StatusActive {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	return inr <= s.PerTxLimitINR && inr <= s.RemainingTodayINR
}

// Sign signs message with the session key.
func (s *Session) Sign(message []byte) (solana.Signature, error) {
	if s == nil || len(s.Key) == 0 {
		return solana.Signature{}, errors.New("no session key")
	}
	return s.Key.Sign(message)
}

type Manager struct {
	backend Backend
	vault   *wallet.KeyVault
}

func NewManager(backend Backend, vault *wallet.KeyVault) *Manager {
	return &Manager{backend: backend, vault: vault}
}

// Current returns nil, nil when the backend reports no session.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	resp, err := m.backend.CurrentSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if resp == nil {
		return nil, nil
	}

	s := &Session{
		ID:                resp.ID,
		Status:            resp.Status,
		Wallet:            resp.Wallet,
		PerTxLimitINR:     resp.PerTxLimitINR,
		DailyLimitINR:     resp.DailyLimitINR,
		RemainingTodayINR: resp.RemainingTodayINR,
		ExpiresAt:         resp.ExpiresAt,
	}
	key, err := m.vault.SessionKey(ctx)
	switch {
	case err == nil:
		s.Key = key
	case errors.Is(err, wallet.ErrKeyNotFound):
	default:
		return nil, err
	}
	return s, nil
}

// Ensure returns the local session key, generating one if none exists.
func (m *Manager) Ensure(ctx context.Context) (solana.PrivateKey, error) {
	key, err := m.vault.SessionKey(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, wallet.ErrKeyNotFound) {
		return nil, err
	}
	return m.vault.GenerateSessionKey(ctx)
}

// Limits are the spend bounds requested when opening a session.
type Limits struct {
	PerTxINR float64
	DailyINR float64
	TTL      time.Duration
}

// Open registers the local session key with the backend for walletAddress.
func (m *Manager) Open(ctx context.Context, walletAddress, deviceID string, limits Limits) (*Session, error) {
	key, err := m.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := m.backend.CreateSession(ctx, api.CreateSessionRequest{
		Wallet:        walletAddress,
		DeviceID:      deviceID,
		SessionKey:    key.PublicKey().String(),
		PerTxLimitINR: limits.PerTxINR,
		DailyLimitINR: limits.DailyINR,
		TTLMinutes:    int64(limits.TTL / time.Minute),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	logger.InfoCF("session", "Session opened", map[string]any{
		"session":    resp.ID,
		"wallet":     logger.ShortAddress(walletAddress),
		"expires_at": resp.ExpiresAt,
	})
	return &Session{
		ID:                resp.ID,
		Status:            resp.Status,
		Wallet:            resp.Wallet,
		PerTxLimitINR:     resp.PerTxLimitINR,
		DailyLimitINR:     resp.DailyLimitINR,
		RemainingTodayINR: resp.RemainingTodayINR,
		ExpiresAt:         resp.ExpiresAt,
		Key:               key,
	}, nil
}

// Revoke drops the local session key. The backend session expires on its own.
func (m *Manager) Revoke(ctx context.Context) error {
	if err := m.vault.DeleteSessionKey(ctx); err != nil {
		return fmt.Errorf("failed to revoke session key: %w", err)
	}
	logger.InfoC("session", "Session key revoked")
	return nil
}
