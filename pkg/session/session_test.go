package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/securestore"
	"github.com/sipeed/monopay/pkg/wallet"
)

type fakeBackend struct {
	current *api.SessionResponse
	created api.CreateSessionRequest
}

func (f *fakeBackend) CurrentSession(context.Context) (*api.SessionResponse, error) {
	return f.current, nil
}

func (f *fakeBackend) CreateSession(_ context.Context, req api.CreateSessionRequest) (*api.SessionResponse, error) {
	f.created = req
	return &api.SessionResponse{ID: "sess_1", Status: StatusActive, Wallet: req.Wallet,
		PerTxLimitINR: req.PerTxLimitINR, DailyLimitINR: req.DailyLimitINR, RemainingTodayINR: req.DailyLimitINR,
		ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestSession_Covers(t *testing.T) {
	now := time.Now()
	base := Session{
		Status:            StatusActive,
		PerTxLimitINR:     2000,
		DailyLimitINR:     5000,
		RemainingTodayINR: 800,
		ExpiresAt:         now.Add(time.Minute),
		Key:               make([]byte, 64),
	}

	tests := []struct {
		name   string
		mutate func(*Session)
		inr    float64
		want   bool
	}{
		{"within limits", func(*Session) {}, 500, true},
		{"at remaining", func(*Session) {}, 800, true},
		{"over remaining today", func(*Session) {}, 1000, false},
		{"over per tx", func(s *Session) { s.RemainingTodayINR = 5000 }, 2500, false},
		{"expired", func(s *Session) { s.ExpiresAt = now }, 100, false},
		{"inactive", func(s *Session) { s.Status = "revoked" }, 100, false},
		{"no local key", func(s *Session) { s.Key = nil }, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			assert.Equal(t, tt.want, s.Covers(tt.inr, now))
		})
	}

	var nilSession *Session
	assert.False(t, nilSession.Covers(1, now))
}

func TestManager_CurrentEnsureRevoke(t *testing.T) {
	ctx := context.Background()
	vault := wallet.NewKeyVault(securestore.NewMemoryStore())
	backend := &fakeBackend{}
	m := NewManager(backend, vault)

	s, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	backend.current = &api.SessionResponse{ID: "sess_9", Status: StatusActive, RemainingTodayINR: 100}
	s, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess_9", s.ID)
	assert.Nil(t, s.Key)

	key, err := m.Ensure(ctx)
	require.NoError(t, err)
	again, err := m.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), again.PublicKey())

	s, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), s.Key.PublicKey())

	sig, err := s.Sign([]byte("pi_1"))
	require.NoError(t, err)
	assert.True(t, sig.Verify(key.PublicKey(), []byte("pi_1")))

	require.NoError(t, m.Revoke(ctx))
	s, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.Key)
}

func TestManager_Open(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	m := NewManager(backend, wallet.NewKeyVault(securestore.NewMemoryStore()))

	s, err := m.Open(ctx, "W1", "dev_1", Limits{PerTxINR: 2000, DailyINR: 10000, TTL: 2 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, int64(120), backend.created.TTLMinutes)
	assert.Equal(t, s.Key.PublicKey().String(), backend.created.SessionKey)
	assert.True(t, s.Covers(1500, time.Now()))
}
