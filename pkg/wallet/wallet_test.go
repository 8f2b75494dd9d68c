package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/securestore"
)

func byteList(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func TestParseSecretKey_AllEncodingsAgree(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	want := key.PublicKey().String()

	inputs := map[string]string{
		"bracketed array": "[" + byteList(key) + "]",
		"spaced array":    "[ " + strings.ReplaceAll(byteList(key), ",", ", ") + " ]",
		"comma list":      byteList(key),
		"base58":          key.String(),
		"seed only":       "[" + byteList(key[:32]) + "]",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSecretKey(in)
			require.NoError(t, err)
			assert.Equal(t, want, got.PublicKey().String())
		})
	}
}

func TestParseSecretKey_Rejects(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	tampered := append([]byte(nil), key...)
	tampered[63] ^= 0xff

	tests := []struct {
		name string
		in   string
	}{
		{"empty", "   "},
		{"unterminated", "[1,2,3"},
		{"out of range", "[" + strings.Repeat("256,", 63) + "256]"},
		{"not a number", "1,2,x"},
		{"wrong length", "[1,2,3]"},
		{"bad base58", "0OIl"},
		{"mismatched public half", byteList(tampered)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSecretKey(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKeyFormat)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidatePIN(t *testing.T) {
	for _, pin := range []string{"1234", "12345", "123456", "0000"} {
		assert.True(t, ValidatePIN(pin), pin)
	}
	for _, pin := range []string{"", "123", "1234567", "12a4", "１２３４", " 1234"} {
		assert.False(t, ValidatePIN(pin), pin)
	}
}

func TestAuthGate_EnrollVerify(t *testing.T) {
	ctx := context.Background()
	for _, pin := range []string{"1234", "98765", "000000"} {
		t.Run(pin, func(t *testing.T) {
			store := securestore.NewMemoryStore()
			gate := NewAuthGate(store)
			require.NoError(t, gate.Enroll(ctx, pin))

			ok, err := gate.Verify(ctx, pin)
			require.NoError(t, err)
			assert.True(t, ok)

			other := strings.Repeat("9", len(pin))
			if other == pin {
				other = strings.Repeat("1", len(pin))
			}
			ok, err = gate.Verify(ctx, other)
			require.NoError(t, err)
			assert.False(t, ok)

			raw, err := store.Get(ctx, securestore.KeyPINDigest)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), pin)
		})
	}
}

func TestAuthGate_InvalidFormatPersistsNothing(t *testing.T) {
	ctx := context.Background()
	for _, pin := range []string{"12", "1234567", "abcd", "12 34"} {
		t.Run(pin, func(t *testing.T) {
			store := securestore.NewMemoryStore()
			gate := NewAuthGate(store)

			err := gate.Enroll(ctx, pin)
			assert.ErrorIs(t, err, ErrInvalidPINFormat)
			assert.ErrorIs(t, err, ErrValidation)

			enrolled, err := gate.IsEnrolled(ctx)
			require.NoError(t, err)
			assert.False(t, enrolled)
		})
	}
}

func TestAuthGate_ResetAndNotEnrolled(t *testing.T) {
	ctx := context.Background()
	gate := NewAuthGate(securestore.NewMemoryStore())

	_, err := gate.Verify(ctx, "1234")
	assert.ErrorIs(t, err, ErrPINNotEnrolled)

	require.NoError(t, gate.Enroll(ctx, "1234"))
	require.NoError(t, gate.Reset(ctx))

	enrolled, err := gate.IsEnrolled(ctx)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestKeyVault(t *testing.T) {
	ctx := context.Background()
	store := securestore.NewMemoryStore()
	vault := NewKeyVault(store)

	_, err := vault.Retrieve(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, vault.Store(ctx, "addr1", []byte{1, 2, 3}))
	got, err := vault.Retrieve(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	session, err := vault.GenerateSessionKey(ctx)
	require.NoError(t, err)
	loaded, err := vault.SessionKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PublicKey(), loaded.PublicKey())

	require.NoError(t, vault.WipeAll(ctx))
	_, err = vault.Retrieve(ctx, "addr1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = vault.SessionKey(ctx)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

type fakeRegistrar struct {
	calls []string
	err   error
}

func (f *fakeRegistrar) RegisterHandle(_ context.Context, handle, wallet string) (*api.HandleResponse, error) {
	f.calls = append(f.calls, handle+"="+wallet)
	if f.err != nil {
		return nil, f.err
	}
	return &api.HandleResponse{Handle: handle, Wallet: wallet}, nil
}

func newTestManager(reg HandleRegistrar) (*Manager, securestore.Store) {
	store := securestore.NewMemoryStore()
	return NewManager(store, NewKeyVault(store), NewAuthGate(store), reg, "usr_test"), store
}

func TestManager_ImportSwitchDisconnect(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistrar{}
	m, store := newTestManager(reg)

	var sessions []*Session
	m.OnChange(func(s *Session) { sessions = append(sessions, s) })

	k1, _ := solana.NewRandomPrivateKey()
	k2, _ := solana.NewRandomPrivateKey()

	w1, err := m.Import(ctx, k1.String(), "Main", "@Priya")
	require.NoError(t, err)
	assert.Equal(t, "priya@monopay.app", w1.Handle)
	assert.Equal(t, []string{"priya@monopay.app=" + k1.PublicKey().String()}, reg.calls)

	w2, err := m.Import(ctx, "["+byteList(k2)+"]", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Wallet 2", w2.Label)

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, w2.Address, active.Address)

	_, err = m.Switch(ctx, w1.Address)
	require.NoError(t, err)
	s, err := m.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, w1.Address, s.Wallet.Address)
	assert.Equal(t, "usr_test", s.UserID)

	_, err = m.Switch(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownWallet)

	signer, err := m.Signer(ctx, w1.Address)
	require.NoError(t, err)
	assert.Equal(t, k1.PublicKey(), signer.PublicKey())

	require.NoError(t, NewAuthGate(store).Enroll(ctx, "1234"))
	require.NoError(t, m.Disconnect(ctx))

	wallets, err := m.Wallets(ctx)
	require.NoError(t, err)
	assert.Empty(t, wallets)
	_, err = m.Active(ctx)
	assert.ErrorIs(t, err, ErrNoActiveWallet)
	_, err = m.Signer(ctx, w1.Address)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	enrolled, _ := NewAuthGate(store).IsEnrolled(ctx)
	assert.False(t, enrolled)

	require.Len(t, sessions, 4)
	assert.Nil(t, sessions[3])
}

func TestManager_ReimportKeepsList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(&fakeRegistrar{})
	k, _ := solana.NewRandomPrivateKey()

	_, err := m.Import(ctx, k.String(), "First", "alice")
	require.NoError(t, err)
	w, err := m.Import(ctx, byteList(k), "Renamed", "")
	require.NoError(t, err)
	assert.Equal(t, "alice@monopay.app", w.Handle)

	wallets, err := m.Wallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "Renamed", wallets[0].Label)
}

func TestManager_HandleFailureAbortsImport(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(&fakeRegistrar{err: errors.New("handle taken")})
	k, _ := solana.NewRandomPrivateKey()

	_, err := m.Import(ctx, k.String(), "", "bob")
	require.Error(t, err)

	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = m.Import(ctx, k.String(), "", "x")
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestManager_SignerRejectsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := securestore.NewMemoryStore()
	vault := NewKeyVault(store)
	m := NewManager(store, vault, NewAuthGate(store), &fakeRegistrar{}, "usr_test")

	k, _ := solana.NewRandomPrivateKey()
	addr := k.PublicKey().String()
	require.NoError(t, vault.Store(ctx, addr, []byte{1, 2, 3}))

	_, err := m.Signer(ctx, addr)
	assert.ErrorIs(t, err, ErrCorruptKey)
}
