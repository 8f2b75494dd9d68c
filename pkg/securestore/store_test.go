package securestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyPINDigest)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyPINDigest, []byte("digest")))
	require.NoError(t, s.Set(ctx, SecretKey("addrA"), []byte{1, 2, 3}))
	require.NoError(t, s.Set(ctx, SecretKey("addrB"), []byte{4, 5, 6}))

	got, err := s.Get(ctx, KeyPINDigest)
	require.NoError(t, err)
	assert.Equal(t, []byte("digest"), got)

	require.NoError(t, s.Set(ctx, KeyPINDigest, []byte("digest2")))
	got, err = s.Get(ctx, KeyPINDigest)
	require.NoError(t, err)
	assert.Equal(t, []byte("digest2"), got)

	keys, err := s.Keys(ctx, SecretPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{SecretKey("addrA"), SecretKey("addrB")}, keys)

	require.NoError(t, s.Delete(ctx, SecretKey("addrA")))
	_, err = s.Get(ctx, SecretKey("addrA"))
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is not an error
	assert.NoError(t, s.Delete(ctx, SecretKey("missing")))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := []byte{9, 9}
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 0

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, out)
	out[1] = 0

	again, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte{9, 9}, again)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := OpenSQLite(context.Background(), path, []byte("device-pass"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_ReopenAndWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := OpenSQLite(ctx, path, []byte("device-pass"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyActiveWallet, []byte("addr")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, []byte("device-pass"))
	require.NoError(t, err)
	got, err := s.Get(ctx, KeyActiveWallet)
	require.NoError(t, err)
	assert.Equal(t, []byte("addr"), got)
	require.NoError(t, s.Close())

	_, err = OpenSQLite(ctx, path, []byte("other-pass"))
	assert.Error(t, err)
}

func TestSQLiteStore_ValuesAreSealedOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := OpenSQLite(ctx, path, []byte("device-pass"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyPINDigest, []byte("plain-marker")))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var blob []byte
	require.NoError(t, db.QueryRow(`SELECT blob FROM secure_items WHERE key = ?`, KeyPINDigest).Scan(&blob))
	assert.NotContains(t, string(blob), "plain-marker")
}

func TestOpenSQLite_EmptyPassphrase(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "v.db"), nil)
	assert.Error(t, err)
}
