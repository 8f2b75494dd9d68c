// Package securestore keeps small secret blobs at rest, keyed by fixed names.
package securestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("securestore: key not found")

// SchemaVersion is written under KeySchemaVersion on first open.
const SchemaVersion = "1"

const (
	KeySchemaVersion = "schema_version"
	KeyWallets       = "v1/wallets"
	KeyActiveWallet  = "v1/active_wallet"
	KeySessionKey    = "v1/session_key"
	KeyPINDigest     = "v1/pin_digest"
	KeyContacts      = "v1/contacts"
	SecretPrefix     = "v1/secret/"
)

// SecretKey is the storage name for an address's signing key.
func SecretKey(address string) string {
	return SecretPrefix + address
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// MemoryStore is an in-process Store. Nothing survives Close.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.items {
		clear(v)
		delete(m.items, k)
	}
	return nil
}
