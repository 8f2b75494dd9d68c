package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/resolver"
	"github.com/sipeed/monopay/pkg/securestore"
)

// HandleRegistrar publishes a handle to address mapping.
type HandleRegistrar interface {
	RegisterHandle(ctx context.Context, handle, wallet string) (*api.HandleResponse, error)
}

// Manager keeps the wallet list and the active wallet, and owns the Session
// handed to the payment pipeline and the syncer.
type Manager struct {
	mu        sync.Mutex
	store     securestore.Store
	vault     *KeyVault
	gate      *AuthGate
	registrar HandleRegistrar
	userID    string
	listeners []func(*Session)
	now       func() time.Time
}

func NewManager(store securestore.Store, vault *KeyVault, gate *AuthGate, registrar HandleRegistrar, userID string) *Manager {
	return &Manager{
		store:     store,
		vault:     vault,
		gate:      gate,
		registrar: registrar,
		userID:    userID,
		now:       time.Now,
	}
}

// OnChange registers fn to be called after every import, switch and disconnect.
// fn receives nil after disconnect.
func (m *Manager) OnChange(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Import parses raw, registers handle (if any) and stores the key. The imported
// wallet becomes active. A failed handle registration aborts before anything is stored.
func (m *Manager) Import(ctx context.Context, raw, label, handle string) (*Wallet, error) {
	key, err := ParseSecretKey(raw)
	if err != nil {
		return nil, err
	}
	address := key.PublicKey().String()

	if handle != "" {
		normalized, ok := resolver.NormalizeHandle(handle)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
		}
		if m.registrar == nil {
			return nil, errors.New("handle registration unavailable")
		}
		if _, err := m.registrar.RegisterHandle(ctx, normalized, address); err != nil {
			return nil, fmt.Errorf("failed to register handle: %w", err)
		}
		handle = normalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.vault.Store(ctx, address, key); err != nil {
		return nil, err
	}

	wallets, err := m.loadWallets(ctx)
	if err != nil {
		return nil, err
	}

	if label == "" {
		label = fmt.Sprintf("Wallet %d", len(wallets)+1)
	}
	w := Wallet{Address: address, Label: label, Handle: handle, CreatedAt: m.now().UTC()}

	replaced := false
	for i := range wallets {
		if wallets[i].Address == address {
			w.CreatedAt = wallets[i].CreatedAt
			if handle == "" {
				w.Handle = wallets[i].Handle
			}
			wallets[i] = w
			replaced = true
			break
		}
	}
	if !replaced {
		wallets = append(wallets, w)
	}

	if err := m.saveWallets(ctx, wallets); err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, securestore.KeyActiveWallet, []byte(address)); err != nil {
		return nil, fmt.Errorf("failed to set active wallet: %w", err)
	}

	logger.InfoCF("wallet", "Wallet imported", map[string]any{
		"address": logger.ShortAddress(address),
		"label":   w.Label,
		"handle":  w.Handle,
		"updated": replaced,
	})

	m.notifyLocked(&Session{Wallet: w, UserID: m.userID})
	return &w, nil
}

func (m *Manager) Wallets(ctx context.Context) ([]Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadWallets(ctx)
}

// Active returns ErrNoActiveWallet when nothing is selected.
func (m *Manager) Active(ctx context.Context) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(ctx)
}

func (m *Manager) Session(ctx context.Context) (*Session, error) {
	w, err := m.Active(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{Wallet: *w, UserID: m.userID}, nil
}

func (m *Manager) Switch(ctx context.Context, address string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallets, err := m.loadWallets(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range wallets {
		if w.Address != address {
			continue
		}
		if err := m.store.Set(ctx, securestore.KeyActiveWallet, []byte(address)); err != nil {
			return nil, fmt.Errorf("failed to set active wallet: %w", err)
		}
		logger.InfoCF("wallet", "Active wallet switched", map[string]any{
			"address": logger.ShortAddress(address),
		})
		m.notifyLocked(&Session{Wallet: w, UserID: m.userID})
		return &w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownWallet, logger.ShortAddress(address))
}

// Disconnect wipes every key, the wallet list and the PIN.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.vault.WipeAll(ctx); err != nil {
		return err
	}
	for _, k := range []string{securestore.KeyWallets, securestore.KeyActiveWallet} {
		if err := m.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	if err := m.gate.Reset(ctx); err != nil {
		return err
	}
	logger.InfoC("wallet", "Disconnected, all wallet state wiped")
	m.notifyLocked(nil)
	return nil
}

// Signer loads the primary key for address. Call only after the PIN is verified.
func (m *Manager) Signer(ctx context.Context, address string) (solana.PrivateKey, error) {
	secret, err := m.vault.Retrieve(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(secret) != ed25519.PrivateKeySize {
		clear(secret)
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrCorruptKey, len(secret), logger.ShortAddress(address))
	}
	key := solana.PrivateKey(secret)
	if key.PublicKey().String() != address {
		return nil, fmt.Errorf("stored key does not match %s", logger.ShortAddress(address))
	}
	return key, nil
}

func (m *Manager) activeLocked(ctx context.Context) (*Wallet, error) {
	raw, err := m.store.Get(ctx, securestore.KeyActiveWallet)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return nil, ErrNoActiveWallet
		}
		return nil, err
	}
	wallets, err := m.loadWallets(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range wallets {
		if w.Address == string(raw) {
			return &w, nil
		}
	}
	return nil, ErrNoActiveWallet
}

func (m *Manager) loadWallets(ctx context.Context) ([]Wallet, error) {
	raw, err := m.store.Get(ctx, securestore.KeyWallets)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var wallets []Wallet
	if err := json.Unmarshal(raw, &wallets); err != nil {
		return nil, fmt.Errorf("corrupt wallet list: %w", err)
	}
	return wallets, nil
}

func (m *Manager) saveWallets(ctx context.Context, wallets []Wallet) error {
	raw, err := json.Marshal(wallets)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, securestore.KeyWallets, raw); err != nil {
		return fmt.Errorf("failed to save wallet list: %w", err)
	}
	return nil
}

func (m *Manager) notifyLocked(s *Session) {
	for _, fn := range m.listeners {
		fn(s)
	}
}
