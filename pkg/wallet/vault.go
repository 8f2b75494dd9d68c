package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/securestore"
)

// KeyVault owns every secret key at rest. Values are base64 blobs under
// address-derived names and never leave the vault except at sign time.
type KeyVault struct {
	store securestore.Store
}

func NewKeyVault(store securestore.Store) *KeyVault {
	return &KeyVault{store: store}
}

func (v *KeyVault) Store(ctx context.Context, address string, secret []byte) error {
	blob := []byte(base64.StdEncoding.EncodeToString(secret))
	if err := v.store.Set(ctx, securestore.SecretKey(address), blob); err != nil {
		return fmt.Errorf("failed to store key for %s: %w", logger.ShortAddress(address), err)
	}
	return nil
}

// Retrieve returns ErrKeyNotFound when nothing is stored for address.
func (v *KeyVault) Retrieve(ctx context.Context, address string) ([]byte, error) {
	return v.load(ctx, securestore.SecretKey(address))
}

func (v *KeyVault) load(ctx context.Context, name string) ([]byte, error) {
	blob, err := v.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	secret, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		return nil, fmt.Errorf("corrupt key blob: %w", err)
	}
	return secret, nil
}

// GenerateSessionKey creates and persists a fresh ephemeral keypair, replacing any previous one.
func (v *KeyVault) GenerateSessionKey(ctx context.Context) (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	blob := []byte(base64.StdEncoding.EncodeToString(key))
	if err := v.store.Set(ctx, securestore.KeySessionKey, blob); err != nil {
		return nil, fmt.Errorf("failed to store session key: %w", err)
	}
	logger.InfoCF("vault", "Session key generated", map[string]any{
		"public_key": logger.ShortAddress(key.PublicKey().String()),
	})
	return key, nil
}

// SessionKey returns the stored session keypair or ErrKeyNotFound.
func (v *KeyVault) SessionKey(ctx context.Context) (solana.PrivateKey, error) {
	secret, err := v.load(ctx, securestore.KeySessionKey)
	if err != nil {
		return nil, err
	}
	return solana.PrivateKey(secret), nil
}

func (v *KeyVault) DeleteSessionKey(ctx context.Context) error {
	return v.store.Delete(ctx, securestore.KeySessionKey)
}

func (v *KeyVault) Wipe(ctx context.Context, address string) error {
	return v.store.Delete(ctx, securestore.SecretKey(address))
}

// WipeAll removes every stored wallet secret and the session key.
func (v *KeyVault) WipeAll(ctx context.Context) error {
	keys, err := v.store.Keys(ctx, securestore.SecretPrefix)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	keys = append(keys, securestore.KeySessionKey)
	for _, k := range keys {
		if err := v.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", k, err)
		}
	}
	logger.InfoCF("vault", "All keys wiped", map[string]any{"count": len(keys)})
	return nil
}
