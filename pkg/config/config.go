package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Ledger   LedgerConfig   `json:"ledger"`
	Price    PriceConfig    `json:"price"`
	Sync     SyncConfig     `json:"sync"`
	Resolver ResolverConfig `json:"resolver"`
	Storage  StorageConfig  `json:"storage"`
	Payment  PaymentConfig  `json:"payment"`
	Log      LogConfig      `json:"log"`
	mu       sync.RWMutex
}

type BackendConfig struct {
	BaseURL        string `json:"base_url" env:"MONOPAY_BACKEND_BASE_URL"`
	UserID         string `json:"user_id" env:"MONOPAY_BACKEND_USER_ID"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"MONOPAY_BACKEND_TIMEOUT_SECONDS"`
}

type LedgerConfig struct {
	RPCURL      string `json:"rpc_url" env:"MONOPAY_LEDGER_RPC_URL"`
	Commitment  string `json:"commitment" env:"MONOPAY_LEDGER_COMMITMENT"`
	ExplorerURL string `json:"explorer_url" env:"MONOPAY_LEDGER_EXPLORER_URL"`
}

type PriceConfig struct {
	SourceURL       string  `json:"source_url" env:"MONOPAY_PRICE_SOURCE_URL"`
	USDINR          float64 `json:"usd_inr" env:"MONOPAY_PRICE_USD_INR"`
	FallbackINRRate float64 `json:"fallback_inr_rate" env:"MONOPAY_PRICE_FALLBACK_INR_RATE"`
	QuoteTTLSeconds int     `json:"quote_ttl_seconds" env:"MONOPAY_PRICE_QUOTE_TTL_SECONDS"`
	UseBackend      bool    `json:"use_backend" env:"MONOPAY_PRICE_USE_BACKEND"`
}

type SyncConfig struct {
	IntervalSeconds int `json:"interval_seconds" env:"MONOPAY_SYNC_INTERVAL_SECONDS"`
	SignatureLimit  int `json:"signature_limit" env:"MONOPAY_SYNC_SIGNATURE_LIMIT"`
	DetailDelayMS   int `json:"detail_delay_ms" env:"MONOPAY_SYNC_DETAIL_DELAY_MS"`
}

type ResolverConfig struct {
	MinLength  int `json:"min_length" env:"MONOPAY_RESOLVER_MIN_LENGTH"`
	DebounceMS int `json:"debounce_ms" env:"MONOPAY_RESOLVER_DEBOUNCE_MS"`
}

type StorageConfig struct {
	Path          string `json:"path" env:"MONOPAY_STORAGE_PATH"`
	PassphraseEnv string `json:"passphrase_env" env:"MONOPAY_STORAGE_PASSPHRASE_ENV"`
}

type PaymentConfig struct {
	Token           string `json:"token" env:"MONOPAY_PAYMENT_TOKEN"`
	FastPathEnabled bool   `json:"fast_path_enabled" env:"MONOPAY_PAYMENT_FAST_PATH_ENABLED"`
}

type LogConfig struct {
	Level  string `json:"level" env:"MONOPAY_LOG_LEVEL"`
	Format string `json:"format" env:"MONOPAY_LOG_FORMAT"`
}

// NativeToken is the only asset the wallet path can transfer.
const NativeToken = "SOL"

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080/v1",
			UserID:         "",
			TimeoutSeconds: 10,
		},
		Ledger: LedgerConfig{
			RPCURL:      "https://api.devnet.solana.com",
			Commitment:  "confirmed",
			ExplorerURL: "https://solscan.io/tx/%s?cluster=devnet",
		},
		Price: PriceConfig{
			SourceURL:       "https://api.binance.com/api/v3/ticker/price?symbol=SOLUSDT",
			USDINR:          83.5,
			FallbackINRRate: 15000,
			QuoteTTLSeconds: 30,
		},
		Sync: SyncConfig{
			IntervalSeconds: 30,
			SignatureLimit:  5,
			DetailDelayMS:   200,
		},
		Resolver: ResolverConfig{
			MinLength:  3,
			DebounceMS: 300,
		},
		Storage: StorageConfig{
			Path:          "~/.monopay/vault.db",
			PassphraseEnv: "MONOPAY_VAULT_PASSPHRASE",
		},
		Payment: PaymentConfig{
			Token:           NativeToken,
			FastPathEnabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Ledger.RPCURL); err != nil {
		return fmt.Errorf("ledger.rpc_url: %w", err)
	}
	if c.Price.FallbackINRRate <= 0 {
		return fmt.Errorf("price.fallback_inr_rate must be positive")
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	if c.Sync.SignatureLimit <= 0 {
		return fmt.Errorf("sync.signature_limit must be positive")
	}
	if !strings.EqualFold(c.Payment.Token, NativeToken) {
		return fmt.Errorf("payment.token %q is not supported, only %s transfers are implemented", c.Payment.Token, NativeToken)
	}
	c.Payment.Token = NativeToken
	return nil
}

// EnsureUserID assigns a random caller identity the first time the client runs.
// It reports whether the config changed and needs saving.
func (c *Config) EnsureUserID() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Backend.UserID != "" {
		return false
	}
	c.Backend.UserID = "usr_" + uuid.NewString()
	return true
}

func (c *Config) DataPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func (c *Config) DetailDelay() time.Duration {
	return time.Duration(c.Sync.DetailDelayMS) * time.Millisecond
}

func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.Price.QuoteTTLSeconds) * time.Second
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Resolver.DebounceMS) * time.Millisecond
}

// ExplorerLink formats a transaction signature into a block explorer URL.
func (c *Config) ExplorerLink(signature string) string {
	if c.Ledger.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf(c.Ledger.ExplorerURL, signature)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
