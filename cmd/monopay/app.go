package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sipeed/monopay/pkg/api"
	"github.com/sipeed/monopay/pkg/blockchain"
	"github.com/sipeed/monopay/pkg/config"
	"github.com/sipeed/monopay/pkg/contacts"
	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/payment"
	"github.com/sipeed/monopay/pkg/price"
	"github.com/sipeed/monopay/pkg/resolver"
	"github.com/sipeed/monopay/pkg/securestore"
	"github.com/sipeed/monopay/pkg/session"
	"github.com/sipeed/monopay/pkg/wallet"
	"github.com/sipeed/monopay/pkg/walletsync"
)

var configPathFlag string

func getConfigPath() string {
	if configPathFlag != "" {
		return configPathFlag
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".monopay", "config.json")
}

// app holds every component for one CLI invocation.
type app struct {
	cfg       *config.Config
	store     securestore.Store
	vault     *wallet.KeyVault
	gate      *wallet.AuthGate
	wallets   *wallet.Manager
	backend   *api.Client
	ledger    *blockchain.Client
	transfers *blockchain.TransferService
	oracle    *price.Oracle
	contacts  *contacts.Book
	resolver  *resolver.Resolver
	sessions  *session.Manager
	syncer    *walletsync.Syncer
}

func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if cfg.EnsureUserID() {
		if err := config.SaveConfig(path, cfg); err != nil {
			logger.WarnCF("cli", "Could not persist user id", map[string]any{"error": err.Error()})
		}
	}
	logger.Configure(os.Stderr, cfg.Log.Format, logger.ParseLevel(cfg.Log.Level))
	return cfg, nil
}

// openApp loads config, unlocks the secure store and wires every component.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	passphrase, err := storePassphrase(cfg)
	if err != nil {
		return nil, err
	}
	store, err := securestore.OpenSQLite(ctx, cfg.DataPath(), passphrase)
	clear(passphrase)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	a.backend = api.NewClient(cfg.Backend.BaseURL, cfg.Backend.UserID, api.WithTimeout(cfg.BackendTimeout()))
	a.vault = wallet.NewKeyVault(store)
	a.gate = wallet.NewAuthGate(store)
	a.wallets = wallet.NewManager(store, a.vault, a.gate, a.backend, cfg.Backend.UserID)
	a.ledger = blockchain.NewClient(cfg.Ledger.RPCURL, cfg.Ledger.Commitment)
	a.transfers = blockchain.NewTransferService(a.ledger)

	oracleOpts := []price.Option{
		price.WithUSDINR(cfg.Price.USDINR),
		price.WithFallbackRate(cfg.Price.FallbackINRRate),
		price.WithTTL(cfg.QuoteTTL()),
	}
	if cfg.Price.UseBackend {
		oracleOpts = append(oracleOpts, price.WithBackend(a.backend, cfg.Payment.Token))
	}
	a.oracle = price.NewOracle(cfg.Price.SourceURL, oracleOpts...)

	a.contacts, err = contacts.Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.resolver = resolver.New(a.backend,
		resolver.WithMinLength(cfg.Resolver.MinLength),
		resolver.WithDebounce(cfg.Debounce()),
		resolver.WithNames(a.contacts),
	)
	a.sessions = session.NewManager(a.backend, a.vault)
	a.syncer = walletsync.New(a.ledger,
		walletsync.WithInterval(cfg.SyncInterval()),
		walletsync.WithSignatureLimit(cfg.Sync.SignatureLimit),
		walletsync.WithDetailDelay(cfg.DetailDelay()),
	)
	a.wallets.OnChange(func(s *wallet.Session) {
		if s == nil {
			a.syncer.SetActive("")
			return
		}
		a.syncer.SetActive(s.Wallet.Address)
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.WarnCF("cli", "Failed to close secure store", map[string]any{"error": err.Error()})
	}
}

// pipeline builds a payment pipeline owned by the active wallet's session.
func (a *app) pipeline(ctx context.Context) (*payment.Pipeline, *wallet.Session, error) {
	owner, err := a.wallets.Session(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.syncer.SetActive(owner.Wallet.Address)

	p := payment.New(*owner, payment.Deps{
		Resolver:  a.resolver,
		Quoter:    a.oracle,
		Gate:      a.gate,
		Keys:      a.wallets,
		Sessions:  a.sessions,
		Backend:   a.backend,
		Transfers: a.transfers,
		Refresher: a.syncer,
		Contacts:  a.contacts,
	}, payment.Config{
		Token:           a.cfg.Payment.Token,
		FastPathEnabled: a.cfg.Payment.FastPathEnabled,
		ExplorerLink:    a.cfg.ExplorerLink,
	})
	return p, owner, nil
}
