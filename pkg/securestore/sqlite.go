package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/scrypt"
	_ "modernc.org/sqlite"

	"github.com/sipeed/monopay/pkg/logger"
)

const (
	saltSize = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS secure_items (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore seals every value with AES-256-GCM before it reaches disk.
// The sealing key is derived with scrypt from the device passphrase and a
// per-database salt.
type SQLiteStore struct {
	db   *sql.DB
	aead cipher.AEAD
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string, passphrase []byte) (*SQLiteStore, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("securestore: empty passphrase")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("securestore: create dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=secure_delete(on)&_pragma=busy_timeout(5000)&_txlock=exclusive"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("securestore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("securestore: migrate: %w", err)
	}

	salt, err := loadOrCreateSalt(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("securestore: derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		db.Close()
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, aead: aead}
	if err := s.checkSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.DebugCF("securestore", "Secure store opened", map[string]any{"path": path})
	return s, nil
}

func loadOrCreateSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	var salt []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("securestore: read salt: %w", err)
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO meta(name, value) VALUES('salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("securestore: write salt: %w", err)
	}
	return salt, nil
}

// checkSchema stamps a fresh database and verifies the passphrase on an
// existing one by opening the sealed version record.
func (s *SQLiteStore) checkSchema(ctx context.Context) error {
	v, err := s.Get(ctx, KeySchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return s.Set(ctx, KeySchemaVersion, []byte(SchemaVersion))
	}
	if err != nil {
		return err
	}
	if string(v) != SchemaVersion {
		return fmt.Errorf("securestore: unsupported schema version %q", v)
	}
	return nil
}

func (s *SQLiteStore) seal(plain []byte, key string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	// the key name is bound as associated data so blobs cannot be swapped between rows
	return append(nonce, s.aead.Seal(nil, nonce, plain, []byte(key))...), nil
}

func (s *SQLiteStore) open(sealed []byte, key string) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, errors.New("securestore: ciphertext too short")
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("securestore: unseal %s: %w", key, err)
	}
	return plain, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM secure_items WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("securestore: get %s: %w", key, err)
	}
	return s.open(blob, key)
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	blob, err := s.seal(value, key)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO secure_items(key, blob, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		key, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("securestore: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secure_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("securestore: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM secure_items WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("securestore: list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
