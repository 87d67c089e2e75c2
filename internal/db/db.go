package db

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/secretbox"

	"staylink/internal/logging"
)

// Fixed keys of the state the client keeps across restarts.
const (
	AccessTokenKey = "access-token-storage"
	WishlistKey    = "wishlist-storage"
)

var ErrSealed = errors.New("stored value cannot be opened with the configured key")

type DB struct {
	*sql.DB
	key    *[32]byte
	logger zerolog.Logger
}

type Option func(*DB)

// WithSealKey seals every stored value with secretbox.
func WithSealKey(key *[32]byte) Option {
	return func(db *DB) { db.key = key }
}

func WithLogger(l zerolog.Logger) Option {
	return func(db *DB) { db.logger = logging.Component(l, "db") }
}

func NewDB(dbPath string, opts ...Option) (*DB, error) {
	if dbPath != ":memory:" {
		dbDir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dbDir, 0700); err != nil {
			return nil, fmt.Errorf("error creating storage directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening storage: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error connecting to storage: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logging.Nop()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// Get returns the value stored under key and whether it exists.
func (db *DB) Get(key string) (string, bool, error) {
	var raw []byte
	err := db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	value, err := db.open(raw)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (db *DB) Set(key, value string) error {
	raw, err := db.seal(value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	_, err = db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, raw, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	db.logger.Debug().Str("key", key).Msg("stored value")
	return nil
}

func (db *DB) Delete(key string) error {
	if _, err := db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in name order.
func (db *DB) Keys() ([]string, error) {
	rows, err := db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// sealed layout: 24-byte nonce followed by the secretbox output.
func (db *DB) seal(value string) ([]byte, error) {
	if db.key == nil {
		return []byte(value), nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(value), &nonce, db.key), nil
}

func (db *DB) open(raw []byte) (string, error) {
	if db.key == nil {
		return string(raw), nil
	}
	if len(raw) < 24+secretbox.Overhead {
		return "", ErrSealed
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, db.key)
	if !ok {
		return "", ErrSealed
	}
	return string(out), nil
}
