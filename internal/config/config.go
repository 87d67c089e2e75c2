package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	APIBaseURL     string        `env:"API_BASE_URL,default=http://localhost:8080"`
	RefreshPath    string        `env:"REFRESH_PATH,default=/api/auth/refresh"`
	ChatPath       string        `env:"CHAT_WS_PATH,default=/ws"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`

	// Paths whose 401/403 responses mean "log in first" when no token is held.
	AuthRequiredPaths []string `env:"AUTH_REQUIRED_PATHS,default=/api/wishlists,/api/reservations,/api/payments,/api/profile,/api/chat,/api/recent-views"`
	// Server error codes that mark an expired access token. Empty means message matching only.
	ExpiredCodes []string `env:"AUTH_EXPIRED_CODES"`

	ReconnectDelay    time.Duration `env:"CHAT_RECONNECT_DELAY,default=5s"`
	HeartbeatIncoming time.Duration `env:"CHAT_HEARTBEAT_INCOMING,default=4s"`
	HeartbeatOutgoing time.Duration `env:"CHAT_HEARTBEAT_OUTGOING,default=4s"`
	RoomBufferSize    int           `env:"CHAT_ROOM_BUFFER,default=64"`
	HistoryPageSize   int           `env:"CHAT_HISTORY_PAGE_SIZE,default=30"`

	StoragePath string `env:"STORAGE_PATH"`
	StorageKey  string `env:"STORAGE_KEY"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.StoragePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.StoragePath = "sqlite://" + filepath.Join(dir, "staylink", "client.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL: %q", c.APIBaseURL)
	}
	if c.StorageKey != "" {
		if _, err := c.SealKey(); err != nil {
			return err
		}
	}
	if c.RoomBufferSize <= 0 {
		return fmt.Errorf("invalid CHAT_ROOM_BUFFER: %d", c.RoomBufferSize)
	}
	return nil
}

// ChatURL returns the websocket endpoint derived from the API base URL.
func (c *Config) ChatURL() string {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.ChatPath
	return u.String()
}

// SealKey decodes STORAGE_KEY into the 32-byte key used to seal stored values.
func (c *Config) SealKey() (*[32]byte, error) {
	if c.StorageKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.StorageKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid STORAGE_KEY: want 64 hex characters")
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// CleanStoragePath returns a clean filesystem path from the storage URL
func (c *Config) CleanStoragePath() string {
	dbPath := strings.TrimPrefix(c.StoragePath, "sqlite://")
	if dbPath == ":memory:" {
		return dbPath
	}

	if !filepath.IsAbs(dbPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return dbPath
		}
		dbPath = filepath.Join(cwd, dbPath)
	}

	return dbPath
}

// UpdateStoragePath updates the storage path, maintaining the sqlite:// prefix if it was present
func (c *Config) UpdateStoragePath(newPath string) {
	if strings.HasPrefix(c.StoragePath, "sqlite://") {
		c.StoragePath = "sqlite://" + newPath
	} else {
		c.StoragePath = newPath
	}
}
