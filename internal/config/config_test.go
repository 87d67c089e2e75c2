package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.example.test")
	t.Setenv("STORAGE_PATH", "sqlite://"+filepath.Join(t.TempDir(), "client.db"))

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RefreshPath != "/api/auth/refresh" {
		t.Errorf("RefreshPath = %q", cfg.RefreshPath)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.ReconnectDelay)
	}
	if len(cfg.AuthRequiredPaths) == 0 {
		t.Error("AuthRequiredPaths should have defaults")
	}
	if len(cfg.ExpiredCodes) != 0 {
		t.Errorf("ExpiredCodes = %v, want empty", cfg.ExpiredCodes)
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "not a url")
	t.Setenv("STORAGE_PATH", ":memory:")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("Load() expected error for invalid base url")
	}
}

func TestChatURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{name: "http", base: "http://localhost:8080", path: "/ws", want: "ws://localhost:8080/ws"},
		{name: "https with prefix", base: "https://stay.example.com/backend/", path: "/ws", want: "wss://stay.example.com/backend/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{APIBaseURL: tt.base, ChatPath: tt.path}
			if got := cfg.ChatURL(); got != tt.want {
				t.Errorf("ChatURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSealKey(t *testing.T) {
	cfg := &Config{StorageKey: strings.Repeat("ab", 32)}
	key, err := cfg.SealKey()
	if err != nil {
		t.Fatalf("SealKey() error = %v", err)
	}
	if key == nil || key[0] != 0xab {
		t.Errorf("SealKey() = %v", key)
	}

	cfg.StorageKey = "abcd"
	if _, err := cfg.SealKey(); err == nil {
		t.Error("SealKey() expected error for short key")
	}

	cfg.StorageKey = ""
	if key, err := cfg.SealKey(); err != nil || key != nil {
		t.Errorf("SealKey() = %v, %v; want nil, nil", key, err)
	}
}

func TestStoragePathHelpers(t *testing.T) {
	cfg := &Config{StoragePath: "sqlite:///tmp/staylink/client.db"}
	if got := cfg.CleanStoragePath(); got != "/tmp/staylink/client.db" {
		t.Errorf("CleanStoragePath() = %q", got)
	}

	cfg.UpdateStoragePath("/tmp/other.db")
	if cfg.StoragePath != "sqlite:///tmp/other.db" {
		t.Errorf("UpdateStoragePath() = %q", cfg.StoragePath)
	}

	cfg = &Config{StoragePath: "relative.db"}
	if got := cfg.CleanStoragePath(); !filepath.IsAbs(got) {
		t.Errorf("CleanStoragePath() = %q, want absolute", got)
	}
}
