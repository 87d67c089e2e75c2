package db

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "client.db"), opts...)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestGetSetDelete(t *testing.T) {
	database := newTestDB(t)

	if _, ok, err := database.Get(AccessTokenKey); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := database.Set(AccessTokenKey, "first"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := database.Set(AccessTokenKey, "second"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, ok, err := database.Get(AccessTokenKey)
	if err != nil || !ok || got != "second" {
		t.Fatalf("Get() = %q, %v, %v; want second, true, nil", got, ok, err)
	}

	if err := database.Delete(AccessTokenKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := database.Get(AccessTokenKey); ok {
		t.Error("Get() after Delete() still found value")
	}
}

func TestKeys(t *testing.T) {
	database := newTestDB(t)
	_ = database.Set(WishlistKey, "{}")
	_ = database.Set(AccessTokenKey, "{}")

	keys, err := database.Keys()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	want := []string{AccessTokenKey, WishlistKey}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}

func TestSealedValues(t *testing.T) {
	key := &[32]byte{1, 2, 3}
	path := filepath.Join(t.TempDir(), "sealed.db")

	sealed, err := NewDB(path, WithSealKey(key))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	if err := sealed.Set(AccessTokenKey, "secret-token"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var raw []byte
	if err := sealed.QueryRow("SELECT value FROM kv WHERE key = ?", AccessTokenKey).Scan(&raw); err != nil {
		t.Fatalf("raw read error = %v", err)
	}
	if string(raw) == "secret-token" {
		t.Error("value stored in plain text")
	}

	got, ok, err := sealed.Get(AccessTokenKey)
	if err != nil || !ok || got != "secret-token" {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}
	sealed.Close()

	other, err := NewDB(path, WithSealKey(&[32]byte{9}))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	defer other.Close()
	if _, _, err := other.Get(AccessTokenKey); !errors.Is(err, ErrSealed) {
		t.Errorf("Get() with wrong key error = %v, want ErrSealed", err)
	}
}
