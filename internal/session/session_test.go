package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"staylink/internal/db"
	"staylink/internal/logging"
)

type memStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string]string{}}
}

func (m *memStorage) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestSetTokenPersistsAndNotifies(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage, logging.Nop())

	var seen []string
	unsubscribe := store.Subscribe(func(token string) { seen = append(seen, token) })

	store.SetToken("abc")
	store.SetToken("abc")
	store.Clear()
	unsubscribe()
	store.SetToken("after")

	if want := []string{"abc", ""}; strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("observers saw %q, want %q", seen, want)
	}

	raw, ok, _ := storage.Get(db.AccessTokenKey)
	if !ok || !strings.Contains(raw, `"accessToken":"after"`) {
		t.Errorf("persisted = %s", raw)
	}
}

func TestClearPersistsNull(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage, logging.Nop())
	store.SetToken("abc")
	store.Clear()

	raw, _, _ := storage.Get(db.AccessTokenKey)
	if !strings.Contains(raw, `"accessToken":null`) {
		t.Errorf("persisted after Clear() = %s", raw)
	}
}

func TestRestore(t *testing.T) {
	storage := newMemStorage()
	NewStore(storage, logging.Nop()).SetToken("kept")

	restored := NewStore(storage, logging.Nop())
	restored.Restore()
	if got := restored.Token(); got != "kept" {
		t.Errorf("Restore() token = %q, want kept", got)
	}

	_ = storage.Set(db.AccessTokenKey, "not json")
	broken := NewStore(storage, logging.Nop())
	broken.Restore()
	if got := broken.Token(); got != "" {
		t.Errorf("Restore() from garbage token = %q, want empty", got)
	}
}

func TestMarkInitialized(t *testing.T) {
	store := NewStore(nil, logging.Nop())
	if store.Initialized() {
		t.Fatal("new store should not be initialized")
	}
	store.MarkInitialized()
	store.MarkInitialized()
	if !store.Initialized() {
		t.Error("MarkInitialized() did not stick")
	}
}

func TestWaitForToken(t *testing.T) {
	store := NewStore(nil, logging.Nop())

	if _, ok := store.WaitForToken(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("WaitForToken() reported a token on an empty store")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		store.SetToken("late")
	}()
	token, ok := store.WaitForToken(context.Background(), time.Second)
	if !ok || token != "late" {
		t.Errorf("WaitForToken() = %q, %v; want late, true", token, ok)
	}

	token, ok = store.WaitForToken(context.Background(), time.Millisecond)
	if !ok || token != "late" {
		t.Errorf("WaitForToken() with token present = %q, %v", token, ok)
	}
}

func TestDecodeIdentity(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		wantID   string
		wantName string
		wantOK   bool
	}{
		{name: "sub and nickname", claims: jwt.MapClaims{"sub": "42", "nickname": "mina"}, wantID: "42", wantName: "mina", wantOK: true},
		{name: "numeric user_id", claims: jwt.MapClaims{"user_id": 7, "username": "jun"}, wantID: "7", wantName: "jun", wantOK: true},
		{name: "no id claim", claims: jwt.MapClaims{"name": "nobody"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := DecodeIdentity(signToken(t, tt.claims))
			if ok != tt.wantOK {
				t.Fatalf("DecodeIdentity() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (id.UserID != tt.wantID || id.Name != tt.wantName) {
				t.Errorf("DecodeIdentity() = %+v", id)
			}
		})
	}

	if _, ok := DecodeIdentity("garbage"); ok {
		t.Error("DecodeIdentity() accepted a malformed token")
	}
}
