// Package session holds the bearer token the client authenticates with.
// The token is observable and survives restarts through a Storage.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/rs/zerolog"

	"staylink/internal/db"
	"staylink/internal/logging"
)

// Storage is the durable key-value store the token is persisted to.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type Identity struct {
	UserID string
	Name   string
}

type persisted struct {
	State struct {
		AccessToken *string `json:"accessToken"`
	} `json:"state"`
	Version int `json:"version"`
}

type Store struct {
	mu          sync.RWMutex
	token       string
	initialized bool
	observers   map[int]func(string)
	nextID      int

	storage Storage
	logger  zerolog.Logger
}

func NewStore(storage Storage, logger zerolog.Logger) *Store {
	return &Store{
		observers: make(map[int]func(string)),
		storage:   storage,
		logger:    logging.Component(logger, "session"),
	}
}

// Restore loads a previously persisted token without notifying observers.
func (s *Store) Restore() {
	if s.storage == nil {
		return
	}
	raw, ok, err := s.storage.Get(db.AccessTokenKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to restore session")
		return
	}
	if !ok {
		return
	}

	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable session")
		return
	}

	s.mu.Lock()
	if p.State.AccessToken != nil {
		s.token = *p.State.AccessToken
	}
	s.mu.Unlock()
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) SetToken(token string) {
	s.mu.Lock()
	if s.token == token {
		s.mu.Unlock()
		return
	}
	s.token = token
	observers := make([]func(string), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	s.persist(token)
	for _, fn := range observers {
		fn(token)
	}
}

func (s *Store) Clear() {
	s.SetToken("")
}

func (s *Store) MarkInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Subscribe registers fn for token changes. Observers run on the goroutine
// that changed the token and must not block.
func (s *Store) Subscribe(fn func(token string)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// WaitForToken blocks until a token is present, ctx ends, or timeout elapses.
// A false result means the caller should treat the user as logged out.
func (s *Store) WaitForToken(ctx context.Context, timeout time.Duration) (string, bool) {
	ready := make(chan string, 1)
	unsubscribe := s.Subscribe(func(token string) {
		if token == "" {
			return
		}
		select {
		case ready <- token:
		default:
		}
	})
	defer unsubscribe()

	if token := s.Token(); token != "" {
		return token, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case token := <-ready:
		return token, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Identity decodes the user the current token was issued to. The signature
// is not verified; the server does that on every call.
func (s *Store) Identity() (Identity, bool) {
	return DecodeIdentity(s.Token())
}

func DecodeIdentity(token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return Identity{}, false
	}

	var id Identity
	for _, k := range []string{"sub", "userId", "user_id", "id"} {
		if v := claimString(claims[k]); v != "" {
			id.UserID = v
			break
		}
	}
	for _, k := range []string{"name", "nickname", "username"} {
		if v := claimString(claims[k]); v != "" {
			id.Name = v
			break
		}
	}
	return id, id.UserID != ""
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func (s *Store) persist(token string) {
	if s.storage == nil {
		return
	}
	var p persisted
	if token != "" {
		p.State.AccessToken = &token
	}
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode session")
		return
	}
	if err := s.storage.Set(db.AccessTokenKey, string(data)); err != nil {
		s.logger.Error().Err(fmt.Errorf("persist session: %w", err)).Msg("session kept in memory only")
	}
}
