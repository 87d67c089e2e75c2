package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"staylink/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

const refreshCookie = "refresh_token"

var (
	errTokenExpired = errors.New("token expired")
	errTokenInvalid = errors.New("invalid token")
)

// IssueToken mints an access token for userID. A negative ttl yields an
// already expired token.
func (s *Server) IssueToken(userID string, ttl time.Duration) string {
	s.mu.Lock()
	name := ""
	if u, ok := s.users[userID]; ok {
		name = u.profile.Nickname
	}
	s.mu.Unlock()
	return s.sign(userID, name, "access", ttl)
}

func (s *Server) sign(userID, name, typ string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"nickname": name,
		"typ":      typ,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"jti":      uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// verify parses a token of the given type and returns its subject.
func (s *Server) verify(raw, typ string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.opts.Secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return "", errTokenExpired
		}
		return "", errTokenInvalid
	}
	if claims["typ"] != typ {
		return "", errTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errTokenInvalid
	}
	return sub, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if v, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}

		userID, err := s.verify(raw, "access")
		switch {
		case errors.Is(err, errTokenExpired):
			respondError(w, http.StatusUnauthorized, s.opts.ExpiredCode, "Access token expired")
			return
		case err != nil:
			respondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}

		s.mu.Lock()
		_, ok := s.users[userID]
		s.mu.Unlock()
		if !ok {
			respondError(w, http.StatusForbidden, "FORBIDDEN", "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(userContextKey).(string)
	return id
}

// optionalUser identifies the caller on public routes when a valid token is sent.
func (s *Server) optionalUser(r *http.Request) string {
	raw := bearer(r)
	if raw == "" {
		return ""
	}
	id, err := s.verify(raw, "access")
	if err != nil {
		return ""
	}
	return id
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	u := s.userByEmail(req.Email)
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "LOGIN_FAILED", "이메일 또는 비밀번호가 올바르지 않습니다.")
		return
	}

	s.issueSession(w, u.id, u.profile.Nickname)
	respondJSON(w, http.StatusOK, models.LoginResponse{UserID: u.id, Nickname: u.profile.Nickname})
}

func (s *Server) issueSession(w http.ResponseWriter, userID, name string) {
	w.Header().Set("Authorization", "Bearer "+s.sign(userID, name, "access", s.opts.AccessTTL))
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    s.sign(userID, name, "refresh", s.opts.RefreshTTL),
		Path:     "/api/auth",
		HttpOnly: true,
		Expires:  time.Now().Add(s.opts.RefreshTTL),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if fn := s.refreshHook.Load(); fn != nil {
		(*fn)()
	}
	if s.failRefresh.Load() {
		respondError(w, http.StatusInternalServerError, "REFRESH_FAILED", "refresh unavailable")
		return
	}

	cookie, err := r.Cookie(refreshCookie)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "Refresh token missing")
		return
	}
	userID, err := s.verify(cookie.Value, "refresh")
	if err != nil {
		respondError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token rejected")
		return
	}

	s.mu.Lock()
	u, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token rejected")
		return
	}

	w.Header().Set("Authorization", "Bearer "+s.sign(userID, u.profile.Nickname, "access", s.opts.AccessTTL))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
