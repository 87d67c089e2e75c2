// Package mockapi is an in-memory stand-in for the booking API and its chat
// broker. Tests run it under httptest; cmd/mockserver serves it locally.
package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"staylink/internal/logging"
	"staylink/internal/models"
)

// Seeded accounts.
const (
	GuestID       = "guest-1"
	GuestEmail    = "guest@stay.example"
	GuestPassword = "stay1234!"
	GuestName     = "게스트"

	HostID       = "host-1"
	HostEmail    = "host@stay.example"
	HostPassword = "host1234!"
	HostName     = "호스트"
)

type Options struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ExpiredCode is sent as "code" on expired-token responses.
	ExpiredCode string
	// Heartbeat is the interval the broker offers in CONNECTED; 0 disables it.
	Heartbeat time.Duration
	Logger    zerolog.Logger
}

type user struct {
	id       string
	email    string
	hash     []byte
	profile  models.Profile
	recent   []models.RecentView
	wishlist []*wishlist
}

type wishlist struct {
	models.Wishlist
	items []int64
}

type chatRoom struct {
	id       string
	members  [2]string
	messages []models.ChatMessage
	unread   map[string]int
}

type Server struct {
	opts   Options
	logger zerolog.Logger
	broker *Broker

	mu             sync.Mutex
	users          map[string]*user
	accommodations []*models.Accommodation
	reservations   map[int64]*reservation
	payments       map[string]*models.Payment
	reviews        []*models.Review
	rooms          map[string]*chatRoom
	nextID         int64

	refreshCalls atomic.Int64
	failRefresh  atomic.Bool
	refreshHook  atomic.Pointer[func()]
}

type reservation struct {
	models.Reservation
	userID string
}

func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("mockapi-secret")
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 14 * 24 * time.Hour
	}

	s := &Server{
		opts:         opts,
		logger:       logging.Component(opts.Logger, "mockapi"),
		users:        make(map[string]*user),
		reservations: make(map[int64]*reservation),
		payments:     make(map[string]*models.Payment),
		rooms:        make(map[string]*chatRoom),
		nextID:       100,
	}
	s.broker = newBroker(s)
	s.seed()
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.broker.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.logRequest)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/accommodations", s.handleSearch)
		r.Get("/accommodations/{id}", s.handleAccommodation)
		r.Get("/accommodations/{id}/reviews", s.handleReviews)
		r.Post("/chatbot", s.handleChatbot)

		r.Group(func(r chi.Router) {
			r.Use(s.withAuth)

			r.Get("/profile", s.handleProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Get("/recent-views", s.handleRecentViews)

			r.Get("/wishlists", s.handleWishlists)
			r.Post("/wishlists", s.handleCreateWishlist)
			r.Put("/wishlists/{id}", s.handleRenameWishlist)
			r.Delete("/wishlists/{id}", s.handleDeleteWishlist)
			r.Get("/wishlists/{id}/accommodations", s.handleWishlistItems)
			r.Post("/wishlists/{id}/accommodations", s.handleAddWishlistItem)
			r.Delete("/wishlists/{id}/accommodations/{accommodationId}", s.handleRemoveWishlistItem)

			r.Get("/reservations", s.handleReservations)
			r.Post("/reservations", s.handleCreateReservation)
			r.Get("/reservations/{id}", s.handleReservation)
			r.Delete("/reservations/{id}", s.handleCancelReservation)
			r.Post("/payments/save", s.handleSavePayment)
			r.Post("/payments/confirm", s.handleConfirmPayment)

			r.Post("/reviews", s.handleCreateReview)
			r.Put("/reviews/{id}", s.handleUpdateReview)
			r.Delete("/reviews/{id}", s.handleDeleteReview)

			r.Get("/chat/rooms", s.handleChatRooms)
			r.Post("/chat/rooms", s.handleStartChat)
			r.Get("/chat/rooms/{roomId}/messages", s.handleChatMessages)
			r.Post("/chat/rooms/{roomId}/read", s.handleChatRead)
		})
	})
	return r
}

func (s *Server) Broker() *Broker { return s.broker }

// RefreshCalls counts refresh requests that reached the server.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// FailRefresh makes every refresh answer 500.
func (s *Server) FailRefresh(fail bool) { s.failRefresh.Store(fail) }

// OnRefresh runs fn inside each refresh request before it answers.
func (s *Server) OnRefresh(fn func()) {
	if fn == nil {
		s.refreshHook.Store(nil)
		return
	}
	s.refreshHook.Store(&fn)
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, password, nickname string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "user-" + strconv.FormatInt(s.nextID, 10)
	s.addUserLocked(id, email, hash, nickname)
	return id
}

func (s *Server) addUserLocked(id, email string, hash []byte, nickname string) {
	s.users[id] = &user{
		id:    id,
		email: email,
		hash:  hash,
		profile: models.Profile{
			UserID:   id,
			Email:    email,
			Nickname: nickname,
		},
	}
}

func (s *Server) userByEmail(email string) *user {
	for _, u := range s.users {
		if u.email == email {
			return u
		}
	}
	return nil
}

func (s *Server) seed() {
	for _, acc := range []struct{ id, email, password, name string }{
		{GuestID, GuestEmail, GuestPassword, GuestName},
		{HostID, HostEmail, HostPassword, HostName},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(acc.password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		s.addUserLocked(acc.id, acc.email, hash, acc.name)
	}

	s.accommodations = []*models.Accommodation{
		{ID: 1, Name: "바다 앞 오션뷰 스테이", Category: "PENSION", Region: "강릉", Address: "강원 강릉시 해안로 12", PricePerNight: 120000, MaxGuests: 4, Rating: 4.8, ReviewCount: 1, HostID: HostID, HostName: HostName, Amenities: []string{"wifi", "parking"}},
		{ID: 2, Name: "한옥 게스트하우스", Category: "GUESTHOUSE", Region: "전주", Address: "전북 전주시 한옥마을길 3", PricePerNight: 80000, MaxGuests: 2, Rating: 4.6, HostID: HostID, HostName: HostName},
		{ID: 3, Name: "시티 호텔 명동", Category: "HOTEL", Region: "서울", Address: "서울 중구 명동길 7", PricePerNight: 150000, MaxGuests: 3, Rating: 4.2, HostID: HostID, HostName: HostName},
		{ID: 4, Name: "제주 감귤밭 독채", Category: "PENSION", Region: "제주", Address: "제주 서귀포시 감귤로 21", PricePerNight: 200000, MaxGuests: 6, Rating: 4.9, HostID: HostID, HostName: HostName},
	}
	s.reviews = []*models.Review{
		{ID: 1, AccommodationID: 1, AuthorID: GuestID, AuthorName: GuestName, Rating: 5, Content: "바다가 바로 보여서 정말 좋았어요.", CreatedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
	}
}

func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("completed")
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, models.ErrorBody{Status: status, Code: code, Message: message})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("malformed request body")
	}
	return nil
}

func paramID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

// paginate slices items into a 1-based page.
func paginate[T any](items []T, r *http.Request, defaultSize int) models.Page[T] {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}

	total := len(items)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	totalPage := (total + size - 1) / size

	contents := make([]T, end-start)
	copy(contents, items[start:end])
	return models.Page[T]{
		Contents:      contents,
		Page:          page,
		Size:          size,
		TotalPage:     totalPage,
		TotalElements: int64(total),
		HasPrev:       page > 1,
		HasNext:       page < totalPage,
	}
}
