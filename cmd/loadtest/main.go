package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"staylink/internal/api"
	"staylink/internal/logging"
	"staylink/internal/mockapi"
	"staylink/internal/models"
	"staylink/internal/session"
)

// loadConfig drives the run. Without LOADTEST_BASE_URL an in-process mock
// API is started with short-lived access tokens so every user goes through
// several refresh cycles while traffic is in flight.
type loadConfig struct {
	BaseURL     string        `env:"LOADTEST_BASE_URL"`
	Users       int           `env:"LOADTEST_USERS,default=200"`
	Rate        int           `env:"LOADTEST_RATE,default=1"`
	Burst       int           `env:"LOADTEST_BURST,default=3"`
	Duration    time.Duration `env:"LOADTEST_DURATION,default=30s"`
	WriteRatio  float64       `env:"LOADTEST_WRITE_RATIO,default=0.3"`
	AccessTTL   time.Duration `env:"LOADTEST_ACCESS_TTL,default=5s"`
	LoginBatch  int           `env:"LOADTEST_LOGIN_BATCH,default=20"`
	MetricsAddr string        `env:"LOADTEST_METRICS_ADDR"`
	LogLevel    string        `env:"LOG_LEVEL,default=info"`
}

type OperationType int

const (
	WriteOperation OperationType = iota
	ReadOperation
)

// seeded accommodation ids the mock serves
const accommodations = 4

type Stats struct {
	sync.Mutex
	totalRequests     int64
	successRequests   int64
	failedRequests    int64
	forcedLogouts     int64
	totalLatency      time.Duration
	maxLatency        time.Duration
	minLatency        time.Duration
	requestsPerSecond float64
	writeLatencies    []time.Duration
	readLatencies     []time.Duration
}

func (s *Stats) recordSuccess(latency time.Duration, opType OperationType) {
	s.Lock()
	defer s.Unlock()
	s.totalRequests++
	s.successRequests++
	s.totalLatency += latency
	if latency > s.maxLatency {
		s.maxLatency = latency
	}
	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}

	switch opType {
	case WriteOperation:
		s.writeLatencies = append(s.writeLatencies, latency)
	case ReadOperation:
		s.readLatencies = append(s.readLatencies, latency)
	}
}

func (s *Stats) recordError(err error) {
	s.Lock()
	defer s.Unlock()
	s.totalRequests++
	s.failedRequests++
	if errors.Is(err, api.ErrForcedLogout) {
		s.forcedLogouts++
	}
}

func (s *Stats) calculateStats(duration time.Duration) {
	s.Lock()
	defer s.Unlock()
	s.requestsPerSecond = float64(s.totalRequests) / duration.Seconds()
}

func (s *Stats) averageLatency() time.Duration {
	s.Lock()
	defer s.Unlock()
	if s.successRequests == 0 {
		return 0
	}
	return s.totalLatency / time.Duration(s.successRequests)
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *Stats) getP99WriteLatency() time.Duration {
	s.Lock()
	defer s.Unlock()
	return percentile(s.writeLatencies, 0.99)
}

func (s *Stats) getP99ReadLatency() time.Duration {
	s.Lock()
	defer s.Unlock()
	return percentile(s.readLatencies, 0.99)
}

type simUser struct {
	id       int
	session  *session.Store
	client   *api.Client
	wishlist int64
	roomID   string
}

func newSimUser(id int, baseURL string, logger zerolog.Logger) (*simUser, error) {
	sess := session.NewStore(nil, logger)
	sess.MarkInitialized()
	client, err := api.NewClient(sess, api.Options{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		AuthRequiredPaths: []string{
			"/api/wishlists", "/api/reservations", "/api/payments",
			"/api/profile", "/api/chat", "/api/recent-views",
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &simUser{id: id, session: sess, client: client}, nil
}

// prepare logs the user in and creates the wishlist and chat room the
// simulation works against.
func (u *simUser) prepare(ctx context.Context, email, password string) error {
	if _, err := u.client.Login(ctx, models.LoginRequest{Email: email, Password: password}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	name := fmt.Sprintf("load-%d-%s", u.id, uuid.NewString()[:8])
	list, err := u.client.CreateWishlist(ctx, name)
	if err != nil {
		return fmt.Errorf("create wishlist: %w", err)
	}
	u.wishlist = list.ID

	room, err := u.client.StartChat(ctx, models.StartChatRequest{CounterpartID: mockapi.HostID})
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	u.roomID = room.RoomID
	return nil
}

func (u *simUser) read(ctx context.Context) error {
	switch rand.Intn(3) {
	case 0:
		_, err := u.client.SearchAccommodations(ctx, models.SearchQuery{Page: 1, Size: 10})
		return err
	case 1:
		_, err := u.client.ListWishlists(ctx)
		return err
	default:
		_, err := u.client.FetchMessages(ctx, u.roomID, 1, 30)
		return err
	}
}

// write toggles one accommodation in the user's wishlist. slot keeps
// concurrent writes of one burst on distinct accommodations.
func (u *simUser) write(ctx context.Context, slot int) error {
	accID := int64(slot%accommodations + 1)
	if err := u.client.AddToWishlist(ctx, u.wishlist, accID, ""); err != nil {
		return err
	}
	return u.client.RemoveFromWishlist(ctx, u.wishlist, accID)
}

func simulateUser(ctx context.Context, u *simUser, cfg loadConfig, stats *Stats, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Second / time.Duration(cfg.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// A burst of concurrent calls from one session is what lands
		// several requests on the same expired token.
		var wg sync.WaitGroup
		for slot := 0; slot < cfg.Burst; slot++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()

				opType := ReadOperation
				if rand.Float64() < cfg.WriteRatio {
					opType = WriteOperation
				}

				start := time.Now()
				var err error
				if opType == WriteOperation {
					err = u.write(ctx, slot)
				} else {
					err = u.read(ctx)
				}
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.recordError(err)
					logger.Debug().Err(err).Int("user", u.id).Msg("operation failed")
					return
				}
				stats.recordSuccess(duration, opType)
			}(slot)
		}
		wg.Wait()
	}
}

func startEmbedded(cfg loadConfig, logger zerolog.Logger) (*mockapi.Server, string, func(), error) {
	mock := mockapi.New(mockapi.Options{
		AccessTTL: cfg.AccessTTL,
		Logger:    logger.Level(zerolog.WarnLevel),
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", nil, err
	}
	srv := &http.Server{Handler: mock.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln)

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return mock, "http://" + ln.Addr().String(), stop, nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg loadConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		bootLogger := logging.New("info", os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel, os.Stdout)
	if cfg.Rate <= 0 || cfg.Burst <= 0 || cfg.Users <= 0 || cfg.LoginBatch <= 0 {
		logger.Fatal().Msg("LOADTEST_USERS, LOADTEST_RATE, LOADTEST_BURST and LOADTEST_LOGIN_BATCH must be positive")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	var mock *mockapi.Server
	baseURL := cfg.BaseURL
	if baseURL == "" {
		m, url, stopServer, err := startEmbedded(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("start embedded mock API")
		}
		defer stopServer()
		mock, baseURL = m, url
		logger.Info().Str("url", baseURL).Dur("access_ttl", cfg.AccessTTL).Msg("embedded mock API started")
	}

	logger.Info().
		Int("users", cfg.Users).
		Int("rate", cfg.Rate).
		Int("burst", cfg.Burst).
		Dur("duration", cfg.Duration).
		Msg("starting load test")

	users := make([]*simUser, cfg.Users)
	clientLogger := logger.Level(zerolog.WarnLevel)

	startTime := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.LoginBatch)
	var failures sync.Map
	for i := range users {
		i := i
		g.Go(func() error {
			email, password := mockapi.GuestEmail, mockapi.GuestPassword
			if mock != nil {
				email = fmt.Sprintf("load%d@stay.example", i)
				password = "load1234!"
				mock.AddUser(email, password, fmt.Sprintf("부하%d", i))
			}
			u, err := newSimUser(i, baseURL, clientLogger)
			if err == nil {
				err = u.prepare(gctx, email, password)
			}
			if err != nil {
				failures.Store(i, err)
				return nil
			}
			users[i] = u
			return nil
		})
	}
	_ = g.Wait()

	errorCount := 0
	failures.Range(func(key, value any) bool {
		errorCount++
		if errorCount <= 10 {
			logger.Warn().Err(value.(error)).Interface("user", key).Msg("user setup failed")
		}
		return true
	})

	setupDuration := time.Since(startTime)
	logger.Info().
		Dur("took", setupDuration).
		Float64("users_per_sec", float64(cfg.Users)/setupDuration.Seconds()).
		Int("failed", errorCount).
		Msg("user setup completed")

	if errorCount > cfg.Users/2 {
		logger.Fatal().Msg("too many setup failures, aborting load test")
	}

	stats := &Stats{
		writeLatencies: make([]time.Duration, 0, 1024),
		readLatencies:  make([]time.Duration, 0, 1024),
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	start := time.Now()
	for _, u := range users {
		if u == nil {
			continue
		}
		wg.Add(1)
		go func(u *simUser) {
			defer wg.Done()
			simulateUser(runCtx, u, cfg, stats, logger)
		}(u)
	}
	wg.Wait()
	duration := time.Since(start)

	stats.calculateStats(duration)

	result := logger.Info().
		Int64("total_requests", stats.totalRequests).
		Int64("successful_requests", stats.successRequests).
		Int64("failed_requests", stats.failedRequests).
		Int64("forced_logouts", stats.forcedLogouts).
		Dur("avg_latency", stats.averageLatency()).
		Dur("min_latency", stats.minLatency).
		Dur("max_latency", stats.maxLatency).
		Dur("p99_write_latency", stats.getP99WriteLatency()).
		Dur("p99_read_latency", stats.getP99ReadLatency()).
		Float64("requests_per_sec", stats.requestsPerSecond).
		Dur("total_duration", duration)
	if mock != nil {
		result = result.Int64("refresh_calls", mock.RefreshCalls())
	}
	result.Msg("load test results")
}
