package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"staylink/internal/logging"
	"staylink/internal/mockapi"
)

type serverConfig struct {
	ServerAddress string        `env:"SERVER_ADDRESS,default=:8080"`
	JWTSecret     string        `env:"JWT_SECRET,default=local-development-secret"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL,default=336h"`
	ExpiredCode   string        `env:"EXPIRED_CODE"`
	Heartbeat     time.Duration `env:"CHAT_HEARTBEAT,default=10s"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg serverConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		bootLogger := logging.New("info", os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	logger.Info().
		Str("addr", cfg.ServerAddress).
		Dur("access_ttl", cfg.AccessTTL).
		Dur("refresh_ttl", cfg.RefreshTTL).
		Msg("starting mock booking API")

	mock := mockapi.New(mockapi.Options{
		Secret:      []byte(cfg.JWTSecret),
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
		ExpiredCode: cfg.ExpiredCode,
		Heartbeat:   cfg.Heartbeat,
		Logger:      logger,
	})
	logger.Info().
		Str("guest", mockapi.GuestEmail).
		Str("host", mockapi.HostEmail).
		Msg("seeded accounts")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(mock.Handler(), "mockapi"))

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	mock.Broker().Kick()
}
