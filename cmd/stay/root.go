package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"staylink/internal/api"
	"staylink/internal/chat"
	"staylink/internal/config"
	"staylink/internal/db"
	"staylink/internal/logging"
	"staylink/internal/session"
	"staylink/internal/websocket"
)

var (
	verbose      bool
	outputFormat string
	apiOverride  string
	storagePath  string
	version      = "dev"
)

// application holds every state container a command may use. Commands get
// it from the root's PersistentPreRunE; nothing is global beyond flags.
type application struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *db.DB
	session *session.Store
	client  *api.Client
	chat    *chat.Store
	channel *websocket.Channel
	hint    *loginHint
}

var app *application

// loginHint tells the user how to sign in, at most once per run.
type loginHint struct {
	once sync.Once
	w    io.Writer
}

func (h *loginHint) show() {
	h.once.Do(func() {
		fmt.Fprintln(h.w, "Not logged in. Run `stay login --email <email>` first.")
	})
}

var rootCmd = &cobra.Command{
	Use:   "stay",
	Short: "Booking platform client",
	Long: `stay talks to the booking API from the terminal.

It keeps you logged in between runs, refreshes expired sessions on its own,
and can follow host chats in real time.

Quick Start:
  stay login --email you@example.com
  stay search 강릉 --check-in 2026-11-01 --check-out 2026-11-03
  stay chat open <room-id>`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		app = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&apiOverride, "api", "", "API base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&storagePath, "storage", "", "Path of the local state database")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if apiOverride != "" {
		cfg.APIBaseURL = apiOverride
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if storagePath != "" {
		cfg.UpdateStoragePath(storagePath)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)

	key, err := cfg.SealKey()
	if err != nil {
		return nil, err
	}
	dbOpts := []db.Option{db.WithLogger(logger)}
	if key != nil {
		dbOpts = append(dbOpts, db.WithSealKey(key))
	}
	store, err := db.NewDB(cfg.CleanStoragePath(), dbOpts...)
	if err != nil {
		return nil, err
	}

	hint := &loginHint{w: os.Stderr}

	sess := session.NewStore(store, logger)
	sess.Restore()
	sess.MarkInitialized()

	client, err := api.NewClient(sess, api.Options{
		BaseURL:           cfg.APIBaseURL,
		RefreshPath:       cfg.RefreshPath,
		Timeout:           cfg.RequestTimeout,
		AuthRequiredPaths: cfg.AuthRequiredPaths,
		ExpiredCodes:      cfg.ExpiredCodes,
		OnLoginRequired: func() {
			logger.Debug().Msg("protected call without a session")
			hint.show()
		},
		Storage: store,
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	selfID := func() string {
		id, _ := sess.Identity()
		return id.UserID
	}
	rooms := chat.NewStore(client, selfID, cfg.HistoryPageSize, logger)

	channel := websocket.NewChannel(sess, rooms, websocket.Options{
		URL:               cfg.ChatURL(),
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatIncoming: cfg.HeartbeatIncoming,
		HeartbeatOutgoing: cfg.HeartbeatOutgoing,
		RoomBuffer:        cfg.RoomBufferSize,
		Logger:            logger,
	})

	// A cleared session ends the realtime connection too.
	sess.Subscribe(func(token string) {
		if token == "" {
			go channel.Disconnect()
		}
	})

	return &application{
		cfg:     cfg,
		logger:  logger,
		db:      store,
		session: sess,
		client:  client,
		chat:    rooms,
		channel: channel,
		hint:    hint,
	}, nil
}

func (a *application) Close() {
	a.channel.Disconnect()
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close storage")
	}
}
