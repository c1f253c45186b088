package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/backend/local"
	"github.com/templui/habits/internal/backend/rest"
	"github.com/templui/habits/internal/cli"
	"github.com/templui/habits/internal/config"
	"github.com/templui/habits/internal/db"
	"github.com/templui/habits/internal/habits"
	"github.com/templui/habits/internal/keyring"
	"github.com/templui/habits/internal/logger"
	"github.com/templui/habits/internal/session"
	"github.com/templui/habits/internal/storage"
)

func main() {
	cfg := config.Load()

	// Terminal output stays clean; logs go to a rotating file.
	logger.Init(logger.Options{
		Development: cfg.Debug,
		File:        filepath.Join(cfg.ConfigDir, "logs", "habits.log"),
		Quiet:       !cfg.Debug,
		SentryDSN:   cfg.SentryDSN,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, closeClient, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	state := session.New(client)
	defer state.Close()

	app := &cli.Context{
		State:         state,
		Habits:        habits.New(client, state, habits.WithLocation(loc)),
		PresignExpiry: cfg.S3PresignExpiry,
		Out:           os.Stdout,
	}
	if cfg.HasS3() {
		app.OpenStorage = func(ctx context.Context) (storage.Storage, error) {
			return storage.New(ctx, cfg)
		}
	}

	return cli.Run(ctx, app, os.Args[1:])
}

// newClient selects the backend named by HABITS_BACKEND.
func newClient(cfg *config.Config) (backend.Client, func(), error) {
	switch cfg.Backend {
	case config.BackendRemote:
		client := rest.New(cfg.BackendURL, cfg.BackendKey,
			rest.WithSessionStore(newSessionStore(cfg, cfg.BackendURL)))
		return client, func() {}, nil

	case config.BackendLocal:
		secret, err := cfg.LocalSecret()
		if err != nil {
			return nil, nil, err
		}
		database, err := db.Open(cfg.DBDriver, cfg.DBConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local database: %w", err)
		}
		client := local.NewFromDB(database, local.Options{
			JWTSecret:          secret,
			JWTExpiry:          cfg.JWTExpiry,
			RefreshTokenExpiry: cfg.RefreshTokenExpiry,
			Store:              newSessionStore(cfg, "local"),
		})
		return client, func() { db.Close(database) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown HABITS_BACKEND %q (want %q or %q)",
			cfg.Backend, config.BackendRemote, config.BackendLocal)
	}
}

// newSessionStore prefers the OS keyring and falls back to a private file.
func newSessionStore(cfg *config.Config, server string) backend.SessionStore {
	if cfg.SessionStore == config.SessionStoreKeyring && keyring.IsAvailable() {
		return keyring.NewStore(server)
	}
	return backend.NewFileStore(filepath.Join(cfg.ConfigDir, "session-"+cfg.Backend+".json"))
}

// describe turns service errors into the message the service sent.
func describe(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	if backend.IsUnauthorized(err) {
		return "session expired, run `habits login` again"
	}
	return err.Error()
}
