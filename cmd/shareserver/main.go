package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyp0633/libguestshare/folder"
	foldermemory "github.com/cyp0633/libguestshare/folder/memory"
	"github.com/cyp0633/libguestshare/folder/postgres"
	"github.com/cyp0633/libguestshare/internal/config"
	"github.com/cyp0633/libguestshare/server"
	"github.com/cyp0633/libguestshare/server/auth"
	"github.com/cyp0633/libguestshare/server/session"
	"github.com/cyp0633/libguestshare/server/storage/memory"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(fs)
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	logger := slog.New(zapslog.NewHandler(zl.Core()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newZapLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	directory := memory.New()

	folders, closeFolders, err := newFolderService(ctx, cfg.Folder, logger)
	if err != nil {
		return err
	}
	defer closeFolders()

	sharer, err := folder.NewSharer(folders, logger.With("component", "sharer"))
	if err != nil {
		return err
	}

	if err := seedDemo(ctx, directory, folders, sharer, logger); err != nil {
		return err
	}

	issuer, err := newIssuer(cfg, logger)
	if err != nil {
		return err
	}

	cookies, err := newCookieWriter(cfg.Cookie)
	if err != nil {
		return err
	}

	handler, err := server.NewShareHandler(server.Config{
		Prefix: cfg.Prefix,
		Realm:  cfg.Realm,
		UIPath: cfg.UIPath,
		Logger: logger.With("component", "share"),
	}, directory, auth.NewBcryptAuthenticator(auth.WithLogger(logger)), issuer, cookies)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(handler.Prefix, handler)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting share server",
			"addr", cfg.Listen,
			"prefix", handler.Prefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down share server")
		return srv.Shutdown(shutdownCtx)
	}
}

func newFolderService(ctx context.Context, cfg config.FolderConfig, logger *slog.Logger) (folder.Service, func(), error) {
	switch cfg.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.New(db, logger.With("component", "folders"))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate folder schema: %w", err)
		}
		return store, func() { db.Close() }, nil
	default:
		return foldermemory.New(), func() {}, nil
	}
}

func newIssuer(cfg *config.Config, logger *slog.Logger) (session.Issuer, error) {
	switch cfg.Session.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return session.NewRedisIssuer(client, session.RedisConfig{
			TTL:           cfg.Session.TTL,
			MaxPerGuest:   cfg.Session.MaxPerGuest,
			RatePerMinute: cfg.Session.RatePerMinute,
			Logger:        logger.With("component", "sessions"),
		})
	default:
		opts := []session.MemoryOption{
			session.WithMaxSessions(cfg.Session.MaxSessions),
			session.WithTTL(cfg.Session.TTL),
			session.WithLogger(logger.With("component", "sessions")),
		}
		if cfg.Session.RatePerMinute > 0 {
			opts = append(opts, session.WithRate(float64(cfg.Session.RatePerMinute), cfg.Session.RatePerMinute))
		}
		return session.NewMemoryIssuer(opts...), nil
	}
}

// newCookieWriter uses the configured keys, or random ones that do not
// survive a restart.
func newCookieWriter(cfg config.CookieConfig) (*session.SecureCookieWriter, error) {
	hashKey := []byte(cfg.HashKey)
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(64)
	}
	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
	}
	return session.NewSecureCookieWriter(hashKey, blockKey, "/")
}
