package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/examcraft/qbank/internal/cache"
	"github.com/examcraft/qbank/internal/config"
	"github.com/examcraft/qbank/internal/crypto"
	"github.com/examcraft/qbank/internal/logging"
	"github.com/examcraft/qbank/internal/qbank"
	"github.com/examcraft/qbank/internal/ratelimit"
	"github.com/examcraft/qbank/internal/store"
	"github.com/examcraft/qbank/internal/web"
)

func main() {
	// .env is optional; real deployments provide the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	masterKey, err := cfg.Crypto.MasterKey()
	if err != nil {
		return err
	}
	codec, err := crypto.NewCodec(crypto.StaticKeyProvider(masterKey))
	if err != nil {
		return err
	}

	cacheClient := cache.NewMemoryClient(cfg.Cache.CleanupInterval)
	defer cacheClient.Close()

	var limiter qbank.RateLimiter
	if cfg.Rate.Enabled {
		limiter = ratelimit.New(cacheClient, cfg.Rate.MaxRequests, cfg.Rate.Window, slog.Default())
	}

	service := qbank.NewService(store.New(pool), codec, limiter, qbank.Options{
		BatchSize:   cfg.Import.BatchSize,
		MaxRows:     cfg.Import.MaxRows,
		MaxFileSize: int(cfg.Import.MaxFileSize),
		PageSize:    cfg.Export.PageSize,
		MaxRecords:  cfg.Export.MaxRecords,
	})

	auth := web.NewAuthenticator(cfg.Security.APIKeys, cfg.Security.BulkAPIKeys, cfg.Security.RequireAPIKey)
	server := web.NewServer(service, auth)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr())
		errCh <- server.Start(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
