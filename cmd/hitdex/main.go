package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/hitdex/internal/config"
	"github.com/kailas-cloud/hitdex/internal/db"
	dbRedis "github.com/kailas-cloud/hitdex/internal/db/redis"
	logpkg "github.com/kailas-cloud/hitdex/internal/logger"
	"github.com/kailas-cloud/hitdex/internal/metrics"
	archiverepo "github.com/kailas-cloud/hitdex/internal/repository/archive"
	chiTransport "github.com/kailas-cloud/hitdex/internal/transport/chi"
	healthuc "github.com/kailas-cloud/hitdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/hitdex/internal/usecase/search"
	"github.com/kailas-cloud/hitdex/internal/usecase/session"
	"github.com/kailas-cloud/hitdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting hitdex API server", append(version.Fields(),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)...)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterEngineMetrics()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	// Pass nil interfaces (not typed nil pointers) when no database is configured.
	var (
		archive searchuc.Archive
		pinger  healthuc.DBPinger
	)
	if store != nil {
		archive = archiverepo.New(store, cfg.Archive.KeyPrefix, cfg.Archive.ArchiveTTL())
		pinger = store
	}

	registry := searchuc.New(searchuc.Config{
		Engine: session.Options{
			FilterDepth:  cfg.Engine.FilterDepth,
			MaxDistance:  cfg.Engine.MaxEditDistance,
			Ratio:        cfg.Engine.EditDistanceRatio,
			VerifyIndex:  cfg.Engine.VerifyIndex,
			EventLogSize: cfg.Engine.EventLogSize,
			Logger:       logger,
		},
		IdleTimeout: cfg.Engine.IdleTimeout(),
		RatePerSec:  cfg.Ingest.RatePerSec,
		Burst:       cfg.Ingest.Burst,
	}, archive, logger)
	healthSvc := healthuc.New(pinger, registry)

	server := chiTransport.NewServer(registry, healthSvc, logger).WithMaxBatch(cfg.Ingest.MaxBatch)
	router := chiTransport.NewRouter(server, logger, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunSweeper(gctx, cfg.Engine.SweepInterval())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		registry.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err //nolint:wrapcheck // already wrapped by the failing component
	}
	return nil
}

// openStore connects to the archive database. Returns nil when archiving is disabled.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (db.Store, error) {
	if cfg.Driver == config.DriverNone {
		logger.Info("Archive database disabled")
		return nil, nil
	}

	// Valkey speaks the Redis protocol; both drivers share one client.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Driver))
	return store, nil
}
