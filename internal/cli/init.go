// Package cli provides the start-up wiring shared by cmd/conti and
// cmd/conti-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cache"
	"conti/internal/config"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
)

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads .env and the environment, then validates.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	config.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured store or exits the process.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize storage backend", log.FieldError, err, "backend", bc.Type.String())
		os.Exit(1)
	}
	return result
}

// Runtime holds the reconciliation service and the optional infrastructure
// around it. Close releases everything it opened.
type Runtime struct {
	Service *services.ReconciliationService
	Backend *backend.BackendResult
	Cache   *cache.Manager
	Redis   *cache.RedisStore[core.Report]
	AMQP    *amqp.Client
}

// NewRuntime assembles the service. Redis and AMQP are optional; a failure
// to reach either is logged and the service runs without it.
func NewRuntime(ctx context.Context, logger *log.Logger, cfg *config.Config) *Runtime {
	rt := &Runtime{Backend: OpenBackend(ctx, logger, cfg)}

	results := cache.NewResultCache[core.Report](cfg.CacheTTL, cache.WithMaxEntries(cfg.CacheMaxEntries))
	rt.Cache = cache.NewManager(logger.Logger.With(log.FieldComponent, log.ComponentCache))
	rt.Cache.Register(results)
	rt.Cache.StartCleanup(cfg.CacheCleanupInterval)

	opts := []services.Option{services.WithLogger(logger)}

	if cfg.RedisURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := cache.NewRedisStoreFromURL[core.Report](connectCtx, cfg.RedisURL, cfg.CacheTTL)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, using in-process cache only", log.FieldError, err)
		} else {
			rt.Redis = store
			opts = append(opts, services.WithSharedCache(store))
			logger.Info("Shared result cache enabled")
		}
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, change notifications disabled", log.FieldError, err)
		} else {
			rt.AMQP = client
			opts = append(opts, services.WithPublisher(client))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	rt.Service = services.NewReconciliationService(rt.Backend.Store, results, opts...)
	return rt
}

// Close stops the cache sweeper and closes every open connection.
func (rt *Runtime) Close(logger *log.Logger) {
	rt.Cache.Stop()
	if rt.AMQP != nil {
		_ = rt.AMQP.Close()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			logger.Warn("Failed to close redis client", log.FieldError, err)
		}
	}
	if err := rt.Backend.Cleanup(); err != nil {
		logger.Warn("Failed to close storage backend", log.FieldError, err)
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// cleanup function runs with a context bounded by timeout, and done is
// closed once it returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has
// finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
