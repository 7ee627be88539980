package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"conti/internal/auth"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	"conti/internal/log"
	"conti/internal/middleware/ratelimit"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	rt := cli.NewRuntime(context.Background(), logger, cfg)

	var tokens *auth.Tokens
	if cfg.AuthEnabled() {
		var err error
		tokens, err = auth.NewTokens(cfg.JWTSecret)
		if err != nil {
			logger.Error("Failed to initialize token verifier", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Warn("JWT_SECRET not set - API authentication disabled")
	}

	ready := map[string]apphttp.ReadyFunc{"storage": apphttp.ReadyFunc(rt.Backend.Ping)}
	if rt.Redis != nil {
		ready["redis"] = rt.Redis.Ping
	}
	if rt.AMQP != nil {
		ready["amqp"] = rt.AMQP.Ready
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:            rt.Service,
		Tokens:             tokens,
		Ready:              ready,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:          ratelimit.DefaultConfig(),
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting conti server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth", cfg.AuthEnabled(),
		"cache_ttl", cfg.CacheTTL.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		rt.Close(logger)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	rt.Close(logger)
	logger.Info("Server stopped gracefully")
}
