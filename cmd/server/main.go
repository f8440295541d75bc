package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/api"
	"github.com/Harshitk-cp/selfgraph/internal/buildconfig"
	"github.com/Harshitk-cp/selfgraph/internal/config"
	"github.com/Harshitk-cp/selfgraph/internal/engine"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger, err := engine.NewLogger(config.LogLevel())
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid LOG_LEVEL, using info", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, engine.OptionsFromConfig(), logger)
	if err != nil {
		logger.Fatal("failed to open engine", zap.Error(err))
	}
	defer eng.Close()

	health := make(map[string]api.Pinger, len(eng.Health))
	for name, p := range eng.Health {
		health[name] = p
	}

	app := api.NewApp(api.Services{
		Resolver:    eng.Resolver,
		Belief:      eng.Belief,
		Suggestions: eng.Suggestions,
		Conflicts:   eng.Conflicts,
		Profile:     eng.Profile,
	}, api.Options{
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		TrustProxy:     config.TrustProxy(),
		Health:         health,
	}, logger)

	go app.RateLimiter.Run(ctx, 10*time.Minute)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.Bool("auth", config.APIKey() != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server stopped")
}
