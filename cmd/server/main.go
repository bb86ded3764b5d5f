package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hookpace/hookpace/internal/api"
	"github.com/hookpace/hookpace/internal/clock"
	"github.com/hookpace/hookpace/internal/config"
	"github.com/hookpace/hookpace/internal/delivery"
	"github.com/hookpace/hookpace/internal/domain"
	"github.com/hookpace/hookpace/internal/metrics"
	"github.com/hookpace/hookpace/internal/notify"
	"github.com/hookpace/hookpace/internal/queue"
	"github.com/hookpace/hookpace/internal/registry"
	"github.com/hookpace/hookpace/internal/transport"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- destination registry ----
	// With a DATABASE_URL the registry persists across restarts; without one
	// destinations are configured over the API and live in memory.
	ctx := context.Background()
	var reg registry.Registry
	if cfg.DatabaseURL != "" {
		pool, err := registry.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := registry.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
		reg = registry.NewPgRegistry(pool)
	} else {
		logger.Info("no DATABASE_URL set, using in-memory destination registry")
		reg = registry.NewMemRegistry()
	}

	// ---- core dependencies ----
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	clk := clock.New()
	sender := transport.NewHTTPSender(cfg.DeliveryTimeout)

	// Deliverer and notifier are constructed against forward declarations of
	// each other's hooks; the manager is wired last.
	var mgr *queue.Manager
	notifier := notify.NewNotifier(
		func(id string) (domain.ProgressEvent, bool) { return mgr.Snapshot(id) },
		notify.NewLogRenderer(logger),
		clk,
		cfg.ProgressInterval,
		logger,
	)

	deliverer := delivery.NewDeliverer(
		sender, clk,
		cfg.MaxAttempts, cfg.HTTPRetryDelay, cfg.NetRetryDelay,
		func(ev domain.CompletionEvent) {
			m.OnComplete(ev)
			notifier.Cleared(ev.DestinationID)
		},
		logger,
	)

	mgr = queue.NewManager(deliverer, clk, queue.Hooks{
		OnDeferred: func(ev domain.ProgressEvent) {
			m.OnDeferred(ev)
			notifier.Deferred(ev)
		},
		OnCleared:  notifier.Cleared,
		OnDispatch: m.OnDispatch,
		OnDepth:    m.OnDepth,
	}, logger)

	// Rehydrate static destination configuration from the registry.
	dests, err := reg.List(ctx)
	if err != nil {
		logger.Fatal("failed to load destinations", zap.Error(err))
	}
	if err := mgr.Configure(dests); err != nil {
		logger.Warn("some persisted destinations were not configured", zap.Error(err))
	}
	logger.Info("destinations configured", zap.Int("count", len(dests)))

	// ---- HTTP server ----
	enqueueLimiter := rate.NewLimiter(rate.Limit(cfg.EnqueueRateLimit), cfg.EnqueueBurst)
	router := api.NewRouter(mgr, reg, promReg, enqueueLimiter, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Cancel pending wake timers; queued entries are not durable.
	mgr.Stop()

	// 3. Abort retry waits and wait for in-flight deliveries to return.
	deliverer.Close()

	// 4. Drop progress notification timers.
	notifier.Shutdown()

	logger.Info("server stopped cleanly")
}
