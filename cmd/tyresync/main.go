// Command tyresync serves the tyre installation API and pushes the refreshed
// collection to every connected browser after each committed write.
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	tyhttp "github.com/Strob0t/tyresync/internal/adapter/http"
	tynats "github.com/Strob0t/tyresync/internal/adapter/nats"
	"github.com/Strob0t/tyresync/internal/adapter/natskv"
	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/adapter/postgres"
	"github.com/Strob0t/tyresync/internal/adapter/ristretto"
	"github.com/Strob0t/tyresync/internal/adapter/tiered"
	"github.com/Strob0t/tyresync/internal/adapter/ws"
	"github.com/Strob0t/tyresync/internal/config"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/logger"
	"github.com/Strob0t/tyresync/internal/middleware"
	"github.com/Strob0t/tyresync/internal/port/cache"
	"github.com/Strob0t/tyresync/internal/resilience"
	"github.com/Strob0t/tyresync/internal/service"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	args := os.Args[1:]

	var err error
	switch {
	case len(args) > 0 && args[0] == "admin":
		err = runAdmin(args[1:])
	case len(args) > 0 && args[0] == "serve":
		err = runServe(args[1:])
	default:
		err = runServe(args)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats_enabled", cfg.NATS.Enabled,
		"topic", cfg.Realtime.Topic,
		"version", version,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	tel, err := otel.Setup(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	store := postgres.NewStore(pool)

	var queue *tynats.Queue
	if cfg.NATS.Enabled {
		queue, err = tynats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, relay and l2 cache disabled", "error", err)
		} else {
			defer func() {
				if err := queue.Drain(); err != nil {
					slog.Warn("nats drain", "error", err)
				}
			}()
		}
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	var l2 cache.Cache
	if queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			slog.Warn("l2 cache disabled", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			l2 = natskv.New(kv)
		}
	}
	responses := tiered.New(l1, l2, cfg.Idempotency.TTL)

	// --- Fan-out ---

	registry := service.NewConnectionRegistry(metrics)
	channel := service.NewBroadcastChannel(registry, metrics)
	notifier := service.NewMutationNotifier(channel, metrics)
	installations := service.NewInstallationService(store, notifier, realtime.Topic(cfg.Realtime.Topic))

	breaker := resilience.NewBreaker("relay", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	health := tyhttp.HealthDeps{Store: store, Observers: registry, Breaker: breaker}
	if queue != nil {
		health.Queue = queue
		relay := service.NewMutationRelay(queue, breaker, notifier, map[realtime.Topic]realtime.SnapshotProvider{
			installations.Topic(): installations.Snapshot,
		}, metrics)
		cancelRelay, err := relay.Start(ctx)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		defer cancelRelay()
	}

	hub := ws.NewHub(registry, ws.Options{
		AllowedOrigin: cfg.Server.CORSOrigin,
		SendBuffer:    cfg.Realtime.SendBuffer,
		WriteTimeout:  cfg.Realtime.WriteTimeout,
		PingInterval:  cfg.Realtime.PingInterval,
		ReadLimit:     cfg.Realtime.ReadLimit,
	})

	// --- HTTP ---

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	idempotency := middleware.NewIdempotency(responses, cfg.Idempotency.TTL)

	handlers := &tyhttp.Handlers{
		Installations: installations,
		Observers:     registry,
		BodyLimit:     cfg.Server.BodyLimit,
		Version:       version,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(tyhttp.SecurityHeaders)
	r.Use(tyhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tyhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", tyhttp.HealthHandler(health))
	r.Handle("/metrics", tel.Handler)
	r.Get("/ws", hub.HandleWS)

	// Long-lived WebSocket connections stay outside the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		tyhttp.MountRoutes(r, handlers, limiter.Handler, idempotency.Handler)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "observers", registry.Len())

		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
