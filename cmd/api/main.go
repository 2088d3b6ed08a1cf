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

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	httpx "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("userhub exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Env:         cfg.Env,
		StoreDriver: cfg.StoreDriver,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	deps := httpx.Deps{
		Prom:    prom,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}

	// store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		repo := memory.NewUsersRepo()
		deps.Users = repo
		deps.Ready = append(deps.Ready, handlers.ReadinessCheck{Name: "db", Ping: repo.Ping})
		log.Warn("using in-memory store, data is lost on restart")

	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		if cfg.AutoMigrate {
			if err := db.MigratePool(ctx, pool, "up"); err != nil {
				return err
			}
			log.Info("migrations applied")
		}

		deps.Users = postgres.NewUsersRepo(pool, prom)
		deps.Ready = append(deps.Ready, handlers.ReadinessCheck{Name: "db", Ping: pool.Ping})

	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// cache
	store, closeCache := buildCache(cfg)
	if closeCache != nil {
		defer closeCache()
	}
	if store != nil {
		deps.Cache = store
		deps.Ready = append(deps.Ready, handlers.ReadinessCheck{Name: "cache", Ping: store.Ping})
	} else {
		log.Info("read cache disabled", "store", cfg.StoreDriver)
	}

	// notifications
	var inner notifications.Notifier = notifications.NewLogNotifier(log)
	if len(cfg.KafkaBrokers) > 0 {
		kn := notifications.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kn.Close()

		inner = kn
		log.Info("publishing user events to kafka", "topic", cfg.KafkaTopic)
	}
	deps.Notifier = notifications.NewProtectedNotifier(inner, notifications.ProtectedNotifierConfig{
		Timeout:          2 * time.Second,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	})

	router := httpx.NewRouter(log, cfg, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// buildCache picks the read cache. Redis is shared by every replica; the
// in-process map only sees this process's writes, so it is used with the
// memory store alone. A non-positive CACHE_TTL turns caching off.
func buildCache(cfg config.Config) (cache.Store, func() error) {
	if cfg.CacheTTL <= 0 {
		return nil, nil
	}

	switch {
	case cfg.RedisAddr != "":
		rc := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		return rc, rc.Close
	case cfg.StoreDriver == config.StoreDriverMemory:
		return cache.New(cfg.CacheTTL), nil
	default:
		return nil, nil
	}
}
