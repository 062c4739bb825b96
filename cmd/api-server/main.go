package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/slot-booking-core/internal/api"
	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/db"
	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/metrics"
	"github.com/hackgods/slot-booking-core/internal/notify"
	redisclient "github.com/hackgods/slot-booking-core/internal/redis"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "api-server", "env", cfg.Env)
	logger.Info("api-server starting up", "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := db.RunMigrations(cfg.PostgresDSN); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Redis is optional; without it retried POSTs are simply re-executed.
	var (
		rdb   *redis.Client
		store api.IdempotencyStore
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		store = redisclient.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR not set, idempotent replay disabled")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if sg := notify.NewSendGridNotifier(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
		Templates: cfg.EmailTemplates,
	}, logger); sg != nil {
		notifier = sg
		logger.Info("sendgrid notifications enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	repo := scheduling.NewPgRepository(pgPool)
	svc := scheduling.NewService(repo, cfg, notifier, metrics.NewSchedulingMetrics(reg), logger)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, only public routes are reachable")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		PgPool:      pgPool,
		Redis:       rdb,
		Idempotency: store,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
		Metrics:     metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := svc.WaitNotifications(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", "error", err)
	}
	logger.Info("api-server stopped")
}
