package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/db"
	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "slot-generator", "env", cfg.Env)
	logger.Info("slot-generator starting up",
		"interval", cfg.WorkerInterval.String(),
		"horizon_days", cfg.GenerationHorizonDays,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	svc := scheduling.NewService(scheduling.NewPgRepository(pgPool), cfg, nil, nil, logger)

	horizon := cfg.GenerationHorizonDays
	if horizon >= cfg.MaxGenerationDays {
		horizon = cfg.MaxGenerationDays - 1
	}

	// Run once at startup
	runOnce(rootCtx, svc, horizon, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping slot generator")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, horizon, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, horizon int, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	req := scheduling.HorizonRequest(civil.DateOf(start), horizon)

	res, err := svc.GenerateSlots(runCtx, req)
	switch {
	case errors.Is(err, scheduling.ErrNoTemplates):
		logger.Info("no active templates, nothing to generate")
		return
	case err != nil:
		logger.Error("generation run error", "error", err)
		return
	}
	logger.Info("generation run complete",
		"from", req.StartDate.String(),
		"to", req.EndDate.String(),
		"created", res.Created,
		"candidates", res.Candidates,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
