package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/db"
	"github.com/hackgods/slot-booking-core/internal/logging"
)

// Usage:
//
//	migrate          apply pending migrations
//	migrate force N  mark the schema as version N after a failed run
func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "migrate")

	args := flag.Args()
	switch {
	case len(args) == 0 || args[0] == "up":
		if err := db.RunMigrations(cfg.PostgresDSN); err != nil {
			logger.Error("migrate up failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	case args[0] == "force" && len(args) == 2:
		version, err := strconv.Atoi(args[1])
		if err != nil {
			logger.Error("force needs a numeric version", "value", args[1])
			os.Exit(2)
		}
		if err := db.ForceVersion(cfg.PostgresDSN, version); err != nil {
			logger.Error("force version failed", "error", err)
			os.Exit(1)
		}
		logger.Info("schema version forced", "version", version)
	default:
		logger.Error("unknown command", "args", args)
		os.Exit(2)
	}
}
