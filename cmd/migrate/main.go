package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/ogurasousui/attendance-sync/internal/platform/config"
	pg "github.com/ogurasousui/attendance-sync/internal/platform/db/postgres"
	"github.com/ogurasousui/attendance-sync/internal/platform/logging"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		migrationsDir = flag.String("dir", "assets/migrations", "directory containing migration files")
	)
	flag.Parse()

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	if err := cfg.ValidateDatabase(); err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(1)
	}

	if err := pg.Migrate(action, *migrationsDir, cfg.Database.DSN(), logger); err != nil {
		logger.Error("migration failed", "action", action, "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "action", action)
}
