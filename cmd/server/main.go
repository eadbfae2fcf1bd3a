package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ogurasousui/attendance-sync/internal/adapters/repository/memory"
	"github.com/ogurasousui/attendance-sync/internal/adapters/repository/postgres"
	"github.com/ogurasousui/attendance-sync/internal/adapters/repository/sheet"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/platform/config"
	pg "github.com/ogurasousui/attendance-sync/internal/platform/db/postgres"
	"github.com/ogurasousui/attendance-sync/internal/platform/logging"
	"github.com/ogurasousui/attendance-sync/internal/platform/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid server config", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, tx, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()
	logger.Info("attendance store ready", "driver", cfg.Store.Driver)

	policy := cfg.Attendance.Policy()
	svc := attendance.NewService(repo, policy, nil, tx,
		attendance.WithZones(cfg.Attendance.GeoZones(), cfg.Attendance.EnforceGeofence))

	srv := server.New(cfg.Server.GRPCListenAddr, cfg.Server.HTTPListenAddr, svc, policy, server.Options{
		Logger:    logger,
		AccessLog: os.Stdout,
	})
	return srv.Run(ctx)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStore(ctx context.Context, cfg *config.Config) (attendance.Repository, attendance.TransactionManager, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := pg.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize database pool: %w", err)
		}
		closer := closerFunc(func() error {
			pool.Close()
			return nil
		})
		return postgres.NewAttendanceRepository(pool), pg.NewTransactionManager(pool), closer, nil
	case config.StoreSheet:
		repo, err := sheet.Open(cfg.Store.SheetPath, cfg.Store.SheetName, cfg.Attendance.Location)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sheet store: %w", err)
		}
		return repo, nil, repo, nil
	case config.StoreMemory:
		return memory.NewAttendanceRepository(), nil, closerFunc(func() error { return nil }), nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
