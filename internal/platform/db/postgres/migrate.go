package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationActions は Migrate が受け付ける操作です。
var MigrationActions = []string{"up", "down", "drop", "version"}

// ErrUnsupportedAction は未知のマイグレーション操作です。
var ErrUnsupportedAction = errors.New("postgres: unsupported migration action")

// Migrate は dir のマイグレーションを dsn のデータベースに適用します。
func Migrate(action, dir, dsn string, logger *slog.Logger) error {
	if !isMigrationAction(action) {
		return fmt.Errorf("%w %q", ErrUnsupportedAction, action)
	}
	if logger == nil {
		logger = slog.Default()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", dir, err)
	}
	absDir = filepath.ToSlash(absDir)

	m, err := migrate.New(fmt.Sprintf("file://%s", absDir), dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "drop":
		return m.Drop()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info("no migration applied")
				return nil
			}
			return err
		}
		logger.Info("migration version", "version", version, "dirty", dirty)
	}
	return nil
}

func isMigrationAction(action string) bool {
	for _, a := range MigrationActions {
		if a == action {
			return true
		}
	}
	return false
}
