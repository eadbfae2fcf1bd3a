//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	repo "github.com/ogurasousui/attendance-sync/internal/adapters/repository/postgres"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/ogurasousui/attendance-sync/internal/platform/config"
	pg "github.com/ogurasousui/attendance-sync/internal/platform/db/postgres"
)

const migrationsDir = "../assets/migrations"

func TestAttendanceLifecycleIntegration(t *testing.T) {
	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if err := resetMigrations(cfg.Database.DSN(), migrationsDir); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	ctx := context.Background()
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	policy := cfg.Attendance.Policy()
	loc := policy.Location
	now := time.Now().In(loc)
	checkIn := time.Date(now.Year(), now.Month(), now.Day(), 7, 55, 0, 0, loc)
	clock := &stubClock{now: checkIn}

	attendanceRepo := repo.NewAttendanceRepository(pool)
	svc := attendance.NewService(attendanceRepo, policy, clock, pg.NewTransactionManager(pool),
		attendance.WithZones(cfg.Attendance.GeoZones(), cfg.Attendance.EnforceGeofence))

	created, err := svc.CheckIn(ctx, attendance.CheckInInput{
		EmployeeID:   "integration-1",
		EmployeeName: "Integration",
		Location:     geo.Reading{Latitude: -7.8003, Longitude: 110.3752, AccuracyMeters: 5, CapturedAtEpochMs: checkIn.UnixMilli()},
	})
	if err != nil {
		t.Fatalf("CheckIn error: %v", err)
	}
	if created.ID == "" || created.Status != attendance.StatusPresent || created.CheckInClock() != "07:55:00" {
		t.Fatalf("unexpected created record: %+v", created)
	}

	if _, err := svc.CheckIn(ctx, attendance.CheckInInput{EmployeeID: "integration-1"}); !errors.Is(err, attendance.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}

	clock.now = checkIn.Add(9 * time.Hour)
	updated, err := svc.CheckOut(ctx, attendance.CheckOutInput{EmployeeID: "integration-1"})
	if err != nil {
		t.Fatalf("CheckOut error: %v", err)
	}
	if updated.CheckOutClock() != "16:55:00" {
		t.Fatalf("unexpected check-out clock %s", updated.CheckOutClock())
	}

	if _, err := svc.CheckOut(ctx, attendance.CheckOutInput{EmployeeID: "integration-1"}); !errors.Is(err, attendance.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	records, err := svc.ListRecords(ctx, attendance.ListRecordsInput{EmployeeID: "integration-1"})
	if err != nil {
		t.Fatalf("ListRecords error: %v", err)
	}
	if len(records) != 1 || records[0].ID != created.ID {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func resetMigrations(dsn, dir string) error {
	if err := pg.Migrate("down", dir, dsn, nil); err != nil {
		return err
	}
	return pg.Migrate("up", dir, dsn, nil)
}

func configPathFromEnv() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "../assets/local.yaml"
}

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}
