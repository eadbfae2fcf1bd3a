package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	pgdb "github.com/ogurasousui/attendance-sync/internal/platform/db/postgres"
)

const (
	uniqueViolationCode = "23505"
	checkViolationCode  = "23514"
)

const attendanceColumns = `id, employee_id, employee_name, work_date::text, check_in_at, check_out_at,
               latitude, longitude, accuracy_m, captured_at_ms, distance_m,
               status, notes, photo_url, device_info, created_at`

// AttendanceRepository は PostgreSQL を利用した勤怠記録永続化の実装です。
type AttendanceRepository struct {
	pool pgdb.Queryer
}

var _ attendance.Repository = (*AttendanceRepository)(nil)

// NewAttendanceRepository は AttendanceRepository を生成します。
func NewAttendanceRepository(pool pgdb.Queryer) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Create は勤怠記録を新規作成します。同じ社員・日付の記録があれば ErrAlreadyCheckedIn です。
func (r *AttendanceRepository) Create(ctx context.Context, rec *attendance.Record) (*attendance.Record, error) {
	id := rec.ID
	if id == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		id = v7.String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO attendance_records (id, employee_id, employee_name, work_date, check_in_at, check_out_at,
                                        latitude, longitude, accuracy_m, captured_at_ms, distance_m,
                                        status, notes, photo_url, device_info, created_at)
        VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING `+attendanceColumns,
		id,
		rec.EmployeeID,
		rec.EmployeeName,
		rec.Date,
		nullableTimestamp(rec.CheckInAt),
		nullableTimestamp(rec.CheckOutAt),
		rec.Location.Latitude,
		rec.Location.Longitude,
		rec.Location.AccuracyMeters,
		rec.Location.CapturedAtEpochMs,
		rec.DistanceMeters,
		string(rec.Status),
		rec.Notes,
		rec.PhotoRef,
		rec.DeviceInfo,
		createdAt,
	)

	created, err := scanRecord(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return created, nil
}

// UpdateCheckOut は未退勤の記録に退勤時刻を設定します。
func (r *AttendanceRepository) UpdateCheckOut(ctx context.Context, rec *attendance.Record) (*attendance.Record, error) {
	if rec.CheckOutAt == nil {
		return nil, fmt.Errorf("check-out time: %w", attendance.ErrInvalidTime)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE attendance_records
           SET check_out_at = $1
         WHERE employee_id = $2
           AND work_date = $3::date
           AND check_out_at IS NULL
        RETURNING `+attendanceColumns,
		*rec.CheckOutAt, rec.EmployeeID, rec.Date)

	updated, err := scanRecord(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return updated, nil
}

// FindByEmployeeAndDate は社員と日付で記録を取得します。
func (r *AttendanceRepository) FindByEmployeeAndDate(ctx context.Context, employeeID, date string) (*attendance.Record, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+attendanceColumns+`
          FROM attendance_records
         WHERE employee_id = $1
           AND work_date = $2::date
         LIMIT 1
    `, employeeID, date)

	found, err := scanRecord(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return found, nil
}

// List は日付の新しい順に記録を返します。
func (r *AttendanceRepository) List(ctx context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	args := make([]any, 0, 3)
	conditions := make([]string, 0, 2)

	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, "employee_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		conditions = append(conditions, "work_date = $"+strconv.Itoa(len(args))+"::date")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "\n         WHERE " + strings.Join(conditions, " AND ")
	}

	limitClause := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		limitClause = "\n         LIMIT $" + strconv.Itoa(len(args))
	}

	query := `
        SELECT ` + attendanceColumns + `
          FROM attendance_records` + whereClause + `
         ORDER BY work_date DESC, created_at DESC` + limitClause + `
    `

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	records := make([]*attendance.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError(err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*attendance.Record, error) {
	var (
		id           string
		employeeID   string
		employeeName string
		date         string
		checkInAt    sql.NullTime
		checkOutAt   sql.NullTime
		latitude     float64
		longitude    float64
		accuracy     float64
		capturedAt   int64
		distance     float64
		status       string
		notes        string
		photoURL     sql.NullString
		deviceInfo   string
		createdAt    time.Time
	)

	if err := row.Scan(
		&id,
		&employeeID,
		&employeeName,
		&date,
		&checkInAt,
		&checkOutAt,
		&latitude,
		&longitude,
		&accuracy,
		&capturedAt,
		&distance,
		&status,
		&notes,
		&photoURL,
		&deviceInfo,
		&createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, attendance.ErrRecordNotFound
		}
		return nil, err
	}

	parsed, err := attendance.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	rec := &attendance.Record{
		ID:             id,
		EmployeeID:     employeeID,
		EmployeeName:   employeeName,
		Date:           date,
		Location:       geo.Reading{Latitude: latitude, Longitude: longitude, AccuracyMeters: accuracy, CapturedAtEpochMs: capturedAt},
		DistanceMeters: distance,
		Status:         parsed,
		Notes:          notes,
		DeviceInfo:     deviceInfo,
		CreatedAt:      createdAt,
	}
	if checkInAt.Valid {
		t := checkInAt.Time
		rec.CheckInAt = &t
	}
	if checkOutAt.Valid {
		t := checkOutAt.Time
		rec.CheckOutAt = &t
	}
	if photoURL.Valid {
		ref := photoURL.String
		rec.PhotoRef = &ref
	}
	return rec, nil
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return attendance.ErrRecordNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return attendance.ErrAlreadyCheckedIn
		case checkViolationCode:
			switch pgErr.ConstraintName {
			case "attendance_records_status_check":
				return attendance.ErrInvalidStatus
			case "attendance_records_check_out_after_check_in":
				return attendance.ErrInvalidCheckOutTime
			}
		}
	}
	return err
}

func nullableTimestamp(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
