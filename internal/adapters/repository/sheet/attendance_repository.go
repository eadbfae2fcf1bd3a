// Package sheet は勤怠記録を xlsx のワークシートに保存するリポジトリです。
// 1 行が 1 件で、列 A から N を使います。
package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet は既定のワークシート名です。
const DefaultSheet = "Attendance"

// Header はワークシートの見出し行です。
var Header = []string{
	"Employee ID",
	"Employee Name",
	"Date",
	"Check In Time",
	"Check Out Time",
	"Latitude",
	"Longitude",
	"GPS Accuracy (m)",
	"Distance from Office (m)",
	"Status",
	"Notes",
	"Photo URL",
	"Device Info",
	"Created At",
}

const (
	colEmployeeID = iota
	colEmployeeName
	colDate
	colCheckIn
	colCheckOut
	colLatitude
	colLongitude
	colAccuracy
	colDistance
	colStatus
	colNotes
	colPhotoURL
	colDeviceInfo
	colCreatedAt
)

// AttendanceRepository は attendance.Repository の xlsx 実装です。
type AttendanceRepository struct {
	mu    sync.Mutex
	path  string
	sheet string
	loc   *time.Location
	file  *excelize.File
}

var _ attendance.Repository = (*AttendanceRepository)(nil)

// Open は path のブックを開きます。存在しなければ見出し行だけのブックを作ります。
// 時刻列は loc の壁時計として読み書きします。
func Open(path, sheet string, loc *time.Location) (*AttendanceRepository, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if loc == nil {
		loc = time.UTC
	}

	var (
		f   *excelize.File
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("sheet: open %s: %w", path, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		f = excelize.NewFile()
	} else {
		return nil, fmt.Errorf("sheet: stat %s: %w", path, statErr)
	}

	r := &AttendanceRepository{path: path, sheet: sheet, loc: loc, file: f}
	if err := r.ensureSheet(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Close はブックを閉じます。
func (r *AttendanceRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func (r *AttendanceRepository) ensureSheet() error {
	idx, err := r.file.GetSheetIndex(r.sheet)
	if err != nil {
		return fmt.Errorf("sheet: lookup %s: %w", r.sheet, err)
	}
	if idx == -1 {
		// 新規ブックの既定シートは名前を変えて使う
		if names := r.file.GetSheetList(); len(names) == 1 && names[0] == "Sheet1" {
			if err := r.file.SetSheetName("Sheet1", r.sheet); err != nil {
				return fmt.Errorf("sheet: rename default sheet: %w", err)
			}
		} else if _, err := r.file.NewSheet(r.sheet); err != nil {
			return fmt.Errorf("sheet: create %s: %w", r.sheet, err)
		}
	}

	first, err := r.file.GetCellValue(r.sheet, "A1")
	if err != nil {
		return fmt.Errorf("sheet: read header: %w", err)
	}
	if first != "" {
		return nil
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := r.file.SetSheetRow(r.sheet, "A1", &header); err != nil {
		return fmt.Errorf("sheet: write header: %w", err)
	}
	return r.save()
}

func (r *AttendanceRepository) save() error {
	if err := r.file.SaveAs(r.path); err != nil {
		return fmt.Errorf("sheet: save %s: %w", r.path, err)
	}
	return nil
}

func (r *AttendanceRepository) rows() ([][]string, error) {
	rows, err := r.file.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet: read rows: %w", err)
	}
	return rows, nil
}

// findRow は下から探して最初に一致した行番号 (1 始まり) を返します。見つからなければ 0 です。
func findRow(rows [][]string, employeeID, date string) int {
	for i := len(rows) - 1; i >= 1; i-- {
		if cell(rows[i], colEmployeeID) == employeeID && cell(rows[i], colDate) == date {
			return i + 1
		}
	}
	return 0
}

func cell(row []string, col int) string {
	if col < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

func (r *AttendanceRepository) Create(_ context.Context, rec *attendance.Record) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.rows()
	if err != nil {
		return nil, err
	}
	if findRow(rows, rec.EmployeeID, rec.Date) != 0 {
		return nil, attendance.ErrAlreadyCheckedIn
	}

	rowNum := len(rows) + 1
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	photo := ""
	if rec.PhotoRef != nil {
		photo = *rec.PhotoRef
	}
	values := []any{
		rec.EmployeeID,
		rec.EmployeeName,
		rec.Date,
		r.clock(rec.CheckInAt),
		r.clock(rec.CheckOutAt),
		rec.Location.Latitude,
		rec.Location.Longitude,
		rec.Location.AccuracyMeters,
		rec.DistanceMeters,
		string(rec.Status),
		rec.Notes,
		photo,
		rec.DeviceInfo,
		createdAt.In(r.loc).Format(time.RFC3339),
	}
	if err := r.file.SetSheetRow(r.sheet, "A"+strconv.Itoa(rowNum), &values); err != nil {
		return nil, fmt.Errorf("sheet: append row: %w", err)
	}
	if err := r.save(); err != nil {
		return nil, err
	}

	rows, err = r.rows()
	if err != nil {
		return nil, err
	}
	return r.decode(rows[rowNum-1], rowNum)
}

// UpdateCheckOut は該当行の列 E に退勤時刻を書きます。退勤済みの行は対象外です。
func (r *AttendanceRepository) UpdateCheckOut(_ context.Context, rec *attendance.Record) (*attendance.Record, error) {
	if rec.CheckOutAt == nil {
		return nil, fmt.Errorf("check-out time: %w", attendance.ErrInvalidTime)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.rows()
	if err != nil {
		return nil, err
	}
	rowNum := findRow(rows, rec.EmployeeID, rec.Date)
	if rowNum == 0 || cell(rows[rowNum-1], colCheckOut) != "" {
		return nil, attendance.ErrRecordNotFound
	}

	axis, err := excelize.CoordinatesToCellName(colCheckOut+1, rowNum)
	if err != nil {
		return nil, err
	}
	if err := r.file.SetCellValue(r.sheet, axis, r.clock(rec.CheckOutAt)); err != nil {
		return nil, fmt.Errorf("sheet: write check-out: %w", err)
	}
	if err := r.save(); err != nil {
		return nil, err
	}

	rows, err = r.rows()
	if err != nil {
		return nil, err
	}
	return r.decode(rows[rowNum-1], rowNum)
}

func (r *AttendanceRepository) FindByEmployeeAndDate(_ context.Context, employeeID, date string) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.rows()
	if err != nil {
		return nil, err
	}
	rowNum := findRow(rows, employeeID, date)
	if rowNum == 0 {
		return nil, attendance.ErrRecordNotFound
	}
	return r.decode(rows[rowNum-1], rowNum)
}

// List は日付の新しい順に返します。同じ日付では下の行ほど先です。
func (r *AttendanceRepository) List(_ context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.rows()
	if err != nil {
		return nil, err
	}

	type numbered struct {
		rec *attendance.Record
		row int
	}
	matched := make([]numbered, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		if cell(rows[i], colEmployeeID) == "" {
			continue
		}
		if filter.EmployeeID != "" && cell(rows[i], colEmployeeID) != filter.EmployeeID {
			continue
		}
		if filter.Date != "" && cell(rows[i], colDate) != filter.Date {
			continue
		}
		rec, err := r.decode(rows[i], i+1)
		if err != nil {
			return nil, err
		}
		matched = append(matched, numbered{rec: rec, row: i + 1})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].rec.Date != matched[j].rec.Date {
			return matched[i].rec.Date > matched[j].rec.Date
		}
		return matched[i].row > matched[j].row
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*attendance.Record, 0, len(matched))
	for _, m := range matched {
		out = append(out, m.rec)
	}
	return out, nil
}

func (r *AttendanceRepository) clock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(r.loc).Format(attendance.TimeLayout)
}

func (r *AttendanceRepository) decode(row []string, rowNum int) (*attendance.Record, error) {
	date := cell(row, colDate)
	status, err := attendance.ParseStatus(cell(row, colStatus))
	if err != nil {
		return nil, fmt.Errorf("sheet: row %d: %w", rowNum, err)
	}

	rec := &attendance.Record{
		ID:           fmt.Sprintf("%s!%d", r.sheet, rowNum),
		EmployeeID:   cell(row, colEmployeeID),
		EmployeeName: cell(row, colEmployeeName),
		Date:         date,
		Status:       status,
		Notes:        cell(row, colNotes),
		DeviceInfo:   cell(row, colDeviceInfo),
	}
	if rec.CheckInAt, err = r.wallClock(date, cell(row, colCheckIn)); err != nil {
		return nil, fmt.Errorf("sheet: row %d check-in: %w", rowNum, err)
	}
	if rec.CheckOutAt, err = r.wallClock(date, cell(row, colCheckOut)); err != nil {
		return nil, fmt.Errorf("sheet: row %d check-out: %w", rowNum, err)
	}
	rec.Location = geo.Reading{
		Latitude:       parseFloat(cell(row, colLatitude)),
		Longitude:      parseFloat(cell(row, colLongitude)),
		AccuracyMeters: parseFloat(cell(row, colAccuracy)),
	}
	rec.DistanceMeters = parseFloat(cell(row, colDistance))
	if photo := cell(row, colPhotoURL); photo != "" {
		rec.PhotoRef = &photo
	}
	if created := cell(row, colCreatedAt); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			rec.CreatedAt = t
		}
	}
	return rec, nil
}

func (r *AttendanceRepository) wallClock(date, clock string) (*time.Time, error) {
	if clock == "" {
		return nil, nil
	}
	t, err := attendance.NewPolicy(r.loc, 0).Compose(date, clock)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}
