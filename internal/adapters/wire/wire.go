// Package wire は HTTP と gRPC の両トランスポートで共有する JSON 表現です。
package wire

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

const (
	ActionCheckIn  = "checkIn"
	ActionCheckOut = "checkOut"
)

// MaxDeviceInfoLength は保存する端末情報の最大長です。
const MaxDeviceInfoLength = 150

// ActionRequest は書き込み API のリクエストボディです。
type ActionRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Envelope はレスポンスの共通形式です。
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// CheckIn は出勤打刻のペイロードです。日付と時刻はサーバのタイムゾーンで解釈されます。
type CheckIn struct {
	EmployeeID   string  `json:"employeeId"`
	EmployeeName string  `json:"employeeName,omitempty"`
	Date         string  `json:"date"`
	CheckInTime  string  `json:"checkInTime"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Accuracy     float64 `json:"accuracy"`
	CapturedAt   int64   `json:"capturedAt,omitempty"`
	Distance     float64 `json:"distance"`
	Notes        string  `json:"notes,omitempty"`
	PhotoURL     *string `json:"photoUrl,omitempty"`
	DeviceInfo   string  `json:"deviceInfo,omitempty"`
}

// CheckOut は退勤打刻のペイロードです。
type CheckOut struct {
	EmployeeID   string  `json:"employeeId"`
	Date         string  `json:"date"`
	CheckOutTime string  `json:"checkOutTime"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	Accuracy     float64 `json:"accuracy,omitempty"`
}

// ListQuery は一覧取得の条件です。
type ListQuery struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Date       string `json:"date,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// RecordList は一覧取得のレスポンスです。
type RecordList struct {
	Records []Record `json:"records"`
}

// Record は勤怠記録の表現です。時刻は表示用の HH:MM:SS と RFC3339 の両方を持ちます。
type Record struct {
	ID           string  `json:"id,omitempty"`
	EmployeeID   string  `json:"employeeId"`
	EmployeeName string  `json:"employeeName,omitempty"`
	Date         string  `json:"date"`
	CheckInTime  string  `json:"checkInTime,omitempty"`
	CheckOutTime string  `json:"checkOutTime,omitempty"`
	CheckInAt    string  `json:"checkInAt,omitempty"`
	CheckOutAt   string  `json:"checkOutAt,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Accuracy     float64 `json:"accuracy"`
	Distance     float64 `json:"distance"`
	Status       string  `json:"status"`
	Notes        string  `json:"notes,omitempty"`
	PhotoURL     *string `json:"photoUrl,omitempty"`
	DeviceInfo   string  `json:"deviceInfo,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
}

// NewCheckIn は入力からペイロードを作ります。At のタイムゾーンで日付と時刻を書き出します。
func NewCheckIn(in attendance.CheckInInput) CheckIn {
	return CheckIn{
		EmployeeID:   in.EmployeeID,
		EmployeeName: in.EmployeeName,
		Date:         in.At.Format(attendance.DateLayout),
		CheckInTime:  in.At.Format(attendance.TimeLayout),
		Latitude:     in.Location.Latitude,
		Longitude:    in.Location.Longitude,
		Accuracy:     in.Location.AccuracyMeters,
		CapturedAt:   in.Location.CapturedAtEpochMs,
		Distance:     in.DistanceMeters,
		Notes:        in.Notes,
		PhotoURL:     in.PhotoRef,
		DeviceInfo:   in.DeviceInfo,
	}
}

// Input はペイロードを policy のタイムゾーンで解釈して入力に戻します。
func (c CheckIn) Input(policy attendance.Policy) (attendance.CheckInInput, error) {
	at, err := policy.Compose(c.Date, c.CheckInTime)
	if err != nil {
		return attendance.CheckInInput{}, err
	}
	return attendance.CheckInInput{
		EmployeeID:     c.EmployeeID,
		EmployeeName:   c.EmployeeName,
		At:             at,
		Location:       geo.Reading{Latitude: c.Latitude, Longitude: c.Longitude, AccuracyMeters: c.Accuracy, CapturedAtEpochMs: c.CapturedAt},
		DistanceMeters: c.Distance,
		Notes:          c.Notes,
		PhotoRef:       c.PhotoURL,
		DeviceInfo:     TruncateDeviceInfo(c.DeviceInfo),
	}, nil
}

// NewCheckOut は入力からペイロードを作ります。
func NewCheckOut(in attendance.CheckOutInput) CheckOut {
	date := in.Date
	if date == "" {
		date = in.At.Format(attendance.DateLayout)
	}
	return CheckOut{
		EmployeeID:   in.EmployeeID,
		Date:         date,
		CheckOutTime: in.At.Format(attendance.TimeLayout),
		Latitude:     in.Location.Latitude,
		Longitude:    in.Location.Longitude,
		Accuracy:     in.Location.AccuracyMeters,
	}
}

// Input はペイロードを policy のタイムゾーンで解釈して入力に戻します。
func (c CheckOut) Input(policy attendance.Policy) (attendance.CheckOutInput, error) {
	at, err := policy.Compose(c.Date, c.CheckOutTime)
	if err != nil {
		return attendance.CheckOutInput{}, err
	}
	return attendance.CheckOutInput{
		EmployeeID: c.EmployeeID,
		Date:       c.Date,
		At:         at,
		Location:   geo.Reading{Latitude: c.Latitude, Longitude: c.Longitude, AccuracyMeters: c.Accuracy},
	}, nil
}

// NewRecord は記録を表現に変換します。
func NewRecord(rec *attendance.Record) Record {
	out := Record{
		ID:           rec.ID,
		EmployeeID:   rec.EmployeeID,
		EmployeeName: rec.EmployeeName,
		Date:         rec.Date,
		CheckInTime:  rec.CheckInClock(),
		CheckOutTime: rec.CheckOutClock(),
		Latitude:     rec.Location.Latitude,
		Longitude:    rec.Location.Longitude,
		Accuracy:     rec.Location.AccuracyMeters,
		Distance:     rec.DistanceMeters,
		Status:       string(rec.Status),
		Notes:        rec.Notes,
		PhotoURL:     rec.PhotoRef,
		DeviceInfo:   rec.DeviceInfo,
	}
	if rec.CheckInAt != nil {
		out.CheckInAt = rec.CheckInAt.Format(time.RFC3339)
	}
	if rec.CheckOutAt != nil {
		out.CheckOutAt = rec.CheckOutAt.Format(time.RFC3339)
	}
	if !rec.CreatedAt.IsZero() {
		out.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	return out
}

// Domain は表現を記録に戻します。
func (r Record) Domain() (*attendance.Record, error) {
	status, err := attendance.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	rec := &attendance.Record{
		ID:             r.ID,
		EmployeeID:     r.EmployeeID,
		EmployeeName:   r.EmployeeName,
		Date:           r.Date,
		Location:       geo.Reading{Latitude: r.Latitude, Longitude: r.Longitude, AccuracyMeters: r.Accuracy},
		DistanceMeters: r.Distance,
		Status:         status,
		Notes:          r.Notes,
		PhotoRef:       r.PhotoURL,
		DeviceInfo:     r.DeviceInfo,
	}
	if rec.CheckInAt, err = parseTimestamp("checkInAt", r.CheckInAt); err != nil {
		return nil, err
	}
	if rec.CheckOutAt, err = parseTimestamp("checkOutAt", r.CheckOutAt); err != nil {
		return nil, err
	}
	created, err := parseTimestamp("createdAt", r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		rec.CreatedAt = *created
	}
	return rec, nil
}

// TruncateDeviceInfo は端末情報を最大長に切り詰めます。
func TruncateDeviceInfo(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) > MaxDeviceInfoLength {
		return string(runes[:MaxDeviceInfoLength])
	}
	return value
}

// StatusCode はエラーに対応する HTTP ステータスを返します。
func StatusCode(err error) int {
	switch attendance.ErrorCode(err) {
	case "invalid_employee_id", "invalid_date", "invalid_time", "invalid_status":
		return http.StatusBadRequest
	case "already_checked_in", "already_completed", "no_active_check_in", "invalid_check_out_time", "outside_zone":
		return http.StatusConflict
	case "record_not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseTimestamp(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", field, value, attendance.ErrInvalidTime)
	}
	return &t, nil
}
