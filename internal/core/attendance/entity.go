package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

const (
	// DateLayout は勤怠日付 (YYYY-MM-DD) の書式です。
	DateLayout = "2006-01-02"
	// TimeLayout は打刻時刻 (HH:MM:SS) の書式です。
	TimeLayout = "15:04:05"
)

// Status は出勤区分を表します。
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Record は社員 1 名・1 日分の勤怠記録です。(EmployeeID, Date) で一意になります。
type Record struct {
	ID             string
	EmployeeID     string
	EmployeeName   string
	Date           string
	CheckInAt      *time.Time
	CheckOutAt     *time.Time
	Location       geo.Reading
	DistanceMeters float64
	Status         Status
	Notes          string
	PhotoRef       *string
	DeviceInfo     string
	CreatedAt      time.Time
}

// Clone は Record の深いコピーを返します。
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.CheckInAt = cloneTime(r.CheckInAt)
	c.CheckOutAt = cloneTime(r.CheckOutAt)
	if r.PhotoRef != nil {
		ref := *r.PhotoRef
		c.PhotoRef = &ref
	}
	return &c
}

// CheckInClock は出勤時刻を HH:MM:SS で返します。未打刻なら空文字です。
func (r *Record) CheckInClock() string {
	if r == nil || r.CheckInAt == nil {
		return ""
	}
	return r.CheckInAt.Format(TimeLayout)
}

// CheckOutClock は退勤時刻を HH:MM:SS で返します。未打刻なら空文字です。
func (r *Record) CheckOutClock() string {
	if r == nil || r.CheckOutAt == nil {
		return ""
	}
	return r.CheckOutAt.Format(TimeLayout)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// ParseStatus は文字列を Status に変換します。
func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusPresent, StatusLate, StatusAbsent:
		return status, nil
	default:
		return "", fmt.Errorf("status %q: %w", value, ErrInvalidStatus)
	}
}
