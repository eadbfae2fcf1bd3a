package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

// State は 1 日分の勤怠の状態です。Record からのみ導出されます。
type State int

const (
	StateNoCheckIn State = iota
	StateCheckedIn
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNoCheckIn:
		return "no_check_in"
	case StateCheckedIn:
		return "checked_in"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateOf は記録の状態を返します。nil は未出勤です。
func StateOf(rec *Record) State {
	switch {
	case rec == nil || rec.CheckInAt == nil:
		return StateNoCheckIn
	case rec.CheckOutAt == nil:
		return StateCheckedIn
	default:
		return StateCompleted
	}
}

// StateOn は date の日の状態を返します。別の日の記録は未出勤として扱います。
func StateOn(rec *Record, date string) State {
	if rec == nil || rec.Date != date {
		return StateNoCheckIn
	}
	return StateOf(rec)
}

// CanCheckIn は date の日に出勤打刻できるかを返します。
func CanCheckIn(rec *Record, date string) bool {
	return StateOn(rec, date) == StateNoCheckIn
}

// CanCheckOut は date の日に退勤打刻できるかを返します。
func CanCheckOut(rec *Record, date string) bool {
	return StateOn(rec, date) == StateCheckedIn
}

// DefaultLateThreshold は遅刻判定の既定時刻 (08:00) です。
const DefaultLateThreshold = 8 * time.Hour

// Policy は勤怠日の区切りと遅刻判定を決めます。
type Policy struct {
	Location *time.Location
	// LateThreshold は 0 時からの経過時間で表した始業時刻です。これより後の出勤は遅刻です。
	LateThreshold time.Duration
}

// NewPolicy は Policy を生成します。loc が nil の場合は UTC です。
func NewPolicy(loc *time.Location, lateThreshold time.Duration) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{Location: loc, LateThreshold: lateThreshold}
}

// ParseClock は "HH:MM" または "HH:MM:SS" を 0 時からの経過時間に変換します。
func ParseClock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("clock %q: %w", value, ErrInvalidTime)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] || len(part) != 2 {
			return 0, fmt.Errorf("clock %q: %w", value, ErrInvalidTime)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Local は t を勤怠のタイムゾーンに変換し、秒未満を切り捨てます。
func (p Policy) Local(t time.Time) time.Time {
	return t.In(p.location()).Truncate(time.Second)
}

// Localize は記録の時刻を勤怠のタイムゾーンに揃えた複製を返します。
func (p Policy) Localize(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	if out.CheckInAt != nil {
		t := p.Local(*out.CheckInAt)
		out.CheckInAt = &t
	}
	if out.CheckOutAt != nil {
		t := p.Local(*out.CheckOutAt)
		out.CheckOutAt = &t
	}
	if !out.CreatedAt.IsZero() {
		out.CreatedAt = out.CreatedAt.In(p.location())
	}
	return out
}

// DateOf は t が属する勤怠日を返します。
func (p Policy) DateOf(t time.Time) string {
	return t.In(p.location()).Format(DateLayout)
}

// StatusAt は t に出勤した場合の出勤区分を返します。
func (p Policy) StatusAt(t time.Time) Status {
	local := t.In(p.location())
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, p.location())
	if local.Sub(midnight) > p.LateThreshold {
		return StatusLate
	}
	return StatusPresent
}

// Compose は勤怠日と時刻文字列から時刻を組み立てます。
func (p Policy) Compose(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), p.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, ErrInvalidDate)
	}
	offset, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	h := int(offset / time.Hour)
	mi := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(y, m, d, h, mi, s, 0, p.location()), nil
}

// CheckInInput は出勤打刻の入力です。
type CheckInInput struct {
	EmployeeID     string
	EmployeeName   string
	At             time.Time
	Location       geo.Reading
	DistanceMeters float64
	Notes          string
	PhotoRef       *string
	DeviceInfo     string
}

// CheckOutInput は退勤打刻の入力です。Date が空の場合は At から求めます。
type CheckOutInput struct {
	EmployeeID string
	Date       string
	At         time.Time
	Location   geo.Reading
}

// CheckIn は current (その日の記録) に対して出勤を適用した新しい記録を返します。
func (p Policy) CheckIn(current *Record, in CheckInInput) (*Record, error) {
	employeeID, err := normalizeEmployeeID(in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if in.At.IsZero() {
		return nil, fmt.Errorf("check-in time: %w", ErrInvalidTime)
	}

	at := p.Local(in.At)
	date := at.Format(DateLayout)
	switch StateOn(current, date) {
	case StateCheckedIn:
		return nil, ErrAlreadyCheckedIn
	case StateCompleted:
		return nil, ErrAlreadyCompleted
	}

	rec := &Record{
		EmployeeID:     employeeID,
		EmployeeName:   strings.TrimSpace(in.EmployeeName),
		Date:           date,
		CheckInAt:      &at,
		Location:       in.Location,
		DistanceMeters: in.DistanceMeters,
		Status:         p.StatusAt(at),
		Notes:          strings.TrimSpace(in.Notes),
		DeviceInfo:     in.DeviceInfo,
		CreatedAt:      at,
	}
	if in.PhotoRef != nil {
		ref := *in.PhotoRef
		rec.PhotoRef = &ref
	}
	return rec, nil
}

// CheckOut は current (その日の記録) に退勤時刻を設定した新しい記録を返します。
func (p Policy) CheckOut(current *Record, at time.Time) (*Record, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("check-out time: %w", ErrInvalidTime)
	}
	local := p.Local(at)
	switch StateOn(current, local.Format(DateLayout)) {
	case StateNoCheckIn:
		return nil, ErrNoActiveCheckIn
	case StateCompleted:
		return nil, ErrAlreadyCompleted
	}
	if !local.After(*current.CheckInAt) {
		return nil, ErrInvalidCheckOutTime
	}

	next := current.Clone()
	next.CheckOutAt = &local
	return next, nil
}

func normalizeEmployeeID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", ErrInvalidEmployeeID
	}
	return trimmed, nil
}

func normalizeDate(date string) (string, error) {
	trimmed := strings.TrimSpace(date)
	if _, err := time.Parse(DateLayout, trimmed); err != nil {
		return "", fmt.Errorf("date %q: %w", date, ErrInvalidDate)
	}
	return trimmed, nil
}
