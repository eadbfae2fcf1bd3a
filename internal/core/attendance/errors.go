package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEmployeeID   = errors.New("attendance: invalid employee id")
	ErrInvalidDate         = errors.New("attendance: invalid date")
	ErrInvalidTime         = errors.New("attendance: invalid time")
	ErrInvalidStatus       = errors.New("attendance: invalid status")
	ErrInvalidCheckOutTime = errors.New("attendance: check-out must be after check-in")
	ErrAlreadyCheckedIn    = errors.New("attendance: already checked in today")
	ErrAlreadyCompleted    = errors.New("attendance: attendance already completed today")
	ErrNoActiveCheckIn     = errors.New("attendance: no active check-in today")
	ErrOutsideZone         = errors.New("attendance: location outside every zone")
	ErrRecordNotFound      = errors.New("attendance: record not found")
	ErrRemoteUnavailable   = errors.New("attendance: remote store unavailable")
	ErrRemoteRejected      = errors.New("attendance: remote store rejected request")
)

var codes = []struct {
	code string
	err  error
}{
	{"invalid_employee_id", ErrInvalidEmployeeID},
	{"invalid_date", ErrInvalidDate},
	{"invalid_time", ErrInvalidTime},
	{"invalid_status", ErrInvalidStatus},
	{"invalid_check_out_time", ErrInvalidCheckOutTime},
	{"already_checked_in", ErrAlreadyCheckedIn},
	{"already_completed", ErrAlreadyCompleted},
	{"no_active_check_in", ErrNoActiveCheckIn},
	{"outside_zone", ErrOutsideZone},
	{"record_not_found", ErrRecordNotFound},
}

// ErrorCode はエラーに対応するワイヤ上のコードを返します。未知のエラーは "internal" です。
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorFromCode は ErrorCode の逆変換です。未知のコードは nil を返します。
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// RejectedError はリモートストアがリクエストを拒否したことを表します。
// errors.Is で ErrRemoteRejected と、Code に対応するドメインエラーの両方に一致します。
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", ErrRemoteRejected, e.Code)
	}
	return fmt.Sprintf("%s (%s): %s", ErrRemoteRejected, e.Code, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	if target == ErrRemoteRejected {
		return true
	}
	if domain := ErrorFromCode(e.Code); domain != nil {
		return target == domain
	}
	return false
}
