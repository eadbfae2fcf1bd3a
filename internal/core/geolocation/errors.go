package geolocation

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied    = errors.New("geolocation: permission denied")
	ErrPositionUnavailable = errors.New("geolocation: position unavailable")
	ErrTimeout             = errors.New("geolocation: timeout")
	ErrUnsupported         = errors.New("geolocation: unsupported")
)

// Code はプラットフォームが返す位置情報エラーの数値コードです。
type Code int

const (
	CodeUnsupported         Code = 0
	CodePermissionDenied    Code = 1
	CodePositionUnavailable Code = 2
	CodeTimeout             Code = 3
)

// PositionError はプラットフォームからの失敗を表します。errors.Is で各センチネルと比較できます。
type PositionError struct {
	Code    Code
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", e.sentinel(), e.Message)
}

func (e *PositionError) Unwrap() error {
	return e.sentinel()
}

func (e *PositionError) sentinel() error {
	switch e.Code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeTimeout:
		return ErrTimeout
	case CodeUnsupported:
		return ErrUnsupported
	default:
		return ErrPositionUnavailable
	}
}
