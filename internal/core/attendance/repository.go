package attendance

import "context"

// Repository は勤怠記録永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, record *Record) (*Record, error)
	UpdateCheckOut(ctx context.Context, record *Record) (*Record, error)
	FindByEmployeeAndDate(ctx context.Context, employeeID, date string) (*Record, error)
	List(ctx context.Context, filter ListRecordsFilter) ([]*Record, error)
}

// ListRecordsFilter は一覧取得用フィルタです。空のフィールドは絞り込みに使いません。
type ListRecordsFilter struct {
	EmployeeID string
	Date       string
	Limit      int
}
