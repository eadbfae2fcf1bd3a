// Package memory はプロセス内で完結する勤怠リポジトリです。開発用サーバとテストで使います。
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
)

// AttendanceRepository は attendance.Repository のインメモリ実装です。
type AttendanceRepository struct {
	mu      sync.RWMutex
	records map[string]*attendance.Record
}

var _ attendance.Repository = (*AttendanceRepository)(nil)

// NewAttendanceRepository は空のリポジトリを生成します。
func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{records: make(map[string]*attendance.Record)}
}

func key(employeeID, date string) string {
	return employeeID + "\x00" + date
}

func (r *AttendanceRepository) Create(_ context.Context, record *attendance.Record) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(record.EmployeeID, record.Date)
	if _, ok := r.records[k]; ok {
		return nil, attendance.ErrAlreadyCheckedIn
	}
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	r.records[k] = stored
	return stored.Clone(), nil
}

func (r *AttendanceRepository) UpdateCheckOut(_ context.Context, record *attendance.Record) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[key(record.EmployeeID, record.Date)]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	if record.CheckOutAt != nil {
		out := *record.CheckOutAt
		stored.CheckOutAt = &out
	}
	return stored.Clone(), nil
}

func (r *AttendanceRepository) FindByEmployeeAndDate(_ context.Context, employeeID, date string) (*attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.records[key(employeeID, date)]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	return stored.Clone(), nil
}

// List は日付の新しい順、同じ日付では作成の新しい順に返します。
func (r *AttendanceRepository) List(_ context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*attendance.Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Date != "" && rec.Date != filter.Date {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
