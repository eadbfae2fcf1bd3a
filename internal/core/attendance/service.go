package attendance

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// UseCase はサーバ側の勤怠ユースケースの公開インターフェースです。
type UseCase interface {
	CheckIn(ctx context.Context, in CheckInInput) (*Record, error)
	CheckOut(ctx context.Context, in CheckOutInput) (*Record, error)
	ListRecords(ctx context.Context, in ListRecordsInput) ([]*Record, error)
}

// ListRecordsInput は一覧取得時の入力です。
type ListRecordsInput struct {
	EmployeeID string
	Date       string
	Limit      int
}

// Service はリモートストア側で打刻を検証・保存します。
type Service struct {
	repo    Repository
	policy  Policy
	zones   []geo.Zone
	enforce bool
	clock   Clock
	tx      TransactionManager
}

// ServiceOption は Service の任意設定です。
type ServiceOption func(*Service)

// WithZones は距離を再計算する拠点を設定します。enforce が true なら圏外の出勤を拒否します。
func WithZones(zones []geo.Zone, enforce bool) ServiceOption {
	return func(s *Service) {
		s.zones = append([]geo.Zone(nil), zones...)
		s.enforce = enforce
	}
}

// NewService は Service を生成します。
func NewService(repo Repository, policy Policy, clock Clock, tx TransactionManager, opts ...ServiceOption) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Service{repo: repo, policy: policy, clock: clock, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy は判定に使う Policy を返します。
func (s *Service) Policy() Policy {
	return s.policy
}

// CheckIn は出勤を記録します。同じ日の記録が既にある場合は状態に応じたエラーを返します。
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*Record, error) {
	if in.At.IsZero() {
		in.At = s.clock.Now()
	}
	if s.enforce && len(s.zones) > 0 && in.Location.IsZero() {
		return nil, ErrOutsideZone
	}
	if len(s.zones) > 0 && !in.Location.IsZero() {
		match, err := geo.NearestZone(in.Location.Coordinate(), s.zones)
		if err != nil {
			return nil, err
		}
		if s.enforce && !match.WithinRadius {
			return nil, ErrOutsideZone
		}
		in.DistanceMeters = math.Round(match.DistanceMeters)
	}

	var created *Record
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		employeeID, err := normalizeEmployeeID(in.EmployeeID)
		if err != nil {
			return err
		}
		current, err := s.find(txCtx, employeeID, s.policy.DateOf(in.At))
		if err != nil {
			return err
		}

		rec, err := s.policy.CheckIn(current, in)
		if err != nil {
			return err
		}

		result, err := s.repo.Create(txCtx, rec)
		if err != nil {
			return err
		}
		created = s.policy.Localize(result)
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// CheckOut は退勤を記録します。
func (s *Service) CheckOut(ctx context.Context, in CheckOutInput) (*Record, error) {
	employeeID, err := normalizeEmployeeID(in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if in.At.IsZero() {
		in.At = s.clock.Now()
	}
	date := s.policy.DateOf(in.At)
	if in.Date != "" {
		if date, err = normalizeDate(in.Date); err != nil {
			return nil, err
		}
	}

	var updated *Record
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.find(txCtx, employeeID, date)
		if err != nil {
			return err
		}

		rec, err := s.policy.CheckOut(current, in.At)
		if err != nil {
			return err
		}

		result, err := s.repo.UpdateCheckOut(txCtx, rec)
		if err != nil {
			return err
		}
		updated = s.policy.Localize(result)
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// ListRecords は勤怠記録を日付の新しい順に返します。
func (s *Service) ListRecords(ctx context.Context, in ListRecordsInput) ([]*Record, error) {
	filter := ListRecordsFilter{Limit: in.Limit}
	if in.EmployeeID != "" {
		id, err := normalizeEmployeeID(in.EmployeeID)
		if err != nil {
			return nil, err
		}
		filter.EmployeeID = id
	}
	if in.Date != "" {
		date, err := normalizeDate(in.Date)
		if err != nil {
			return nil, err
		}
		filter.Date = date
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	var records []*Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.List(txCtx, filter)
		if err != nil {
			return err
		}
		records = make([]*Record, 0, len(result))
		for _, rec := range result {
			records = append(records, s.policy.Localize(rec))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Service) find(ctx context.Context, employeeID, date string) (*Record, error) {
	rec, err := s.repo.FindByEmployeeAndDate(ctx, employeeID, date)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return rec, err
}
