package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// DrainReport は 1 回の Drain の結果です。
type DrainReport struct {
	Delivered int
	Remaining int
	// Skipped は別の Drain が実行中だったため何もしなかったことを表します。
	Skipped bool
	// Err は送信を止めた原因です。キューを空にできた場合は nil です。
	Err error
}

// Queue は永続化された FIFO の送信待ちキューです。
// 一覧と永続化は mu で保護し、送信中は mu を保持しません。
type Queue struct {
	storage Storage
	sender  Sender
	clock   Clock
	logger  *slog.Logger
	newID   func() (uuid.UUID, error)

	mu       sync.Mutex
	ops      []Operation
	draining atomic.Bool
}

// New は storage から既存のキューを一度だけ読み込んで Queue を生成します。
func New(storage Storage, sender Sender, clock Clock) (*Queue, error) {
	if storage == nil {
		storage = &MemoryStorage{}
	}
	if clock == nil {
		clock = realClock{}
	}

	raw, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueLoadFailure, err)
	}
	var ops []Operation
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ops); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrQueueLoadFailure, err)
		}
	}

	return &Queue{
		storage: storage,
		sender:  sender,
		clock:   clock,
		logger:  slog.Default(),
		newID:   uuid.NewV7,
		ops:     ops,
	}, nil
}

// WithLogger はロガーを差し替えます。
func (q *Queue) WithLogger(logger *slog.Logger) *Queue {
	if logger != nil {
		q.logger = logger
	}
	return q
}

// Enqueue は操作を末尾に追加して永続化します。ネットワークには触れません。
// 永続化に失敗した場合はキューを変更せず ErrQueuePersistFailure を返します。
func (q *Queue) Enqueue(endpoint, method string, headers map[string]string, body string) (Operation, error) {
	endpoint = strings.TrimSpace(endpoint)
	method = strings.ToUpper(strings.TrimSpace(method))
	if endpoint == "" || method == "" {
		return Operation{}, ErrInvalidOperation
	}

	id, err := q.newID()
	if err != nil {
		return Operation{}, fmt.Errorf("operation id: %w", err)
	}
	op := Operation{
		ID:                id.String(),
		TargetEndpoint:    endpoint,
		Method:            method,
		Headers:           make(map[string]string, len(headers)+1),
		SerializedBody:    body,
		EnqueuedAtEpochMs: q.clock.Now().UnixMilli(),
	}
	for k, v := range headers {
		op.Headers[k] = v
	}
	op.Headers[HeaderOperationID] = op.ID

	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]Operation, 0, len(q.ops)+1)
	next = append(next, q.ops...)
	next = append(next, op)
	if err := q.persist(next); err != nil {
		return Operation{}, err
	}
	q.ops = next

	q.logger.Debug("operation queued", "id", op.ID, "method", op.Method, "endpoint", op.TargetEndpoint, "pending", len(next))
	return op.clone(), nil
}

// Drain は先頭から順に送信し、受理された操作だけを取り除きます。
// 最初の失敗で止まり、その操作と後続は順序を保ったまま残ります。
// 実行中に呼ばれた場合は何もせず Skipped を返します。エラーはログに記録され、呼び出し元には返しません。
func (q *Queue) Drain(ctx context.Context) DrainReport {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainReport{Skipped: true, Remaining: q.Len()}
	}
	defer q.draining.Store(false)

	var report DrainReport
	for {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		head, ok := q.head()
		if !ok {
			break
		}
		if q.sender == nil {
			report.Err = ErrInvalidOperation
			break
		}

		if err := q.sender.Deliver(ctx, head); err != nil {
			q.logger.Warn("queue drain halted", "id", head.ID, "endpoint", head.TargetEndpoint, "error", err)
			report.Err = err
			break
		}
		if err := q.removeHead(head.ID); err != nil {
			q.logger.Error("queue drain could not record delivery", "id", head.ID, "error", err)
			report.Err = err
			break
		}
		report.Delivered++
	}

	report.Remaining = q.Len()
	if report.Delivered > 0 || report.Err != nil {
		q.logger.Info("queue drained", "delivered", report.Delivered, "remaining", report.Remaining)
	}
	return report
}

// Draining は Drain が実行中かどうかを返します。
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// Len は送信待ちの件数を返します。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Pending は送信待ちの操作のスナップショットを先頭から順に返します。
func (q *Queue) Pending() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	for i, op := range q.ops {
		out[i] = op.clone()
	}
	return out
}

func (q *Queue) head() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return Operation{}, false
	}
	return q.ops[0].clone(), true
}

func (q *Queue) removeHead(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 || q.ops[0].ID != id {
		return ErrHeadChanged
	}
	next := append([]Operation(nil), q.ops[1:]...)
	if err := q.persist(next); err != nil {
		return err
	}
	q.ops = next
	return nil
}

func (q *Queue) persist(ops []Operation) error {
	if ops == nil {
		ops = []Operation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrQueuePersistFailure, err)
	}
	if err := q.storage.Save(data); err != nil {
		return fmt.Errorf("%w: %v", ErrQueuePersistFailure, err)
	}
	return nil
}
