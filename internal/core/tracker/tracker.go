package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/connectivity"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
)

// Request は送信方法に依存しない書き込みリクエストです。オンライン送信とキューで共通です。
type Request struct {
	Endpoint string
	Method   string
	Headers  map[string]string
	Body     string
}

// RemoteStore はリモートの勤怠ストアです。
type RemoteStore interface {
	PrepareCheckIn(in attendance.CheckInInput) (Request, error)
	PrepareCheckOut(in attendance.CheckOutInput) (Request, error)
	Submit(ctx context.Context, req Request) (*attendance.Record, error)
	List(ctx context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error)
}

// Locator は現在地を取得します。
type Locator interface {
	GetCurrentLocation(ctx context.Context) (geo.Reading, error)
}

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// Config は端末側の設定です。
type Config struct {
	EmployeeID      string
	EmployeeName    string
	DeviceInfo      string
	Zones           []geo.Zone
	EnforceGeofence bool
}

// Dependencies は Tracker が利用するコンポーネントです。Clock 以外は必須です。
type Dependencies struct {
	Remote  RemoteStore
	Queue   *syncqueue.Queue
	Monitor *connectivity.Monitor
	Locator Locator
	Policy  attendance.Policy
	Clock   Clock
}

// CheckInData は出勤打刻の入力です。Location が nil なら Locator から取得します。
type CheckInData struct {
	Notes    string
	PhotoRef *string
	Location *geo.Reading
}

// CheckOutData は退勤打刻の入力です。
type CheckOutData struct {
	Location *geo.Reading
}

// Tracker は接続状態に応じて直接送信とキュー投入を切り替える端末側のサービスです。
type Tracker struct {
	cfg     Config
	remote  RemoteStore
	queue   *syncqueue.Queue
	monitor *connectivity.Monitor
	locator Locator
	policy  attendance.Policy
	clock   Clock
	logger  *slog.Logger

	mu          sync.Mutex
	current     Outcome
	unsubscribe func()
	closed      bool
	wg          sync.WaitGroup
}

// New は Tracker を生成します。
func New(cfg Config, deps Dependencies) (*Tracker, error) {
	if strings.TrimSpace(cfg.EmployeeID) == "" {
		return nil, attendance.ErrInvalidEmployeeID
	}
	if deps.Remote == nil || deps.Queue == nil || deps.Monitor == nil || deps.Locator == nil {
		return nil, errors.New("tracker: missing dependency")
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	return &Tracker{
		cfg:     cfg,
		remote:  deps.Remote,
		queue:   deps.Queue,
		monitor: deps.Monitor,
		locator: deps.Locator,
		policy:  deps.Policy,
		clock:   deps.Clock,
		logger:  slog.Default(),
	}, nil
}

// WithLogger はロガーを差し替えます。
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Start はオンライン復帰時の送信を購読します。起動時にオンラインなら即座に送信と再取得を行います。
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.unsubscribe != nil || t.closed {
		t.mu.Unlock()
		return
	}
	t.unsubscribe = t.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		// 解除前に Set が複製した購読者が Close 後に呼ばれることがあります。
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.wg.Add(1)
		t.mu.Unlock()
		go func() {
			defer t.wg.Done()
			t.Sync(ctx)
		}()
	})
	t.mu.Unlock()

	if t.monitor.Online() {
		t.Sync(ctx)
	}
}

// Close は購読を解除し、実行中の送信の終了を待ちます。Close 後の Start は何もしません。
func (t *Tracker) Close() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.closed = true
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	t.wg.Wait()
}

// Today は当日の打刻結果を返します。記録がなければ Confirmed{nil} です。
func (t *Tracker) Today() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.todayLocked()
}

// State は当日の状態を返します。
func (t *Tracker) State() attendance.State {
	return attendance.StateOn(t.Today().Snapshot(), t.today())
}

// CanCheckIn は出勤打刻が可能かどうかを返します。
func (t *Tracker) CanCheckIn() bool {
	return t.State() == attendance.StateNoCheckIn
}

// CanCheckOut は退勤打刻が可能かどうかを返します。
func (t *Tracker) CanCheckOut() bool {
	return t.State() == attendance.StateCheckedIn
}

// CheckIn は出勤を打刻します。オンラインなら送信し、オフラインならキューに積んで Pending を返します。
func (t *Tracker) CheckIn(ctx context.Context, data CheckInData) (Outcome, error) {
	reading, err := t.locate(ctx, data.Location)
	if err != nil {
		return nil, err
	}
	distance, err := t.checkZones(reading)
	if err != nil {
		return nil, err
	}

	in := attendance.CheckInInput{
		EmployeeID:     t.cfg.EmployeeID,
		EmployeeName:   t.cfg.EmployeeName,
		At:             t.clock.Now(),
		Location:       reading,
		DistanceMeters: distance,
		Notes:          data.Notes,
		PhotoRef:       data.PhotoRef,
		DeviceInfo:     t.cfg.DeviceInfo,
	}

	t.mu.Lock()
	current := t.todayLocked().Snapshot()
	t.mu.Unlock()

	projected, err := t.policy.CheckIn(current, in)
	if err != nil {
		return nil, err
	}
	in.At = *projected.CheckInAt

	req, err := t.remote.PrepareCheckIn(in)
	if err != nil {
		return nil, err
	}
	return t.dispatch(ctx, req, projected)
}

// CheckOut は退勤を打刻します。
func (t *Tracker) CheckOut(ctx context.Context, data CheckOutData) (Outcome, error) {
	var reading geo.Reading
	if t.cfg.EnforceGeofence || data.Location != nil {
		r, err := t.locate(ctx, data.Location)
		if err != nil {
			return nil, err
		}
		if _, err := t.checkZones(r); err != nil {
			return nil, err
		}
		reading = r
	}

	t.mu.Lock()
	current := t.todayLocked().Snapshot()
	t.mu.Unlock()

	projected, err := t.policy.CheckOut(current, t.clock.Now())
	if err != nil {
		return nil, err
	}

	req, err := t.remote.PrepareCheckOut(attendance.CheckOutInput{
		EmployeeID: t.cfg.EmployeeID,
		Date:       projected.Date,
		At:         *projected.CheckOutAt,
		Location:   reading,
	})
	if err != nil {
		return nil, err
	}
	return t.dispatch(ctx, req, projected)
}

// Refresh は当日の記録をリモートストアから取得して手元の結果を更新します。
// キューに未送信の操作が残っている間は Pending を置き換えません。
func (t *Tracker) Refresh(ctx context.Context) (Outcome, error) {
	if !t.monitor.Online() {
		return t.Today(), attendance.ErrRemoteUnavailable
	}

	date := t.today()
	records, err := t.remote.List(ctx, attendance.ListRecordsFilter{EmployeeID: t.cfg.EmployeeID, Date: date, Limit: 1})
	if err != nil {
		return t.Today(), err
	}
	var rec *attendance.Record
	for _, r := range records {
		if r != nil && r.Date == date {
			rec = r
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, pending := t.current.(Pending); pending && t.queue.Len() > 0 {
		return t.current, nil
	}
	t.current = Confirmed{Record: rec.Clone()}
	return t.current, nil
}

// Sync はキューを送信し、1 件でも送れたかキューが空なら当日の記録を再取得します。
func (t *Tracker) Sync(ctx context.Context) syncqueue.DrainReport {
	report := t.queue.Drain(ctx)
	if report.Skipped {
		return report
	}
	if report.Delivered > 0 || report.Remaining == 0 {
		if _, err := t.Refresh(ctx); err != nil {
			t.logger.Warn("refresh after sync failed", "error", err)
		}
	}
	return report
}

// History は社員の勤怠記録と集計を返します。
func (t *Tracker) History(ctx context.Context, limit int) ([]*attendance.Record, attendance.Stats, error) {
	if !t.monitor.Online() {
		return nil, attendance.Stats{}, attendance.ErrRemoteUnavailable
	}
	records, err := t.remote.List(ctx, attendance.ListRecordsFilter{EmployeeID: t.cfg.EmployeeID, Limit: limit})
	if err != nil {
		return nil, attendance.Stats{}, err
	}
	return records, attendance.Summarize(records), nil
}

// PendingOperations はキューに残っている操作を返します。
func (t *Tracker) PendingOperations() []syncqueue.Operation {
	return t.queue.Pending()
}

func (t *Tracker) dispatch(ctx context.Context, req Request, projected *attendance.Record) (Outcome, error) {
	if t.monitor.Online() {
		rec, err := t.remote.Submit(ctx, req)
		switch {
		case err == nil:
			outcome := Confirmed{Record: rec.Clone()}
			t.setCurrent(outcome)
			return outcome, nil
		case errors.Is(err, attendance.ErrRemoteUnavailable):
			t.logger.Warn("remote store unreachable, queueing request", "endpoint", req.Endpoint, "error", err)
			t.monitor.Set(false)
		default:
			return nil, err
		}
	}

	op, err := t.queue.Enqueue(req.Endpoint, req.Method, req.Headers, req.Body)
	if err != nil {
		return nil, fmt.Errorf("queue request: %w", err)
	}
	outcome := Pending{Record: projected.Clone(), OperationID: op.ID}
	t.setCurrent(outcome)
	return outcome, nil
}

func (t *Tracker) locate(ctx context.Context, override *geo.Reading) (geo.Reading, error) {
	if override != nil {
		return *override, nil
	}
	return t.locator.GetCurrentLocation(ctx)
}

func (t *Tracker) checkZones(reading geo.Reading) (float64, error) {
	if len(t.cfg.Zones) == 0 {
		return 0, nil
	}
	match, err := geo.NearestZone(reading.Coordinate(), t.cfg.Zones)
	if err != nil {
		return 0, err
	}
	if t.cfg.EnforceGeofence && !match.WithinRadius {
		return 0, fmt.Errorf("%w: %.0fm from %s", attendance.ErrOutsideZone, match.DistanceMeters, match.Zone.Name)
	}
	return math.Round(match.DistanceMeters), nil
}

func (t *Tracker) setCurrent(outcome Outcome) {
	t.mu.Lock()
	t.current = outcome
	t.mu.Unlock()
}

func (t *Tracker) today() string {
	return t.policy.DateOf(t.clock.Now())
}

func (t *Tracker) todayLocked() Outcome {
	if t.current == nil {
		return Confirmed{}
	}
	if rec := t.current.Snapshot(); rec != nil && rec.Date != t.today() {
		return Confirmed{}
	}
	return t.current
}
