package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/connectivity"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/ogurasousui/attendance-sync/internal/core/geolocation"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
)

var wib = time.FixedZone("WIB", 7*60*60)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stubClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stubClock) Set(t time.Time) {
	s.mu.Lock()
	s.now = t
	s.mu.Unlock()
}

type wireRequest struct {
	Kind       string `json:"kind"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	At         string `json:"at"`
}

// fakeRemote はサーバ側の Service をそのまま使うリモートストアです。
type fakeRemote struct {
	mu          sync.Mutex
	svc         *attendance.Service
	unavailable bool
	rejectAll   error
	submits     int
}

func newFakeRemote(policy attendance.Policy) *fakeRemote {
	return &fakeRemote{svc: attendance.NewService(newMemoryRepo(), policy, nil, nil)}
}

func (f *fakeRemote) PrepareCheckIn(in attendance.CheckInInput) (Request, error) {
	body, _ := json.Marshal(wireRequest{Kind: "checkIn", EmployeeID: in.EmployeeID, Name: in.EmployeeName, At: in.At.Format(time.RFC3339)})
	return Request{Endpoint: "/api/attendance", Method: "POST", Body: string(body)}, nil
}

func (f *fakeRemote) PrepareCheckOut(in attendance.CheckOutInput) (Request, error) {
	body, _ := json.Marshal(wireRequest{Kind: "checkOut", EmployeeID: in.EmployeeID, Date: in.Date, At: in.At.Format(time.RFC3339)})
	return Request{Endpoint: "/api/attendance", Method: "POST", Body: string(body)}, nil
}

func (f *fakeRemote) Submit(ctx context.Context, req Request) (*attendance.Record, error) {
	f.mu.Lock()
	f.submits++
	unavailable, reject := f.unavailable, f.rejectAll
	f.mu.Unlock()
	if unavailable {
		return nil, attendance.ErrRemoteUnavailable
	}
	if reject != nil {
		return nil, reject
	}

	var wire wireRequest
	if err := json.Unmarshal([]byte(req.Body), &wire); err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339, wire.At)
	if err != nil {
		return nil, err
	}
	if wire.Kind == "checkIn" {
		return f.svc.CheckIn(ctx, attendance.CheckInInput{EmployeeID: wire.EmployeeID, EmployeeName: wire.Name, At: at})
	}
	return f.svc.CheckOut(ctx, attendance.CheckOutInput{EmployeeID: wire.EmployeeID, Date: wire.Date, At: at})
}

func (f *fakeRemote) Deliver(ctx context.Context, op syncqueue.Operation) error {
	_, err := f.Submit(ctx, Request{Endpoint: op.TargetEndpoint, Method: op.Method, Headers: op.Headers, Body: op.SerializedBody})
	return err
}

func (f *fakeRemote) List(ctx context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	f.mu.Lock()
	unavailable := f.unavailable
	f.mu.Unlock()
	if unavailable {
		return nil, attendance.ErrRemoteUnavailable
	}
	return f.svc.ListRecords(ctx, attendance.ListRecordsInput{EmployeeID: filter.EmployeeID, Date: filter.Date, Limit: filter.Limit})
}

func (f *fakeRemote) set(unavailable bool, reject error) {
	f.mu.Lock()
	f.unavailable = unavailable
	f.rejectAll = reject
	f.mu.Unlock()
}

func (f *fakeRemote) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]*attendance.Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]*attendance.Record)}
}

func (r *memoryRepo) Create(_ context.Context, rec *attendance.Record) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rec.EmployeeID + "/" + rec.Date
	if _, ok := r.records[key]; ok {
		return nil, attendance.ErrAlreadyCheckedIn
	}
	clone := rec.Clone()
	clone.ID = key
	r.records[key] = clone
	return clone.Clone(), nil
}

func (r *memoryRepo) UpdateCheckOut(_ context.Context, rec *attendance.Record) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[rec.EmployeeID+"/"+rec.Date]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	out := *rec.CheckOutAt
	existing.CheckOutAt = &out
	return existing.Clone(), nil
}

func (r *memoryRepo) FindByEmployeeAndDate(_ context.Context, employeeID, date string) (*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[employeeID+"/"+date]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *memoryRepo) List(_ context.Context, filter attendance.ListRecordsFilter) ([]*attendance.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*attendance.Record
	for _, rec := range r.records {
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Date != "" && rec.Date != filter.Date {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

var campus = geo.Zone{Name: "campus", Latitude: -7.8003, Longitude: 110.3752, RadiusMeters: 800}

type harness struct {
	tracker *Tracker
	remote  *fakeRemote
	queue   *syncqueue.Queue
	storage *syncqueue.MemoryStorage
	monitor *connectivity.Monitor
	clock   *stubClock
}

func newHarness(t *testing.T, online bool, cfg Config, locator Locator) *harness {
	t.Helper()

	policy := attendance.NewPolicy(wib, attendance.DefaultLateThreshold)
	clk := &stubClock{now: time.Date(2025, 1, 6, 7, 45, 0, 0, wib)}
	remote := newFakeRemote(policy)
	storage := &syncqueue.MemoryStorage{}
	queue, err := syncqueue.New(storage, remote, clk)
	if err != nil {
		t.Fatalf("syncqueue.New returned error: %v", err)
	}
	monitor := connectivity.NewMonitor(online)
	if locator == nil {
		locator = geolocation.NewProvider(geolocation.StaticPlatform{Latitude: campus.Latitude, Longitude: campus.Longitude, AccuracyMeters: 10, Clock: clk}, geolocation.DefaultOptions(), clk)
	}
	if cfg.EmployeeID == "" {
		cfg.EmployeeID = "e-1"
		cfg.EmployeeName = "Ayu"
	}

	tr, err := New(cfg, Dependencies{Remote: remote, Queue: queue, Monitor: monitor, Locator: locator, Policy: policy, Clock: clk})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return &harness{tracker: tr, remote: remote, queue: queue, storage: storage, monitor: monitor, clock: clk}
}

func TestTracker_OnlineCheckInConfirmed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, Config{Zones: []geo.Zone{campus}}, nil)
	outcome, err := h.tracker.CheckIn(context.Background(), CheckInData{Notes: "hi"})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	confirmed, ok := outcome.(Confirmed)
	if !ok {
		t.Fatalf("expected Confirmed, got %T", outcome)
	}
	if confirmed.Record.ID == "" || confirmed.Record.Status != attendance.StatusPresent {
		t.Fatalf("unexpected record: %+v", confirmed.Record)
	}
	if h.queue.Len() != 0 {
		t.Fatal("expected nothing queued while online")
	}
	if !h.tracker.CanCheckOut() || h.tracker.CanCheckIn() {
		t.Fatalf("unexpected state after check-in: %s", h.tracker.State())
	}

	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); !errors.Is(err, attendance.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	if h.remote.submitCount() != 1 {
		t.Fatalf("expected local state machine to stop the duplicate, got %d submits", h.remote.submitCount())
	}
}

func TestTracker_OfflineQueuesThenSyncsOnReconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	h.tracker.Start(context.Background())

	in, err := h.tracker.CheckIn(context.Background(), CheckInData{})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	pending, ok := in.(Pending)
	if !ok || pending.OperationID == "" || !in.IsPending() {
		t.Fatalf("expected Pending outcome, got %#v", in)
	}

	h.clock.Set(time.Date(2025, 1, 6, 17, 0, 0, 0, wib))
	out, err := h.tracker.CheckOut(context.Background(), CheckOutData{})
	if err != nil {
		t.Fatalf("CheckOut returned error: %v", err)
	}
	if out.Snapshot().CheckOutAt == nil || h.tracker.State() != attendance.StateCompleted {
		t.Fatalf("expected projected completed record, got %+v", out.Snapshot())
	}
	if h.queue.Len() != 2 || h.remote.submitCount() != 0 {
		t.Fatalf("expected 2 queued and 0 submitted, got %d/%d", h.queue.Len(), h.remote.submitCount())
	}

	h.monitor.Set(true)
	h.tracker.Close()

	if h.queue.Len() != 0 {
		t.Fatalf("expected queue to drain, %d left", h.queue.Len())
	}
	today := h.tracker.Today()
	if today.IsPending() {
		t.Fatal("expected refresh to confirm the record")
	}
	rec := today.Snapshot()
	if rec == nil || rec.CheckInClock() != "07:45:00" || rec.CheckOutClock() != "17:00:00" || rec.Status != attendance.StatusPresent {
		t.Fatalf("unexpected confirmed record: %+v", rec)
	}
}

func TestTracker_OnlineRejectionIsSurfaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, Config{}, nil)
	h.remote.set(false, &attendance.RejectedError{Code: "already_checked_in"})

	_, err := h.tracker.CheckIn(context.Background(), CheckInData{})
	if !errors.Is(err, attendance.ErrRemoteRejected) || !errors.Is(err, attendance.ErrAlreadyCheckedIn) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if h.queue.Len() != 0 {
		t.Fatal("expected rejected request not to be queued")
	}
}

func TestTracker_TransportFailureFallsBackToQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, Config{}, nil)
	h.remote.set(true, nil)

	outcome, err := h.tracker.CheckIn(context.Background(), CheckInData{})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if !outcome.IsPending() || h.queue.Len() != 1 {
		t.Fatalf("expected request to be queued, got %#v queue=%d", outcome, h.queue.Len())
	}
	if h.monitor.Online() {
		t.Fatal("expected monitor to go offline")
	}
}

func TestTracker_RefreshKeepsPendingWhileQueued(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	if _, err := h.tracker.Refresh(context.Background()); !errors.Is(err, attendance.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable while offline, got %v", err)
	}

	h.monitor.Set(true)
	outcome, err := h.tracker.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if !outcome.IsPending() {
		t.Fatal("expected Pending to survive refresh while the queue is not empty")
	}

	report := h.tracker.Sync(context.Background())
	if report.Delivered != 1 || h.tracker.Today().IsPending() {
		t.Fatalf("expected sync to confirm the record, report=%+v", report)
	}
}

func TestTracker_SyncHaltsOnFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	h.monitor.Set(true)
	h.remote.set(true, nil)

	report := h.tracker.Sync(context.Background())
	if report.Err == nil || report.Remaining != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !h.tracker.Today().IsPending() {
		t.Fatal("expected Pending to remain after failed sync")
	}
}

func TestTracker_StartDrainsWhenAlreadyOnline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	// 再起動を想定して同じストレージから作り直す。
	queue, err := syncqueue.New(h.storage, h.remote, h.clock)
	if err != nil {
		t.Fatalf("syncqueue.New returned error: %v", err)
	}
	monitor := connectivity.NewMonitor(true)
	restarted, err := New(Config{EmployeeID: "e-1"}, Dependencies{
		Remote:  h.remote,
		Queue:   queue,
		Monitor: monitor,
		Locator: geolocation.NewProvider(nil, geolocation.DefaultOptions(), nil),
		Policy:  attendance.NewPolicy(wib, attendance.DefaultLateThreshold),
		Clock:   h.clock,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	restarted.Start(context.Background())
	defer restarted.Close()

	if queue.Len() != 0 {
		t.Fatalf("expected start to drain, %d left", queue.Len())
	}
	if restarted.Today().Snapshot() == nil {
		t.Fatal("expected start to refresh today's record")
	}
}

func TestTracker_GeofenceAndLocationErrors(t *testing.T) {
	t.Parallel()

	far := geo.Reading{Latitude: -7.7, Longitude: 110.3752, AccuracyMeters: 5}
	h := newHarness(t, true, Config{Zones: []geo.Zone{campus}, EnforceGeofence: true}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{Location: &far}); !errors.Is(err, attendance.ErrOutsideZone) {
		t.Fatalf("expected ErrOutsideZone, got %v", err)
	}

	denied := geolocation.NewProvider(geolocation.PlatformFunc(func(context.Context, geolocation.Options) (geo.Reading, error) {
		return geo.Reading{}, &geolocation.PositionError{Code: geolocation.CodePermissionDenied}
	}), geolocation.DefaultOptions(), nil)
	h2 := newHarness(t, true, Config{}, denied)
	if _, err := h2.tracker.CheckIn(context.Background(), CheckInData{}); !errors.Is(err, geolocation.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if h.remote.submitCount()+h2.remote.submitCount() != 0 {
		t.Fatal("expected no remote call")
	}
}

func TestTracker_CheckOutWithoutCheckIn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	if _, err := h.tracker.CheckOut(context.Background(), CheckOutData{}); !errors.Is(err, attendance.ErrNoActiveCheckIn) {
		t.Fatalf("expected ErrNoActiveCheckIn, got %v", err)
	}
	if h.queue.Len() != 0 {
		t.Fatal("expected nothing queued")
	}
}

func TestTracker_QueuePersistFailureIsSurfaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	h.storage.SetFailure(errors.New("disk full"))
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); !errors.Is(err, syncqueue.ErrQueuePersistFailure) {
		t.Fatalf("expected ErrQueuePersistFailure, got %v", err)
	}
	if h.tracker.Today().Snapshot() != nil {
		t.Fatal("expected no projected record after failed enqueue")
	}
}

func TestTracker_HistoryAndNextDay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, Config{}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	h.clock.Set(time.Date(2025, 1, 7, 8, 30, 0, 0, wib))
	if !h.tracker.CanCheckIn() {
		t.Fatal("expected a new day to allow check-in")
	}
	outcome, err := h.tracker.CheckIn(context.Background(), CheckInData{})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if outcome.Snapshot().Status != attendance.StatusLate {
		t.Fatalf("expected late status, got %s", outcome.Snapshot().Status)
	}

	records, stats, err := h.tracker.History(context.Background(), 30)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(records) != 2 || stats.TotalPresent != 1 || stats.TotalLate != 1 || stats.Streak != 2 {
		t.Fatalf("unexpected history: %d records, %+v", len(records), stats)
	}
}

func TestTracker_CheckOutKeepsLateStatus(t *testing.T) {
	t.Parallel()

	for _, online := range []bool{true, false} {
		h := newHarness(t, online, Config{}, nil)
		h.clock.Set(time.Date(2025, 1, 6, 8, 20, 0, 0, wib))
		in, err := h.tracker.CheckIn(context.Background(), CheckInData{})
		if err != nil {
			t.Fatalf("online=%v: CheckIn returned error: %v", online, err)
		}
		if in.Snapshot().Status != attendance.StatusLate {
			t.Fatalf("online=%v: expected late check-in, got %s", online, in.Snapshot().Status)
		}

		h.clock.Set(time.Date(2025, 1, 6, 17, 0, 0, 0, wib))
		out, err := h.tracker.CheckOut(context.Background(), CheckOutData{})
		if err != nil {
			t.Fatalf("online=%v: CheckOut returned error: %v", online, err)
		}
		rec := out.Snapshot()
		if rec.CheckOutAt == nil || rec.Status != attendance.StatusLate {
			t.Fatalf("online=%v: expected completed late record, got %+v", online, rec)
		}

		if !online {
			h.monitor.Set(true)
			h.tracker.Sync(context.Background())
			rec = h.tracker.Today().Snapshot()
			if h.tracker.Today().IsPending() || rec.Status != attendance.StatusLate {
				t.Fatalf("expected synced record to stay late, got %+v", rec)
			}
		}
	}
}

func TestTracker_ListenerAfterCloseDoesNotSync(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, Config{}, nil)
	if _, err := h.tracker.CheckIn(context.Background(), CheckInData{}); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	// 先に登録した購読者が Close するため、Tracker の購読者は解除後に呼ばれます。
	h.monitor.Subscribe(func(online bool) {
		if online {
			h.tracker.Close()
		}
	})
	h.tracker.Start(context.Background())
	h.monitor.Set(true)

	time.Sleep(50 * time.Millisecond)
	if h.queue.Len() != 1 || h.remote.submitCount() != 0 {
		t.Fatalf("expected no sync after Close, queue=%d submits=%d", h.queue.Len(), h.remote.submitCount())
	}

	h.tracker.Start(context.Background())
	if h.queue.Len() != 1 {
		t.Fatal("expected Start after Close to do nothing")
	}
}
