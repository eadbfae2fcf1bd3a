package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
)

var wib = time.FixedZone("WIB", 7*60*60)

type stubUseCase struct {
	checkInInput  attendance.CheckInInput
	checkInErr    error
	checkOutInput attendance.CheckOutInput
	checkOutErr   error
	listInput     attendance.ListRecordsInput
	listOut       []*attendance.Record
}

func (s *stubUseCase) CheckIn(_ context.Context, in attendance.CheckInInput) (*attendance.Record, error) {
	s.checkInInput = in
	if s.checkInErr != nil {
		return nil, s.checkInErr
	}
	at := in.At
	return &attendance.Record{ID: "att-1", EmployeeID: in.EmployeeID, Date: in.At.Format(attendance.DateLayout), CheckInAt: &at, Status: attendance.StatusPresent}, nil
}

func (s *stubUseCase) CheckOut(_ context.Context, in attendance.CheckOutInput) (*attendance.Record, error) {
	s.checkOutInput = in
	if s.checkOutErr != nil {
		return nil, s.checkOutErr
	}
	checkIn := in.At.Add(-9 * time.Hour)
	out := in.At
	return &attendance.Record{ID: "att-1", EmployeeID: in.EmployeeID, Date: in.Date, CheckInAt: &checkIn, CheckOutAt: &out, Status: attendance.StatusPresent}, nil
}

func (s *stubUseCase) ListRecords(_ context.Context, in attendance.ListRecordsInput) ([]*attendance.Record, error) {
	s.listInput = in
	return s.listOut, nil
}

func newTestApp(stub *stubUseCase) *fiber.App {
	app := fiber.New()
	NewAttendanceHTTPHandler(stub, attendance.NewPolicy(wib, attendance.DefaultLateThreshold)).Register(app)
	return app
}

func postAction(t *testing.T, app *fiber.App, action string, data any, headers map[string]string) (*http.Response, wire.Envelope) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal data: %v", err)
	}
	body, err := json.Marshal(wire.ActionRequest{Action: action, Data: raw})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, AttendancePath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp, decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) wire.Envelope {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode envelope %q: %v", raw, err)
	}
	return env
}

func decodeData(t *testing.T, env wire.Envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func TestAttendanceHTTPHandler_CheckIn(t *testing.T) {
	t.Parallel()

	stub := &stubUseCase{}
	app := newTestApp(stub)

	resp, env := postAction(t, app, wire.ActionCheckIn,
		wire.CheckIn{EmployeeID: "e-1", Date: "2025-01-06", CheckInTime: "07:59:59"},
		map[string]string{"User-Agent": "attendance-cli/1.0"})

	if resp.StatusCode != fiber.StatusCreated || !env.Success {
		t.Fatalf("unexpected response: %d %+v", resp.StatusCode, env)
	}
	if stub.checkInInput.DeviceInfo != "attendance-cli/1.0" {
		t.Errorf("expected device info from User-Agent, got %q", stub.checkInInput.DeviceInfo)
	}
	if !stub.checkInInput.At.Equal(time.Date(2025, 1, 6, 7, 59, 59, 0, wib)) {
		t.Errorf("unexpected check-in time: %v", stub.checkInInput.At)
	}

	var rec wire.Record
	decodeData(t, env, &rec)
	if rec.ID != "att-1" || rec.CheckInTime != "07:59:59" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestAttendanceHTTPHandler_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stub   *stubUseCase
		action string
		data   any
		status int
		code   string
	}{
		{
			name:   "duplicate check-in",
			stub:   &stubUseCase{checkInErr: attendance.ErrAlreadyCheckedIn},
			action: wire.ActionCheckIn,
			data:   wire.CheckIn{EmployeeID: "e-1", Date: "2025-01-06", CheckInTime: "08:00:00"},
			status: fiber.StatusConflict,
			code:   "already_checked_in",
		},
		{
			name:   "check-out without check-in",
			stub:   &stubUseCase{checkOutErr: attendance.ErrNoActiveCheckIn},
			action: wire.ActionCheckOut,
			data:   wire.CheckOut{EmployeeID: "e-1", Date: "2025-01-06", CheckOutTime: "17:00:00"},
			status: fiber.StatusConflict,
			code:   "no_active_check_in",
		},
		{
			name:   "invalid time",
			stub:   &stubUseCase{},
			action: wire.ActionCheckOut,
			data:   wire.CheckOut{EmployeeID: "e-1", Date: "2025-01-06", CheckOutTime: "late"},
			status: fiber.StatusBadRequest,
			code:   "invalid_time",
		},
		{
			name:   "unknown action",
			stub:   &stubUseCase{},
			action: "dance",
			data:   map[string]string{},
			status: fiber.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "storage failure",
			stub:   &stubUseCase{checkInErr: errors.New("sheet locked")},
			action: wire.ActionCheckIn,
			data:   wire.CheckIn{EmployeeID: "e-1", Date: "2025-01-06", CheckInTime: "08:00:00"},
			status: fiber.StatusInternalServerError,
			code:   "internal",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, env := postAction(t, newTestApp(tc.stub), tc.action, tc.data, nil)
			if resp.StatusCode != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, resp.StatusCode)
			}
			if env.Success || env.Code != tc.code || env.Error == "" {
				t.Errorf("unexpected envelope: %+v", env)
			}
		})
	}
}

func TestAttendanceHTTPHandler_CheckOut(t *testing.T) {
	t.Parallel()

	stub := &stubUseCase{}
	resp, env := postAction(t, newTestApp(stub), wire.ActionCheckOut,
		wire.CheckOut{EmployeeID: "e-1", Date: "2025-01-06", CheckOutTime: "17:30:00"}, nil)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stub.checkOutInput.Date != "2025-01-06" {
		t.Errorf("unexpected date: %q", stub.checkOutInput.Date)
	}
	var rec wire.Record
	decodeData(t, env, &rec)
	if rec.CheckOutTime != "17:30:00" {
		t.Fatalf("expected 17:30:00, got %q", rec.CheckOutTime)
	}
}

func TestAttendanceHTTPHandler_List(t *testing.T) {
	t.Parallel()

	in := time.Date(2025, 1, 6, 8, 10, 0, 0, wib)
	stub := &stubUseCase{listOut: []*attendance.Record{
		{ID: "a", EmployeeID: "e-1", Date: "2025-01-06", CheckInAt: &in, Status: attendance.StatusLate},
	}}
	app := newTestApp(stub)

	req := httptest.NewRequest(http.MethodGet, AttendancePath+"?employeeId=e-1&date=2025-01-06&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	env := decodeEnvelope(t, resp)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := attendance.ListRecordsInput{EmployeeID: "e-1", Date: "2025-01-06", Limit: 5}
	if stub.listInput != want {
		t.Errorf("expected %+v, got %+v", want, stub.listInput)
	}
	var list wire.RecordList
	decodeData(t, env, &list)
	if len(list.Records) != 1 || list.Records[0].Status != "late" {
		t.Fatalf("unexpected list: %+v", list.Records)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	resp, err := newTestApp(&stubUseCase{}).Test(httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
