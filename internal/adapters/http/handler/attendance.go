package handler

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/syncqueue"
)

const (
	// AttendancePath は勤怠 API のパスです。
	AttendancePath = "/api/attendance"
	// HealthPath は疎通確認用のパスです。
	HealthPath = "/healthz"
)

// AttendanceHTTPHandler は勤怠 API の HTTP 実装です。
type AttendanceHTTPHandler struct {
	svc    attendance.UseCase
	policy attendance.Policy
	logger *slog.Logger
}

// NewAttendanceHTTPHandler は AttendanceHTTPHandler を生成します。
func NewAttendanceHTTPHandler(svc attendance.UseCase, policy attendance.Policy) *AttendanceHTTPHandler {
	return &AttendanceHTTPHandler{svc: svc, policy: policy, logger: slog.Default()}
}

// WithLogger はロガーを差し替えます。
func (h *AttendanceHTTPHandler) WithLogger(logger *slog.Logger) *AttendanceHTTPHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Register はルートを登録します。
func (h *AttendanceHTTPHandler) Register(router fiber.Router) {
	router.Get(HealthPath, Health)
	api := router.Group(AttendancePath)
	api.Post("", h.Submit)
	api.Get("", h.List)
}

// Health は疎通確認に応答します。
func Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// Submit は action に応じて出勤または退勤を記録します。
func (h *AttendanceHTTPHandler) Submit(c *fiber.Ctx) error {
	var req wire.ActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(wire.Envelope{Error: "invalid request body", Code: "invalid_request"})
	}

	if opID := c.Get(syncqueue.HeaderOperationID); opID != "" {
		h.logger.Info("replayed request", "operation_id", opID, "action", req.Action)
	}

	switch req.Action {
	case wire.ActionCheckIn:
		var payload wire.CheckIn
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(wire.Envelope{Error: "invalid check-in data", Code: "invalid_request"})
		}
		in, err := payload.Input(h.policy)
		if err != nil {
			return h.fail(c, err)
		}
		if in.DeviceInfo == "" {
			in.DeviceInfo = wire.TruncateDeviceInfo(c.Get(fiber.HeaderUserAgent))
		}
		rec, err := h.svc.CheckIn(c.UserContext(), in)
		if err != nil {
			return h.fail(c, err)
		}
		return respond(c, fiber.StatusCreated, wire.NewRecord(rec))

	case wire.ActionCheckOut:
		var payload wire.CheckOut
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(wire.Envelope{Error: "invalid check-out data", Code: "invalid_request"})
		}
		in, err := payload.Input(h.policy)
		if err != nil {
			return h.fail(c, err)
		}
		rec, err := h.svc.CheckOut(c.UserContext(), in)
		if err != nil {
			return h.fail(c, err)
		}
		return respond(c, fiber.StatusOK, wire.NewRecord(rec))

	default:
		return c.Status(fiber.StatusBadRequest).JSON(wire.Envelope{Error: "unknown action " + strconv.Quote(req.Action), Code: "invalid_request"})
	}
}

// List は勤怠記録を返します。employeeId と date で絞り込めます。
func (h *AttendanceHTTPHandler) List(c *fiber.Ctx) error {
	records, err := h.svc.ListRecords(c.UserContext(), attendance.ListRecordsInput{
		EmployeeID: c.Query("employeeId"),
		Date:       c.Query("date"),
		Limit:      c.QueryInt("limit", 0),
	})
	if err != nil {
		return h.fail(c, err)
	}

	list := wire.RecordList{Records: make([]wire.Record, 0, len(records))}
	for _, rec := range records {
		list.Records = append(list.Records, wire.NewRecord(rec))
	}
	return respond(c, fiber.StatusOK, list)
}

func (h *AttendanceHTTPHandler) fail(c *fiber.Ctx, err error) error {
	status := wire.StatusCode(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error("attendance request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(wire.Envelope{Error: err.Error(), Code: attendance.ErrorCode(err)})
}

func respond(c *fiber.Ctx, status int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(wire.Envelope{Error: "encode response", Code: "internal"})
	}
	return c.Status(status).JSON(wire.Envelope{Success: true, Data: raw})
}
