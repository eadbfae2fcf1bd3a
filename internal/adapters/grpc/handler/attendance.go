package handler

import (
	"context"

	"github.com/ogurasousui/attendance-sync/internal/adapters/grpc/attendancev1"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AttendanceGrpcHandler は AttendanceService の gRPC 実装です。
type AttendanceGrpcHandler struct {
	svc    attendance.UseCase
	policy attendance.Policy
}

var _ attendancev1.AttendanceServiceServer = (*AttendanceGrpcHandler)(nil)

// NewAttendanceGrpcHandler は AttendanceGrpcHandler を生成します。
func NewAttendanceGrpcHandler(svc attendance.UseCase, policy attendance.Policy) *AttendanceGrpcHandler {
	return &AttendanceGrpcHandler{svc: svc, policy: policy}
}

// CheckIn は出勤を記録します。
func (h *AttendanceGrpcHandler) CheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	var payload wire.CheckIn
	if err := attendancev1.Decode(req, &payload); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode check-in: %v", err)
	}
	in, err := payload.Input(h.policy)
	if err != nil {
		return nil, toStatusError(err)
	}
	if in.DeviceInfo == "" {
		in.DeviceInfo = wire.TruncateDeviceInfo(userAgent(ctx))
	}

	created, err := h.svc.CheckIn(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encodeRecord(created)
}

// CheckOut は退勤を記録します。
func (h *AttendanceGrpcHandler) CheckOut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	var payload wire.CheckOut
	if err := attendancev1.Decode(req, &payload); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode check-out: %v", err)
	}
	in, err := payload.Input(h.policy)
	if err != nil {
		return nil, toStatusError(err)
	}

	updated, err := h.svc.CheckOut(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encodeRecord(updated)
}

// ListRecords は勤怠記録の一覧を返します。
func (h *AttendanceGrpcHandler) ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var query wire.ListQuery
	if err := attendancev1.Decode(req, &query); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode list query: %v", err)
	}

	records, err := h.svc.ListRecords(ctx, attendance.ListRecordsInput{
		EmployeeID: query.EmployeeID,
		Date:       query.Date,
		Limit:      query.Limit,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	list := wire.RecordList{Records: make([]wire.Record, 0, len(records))}
	for _, rec := range records {
		list.Records = append(list.Records, wire.NewRecord(rec))
	}
	out, err := attendancev1.Encode(list)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode records: %v", err)
	}
	return out, nil
}

func encodeRecord(rec *attendance.Record) (*structpb.Struct, error) {
	out, err := attendancev1.Encode(wire.NewRecord(rec))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	return out, nil
}

func userAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get("user-agent"); len(values) > 0 {
		return values[0]
	}
	return ""
}
