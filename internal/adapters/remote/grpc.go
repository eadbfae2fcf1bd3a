package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/attendance-sync/internal/adapters/grpc/attendancev1"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// MethodRPC はキューに積む gRPC 呼び出しの Method です。
const MethodRPC = "RPC"

// GRPCTransport は AttendanceService を呼び出す Transport です。
type GRPCTransport struct {
	client  attendancev1.AttendanceServiceClient
	health  healthpb.HealthClient
	timeout time.Duration
}

// NewGRPCTransport は接続済みの cc から GRPCTransport を生成します。
func NewGRPCTransport(cc grpc.ClientConnInterface, timeout time.Duration) *GRPCTransport {
	return &GRPCTransport{
		client:  attendancev1.NewAttendanceServiceClient(cc),
		health:  healthpb.NewHealthClient(cc),
		timeout: timeout,
	}
}

func (t *GRPCTransport) Build(action string, data json.RawMessage) (tracker.Request, error) {
	var method string
	switch action {
	case wire.ActionCheckIn:
		method = attendancev1.FullMethodCheckIn
	case wire.ActionCheckOut:
		method = attendancev1.FullMethodCheckOut
	default:
		return tracker.Request{}, fmt.Errorf("unknown action %q", action)
	}
	return tracker.Request{
		Endpoint: method,
		Method:   MethodRPC,
		Headers:  map[string]string{},
		Body:     string(data),
	}, nil
}

func (t *GRPCTransport) Do(ctx context.Context, req tracker.Request) (wire.Record, error) {
	if req.Method != MethodRPC {
		return wire.Record{}, fmt.Errorf("unsupported method %q for gRPC transport", req.Method)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return wire.Record{}, fmt.Errorf("decode request body: %w", err)
	}
	in, err := structpb.NewStruct(payload)
	if err != nil {
		return wire.Record{}, fmt.Errorf("encode request body: %w", err)
	}

	if len(req.Headers) > 0 {
		pairs := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			pairs = append(pairs, strings.ToLower(k), v)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}

	var rec wire.Record
	if err := t.invoke(ctx, req.Endpoint, in, &rec); err != nil {
		return wire.Record{}, err
	}
	return rec, nil
}

func (t *GRPCTransport) List(ctx context.Context, query wire.ListQuery) ([]wire.Record, error) {
	in, err := attendancev1.Encode(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	var list wire.RecordList
	if err := t.invoke(ctx, attendancev1.FullMethodListRecords, in, &list); err != nil {
		return nil, err
	}
	return list.Records, nil
}

func (t *GRPCTransport) Check(ctx context.Context) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := t.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("%w: %v", attendance.ErrRemoteUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: health status %s", attendance.ErrRemoteUnavailable, resp.GetStatus())
	}
	return nil
}

func (t *GRPCTransport) invoke(ctx context.Context, method string, in *structpb.Struct, out any) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := t.client.Invoke(ctx, method, in)
	if err != nil {
		return fromStatusError(err)
	}
	if err := attendancev1.Decode(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *GRPCTransport) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

// fromStatusError は gRPC のステータスをドメインのエラーに戻します。
func fromStatusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", attendance.ErrRemoteUnavailable, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", attendance.ErrRemoteUnavailable, st.Message())
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == attendancev1.ErrorDomain && info.GetReason() != "" {
			return &attendance.RejectedError{Code: info.GetReason(), Message: st.Message()}
		}
	}
	return &attendance.RejectedError{Code: "internal", Message: st.Message()}
}

var _ Transport = (*GRPCTransport)(nil)
