// Package attendancev1 は attendance.v1.AttendanceService のサービス定義です。
// メッセージは google.protobuf.Struct で、内容は wire パッケージの JSON 表現です。
package attendancev1

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "attendance.v1.AttendanceService"

	FullMethodCheckIn     = "/" + ServiceName + "/CheckIn"
	FullMethodCheckOut    = "/" + ServiceName + "/CheckOut"
	FullMethodListRecords = "/" + ServiceName + "/ListRecords"
)

// AttendanceServiceServer はサーバ側の実装が満たすインターフェースです。
type AttendanceServiceServer interface {
	CheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckOut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAttendanceServiceServer はサービスを登録します。
func RegisterAttendanceServiceServer(s grpc.ServiceRegistrar, srv AttendanceServiceServer) {
	s.RegisterService(&AttendanceService_ServiceDesc, srv)
}

// AttendanceServiceClient はクライアント側のスタブです。
type AttendanceServiceClient interface {
	Invoke(ctx context.Context, fullMethod string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type attendanceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAttendanceServiceClient はクライアントを生成します。
func NewAttendanceServiceClient(cc grpc.ClientConnInterface) AttendanceServiceClient {
	return &attendanceServiceClient{cc: cc}
}

func (c *attendanceServiceClient) Invoke(ctx context.Context, fullMethod string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler(fullMethod string, call func(AttendanceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AttendanceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AttendanceServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AttendanceService_ServiceDesc は grpc.ServiceDesc です。
var AttendanceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttendanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CheckIn",
			Handler:    unaryHandler(FullMethodCheckIn, AttendanceServiceServer.CheckIn),
		},
		{
			MethodName: "CheckOut",
			Handler:    unaryHandler(FullMethodCheckOut, AttendanceServiceServer.CheckOut),
		},
		{
			MethodName: "ListRecords",
			Handler:    unaryHandler(FullMethodListRecords, AttendanceServiceServer.ListRecords),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "attendance/v1/attendance.proto",
}

// ErrorDomain は ErrorInfo の Domain に設定する値です。
const ErrorDomain = "attendance"

// Encode は JSON 表現を持つ値を Struct に変換します。
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode は Struct を v に読み込みます。
func Decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = new(structpb.Struct)
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
