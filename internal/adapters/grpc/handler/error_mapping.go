package handler

import (
	"net/http"

	"github.com/ogurasousui/attendance-sync/internal/adapters/grpc/attendancev1"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}

	var code codes.Code
	switch wire.StatusCode(err) {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusConflict:
		code = codes.FailedPrecondition
	case http.StatusNotFound:
		code = codes.NotFound
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())
	reason := attendance.ErrorCode(err)
	if reason == "internal" {
		return st.Err()
	}
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: attendancev1.ErrorDomain})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}
