package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/retry"
)

// APIError is a failed RPC. It carries a gRPC status so callers can use
// status.Code(err).
type APIError struct {
	RPC        string
	HTTPStatus int
	Code       codes.Code
	Message    string
	Details    []json.RawMessage
}

func (e *APIError) Error() string {
	if e.RPC != "" {
		return fmt.Sprintf("%s: %s: %s", e.RPC, retry.CodeName(e.Code), e.Message)
	}
	return fmt.Sprintf("%s: %s", retry.CodeName(e.Code), e.Message)
}

// GRPCStatus makes APIError visible to status.Code and status.FromError.
func (e *APIError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// ErrorBody is the Google JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status,omitempty"`
	Details []json.RawMessage `json:"details,omitempty"`
}

var httpToCode = map[int]codes.Code{
	http.StatusBadRequest:                   codes.InvalidArgument,
	http.StatusUnauthorized:                 codes.Unauthenticated,
	http.StatusForbidden:                    codes.PermissionDenied,
	http.StatusNotFound:                     codes.NotFound,
	http.StatusConflict:                     codes.Aborted,
	http.StatusPreconditionFailed:           codes.FailedPrecondition,
	http.StatusRequestedRangeNotSatisfiable: codes.OutOfRange,
	http.StatusTooManyRequests:              codes.ResourceExhausted,
	499:                                     codes.Canceled,
	http.StatusInternalServerError:          codes.Internal,
	http.StatusNotImplemented:               codes.Unimplemented,
	http.StatusBadGateway:                   codes.Unavailable,
	http.StatusServiceUnavailable:           codes.Unavailable,
	http.StatusGatewayTimeout:               codes.DeadlineExceeded,
}

// CodeFromHTTP maps an HTTP status to the closest gRPC code.
func CodeFromHTTP(httpStatus int) codes.Code {
	if c, ok := httpToCode[httpStatus]; ok {
		return c
	}
	switch {
	case httpStatus >= 200 && httpStatus < 300:
		return codes.OK
	case httpStatus >= 400 && httpStatus < 500:
		return codes.FailedPrecondition
	case httpStatus >= 500:
		return codes.Internal
	}
	return codes.Unknown
}

// HTTPStatus maps a gRPC code to the status the REST surface uses for it.
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorFromResponse builds an APIError from a non-2xx response body. The
// envelope's status name wins over the HTTP status.
func ErrorFromResponse(rpcName string, httpStatus int, body []byte) *APIError {
	e := &APIError{RPC: rpcName, HTTPStatus: httpStatus, Code: CodeFromHTTP(httpStatus)}

	var env ErrorBody
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Message != "" || env.Error.Status != "") {
		e.Message = env.Error.Message
		e.Details = env.Error.Details
		if c, err := retry.ParseCode(env.Error.Status); err == nil && env.Error.Status != "" {
			e.Code = c
		}
		return e
	}

	e.Message = http.StatusText(httpStatus)
	if len(body) > 0 && len(body) < 512 {
		e.Message = string(body)
	}
	return e
}

// ErrorFromTransport classifies an error raised before a response arrived.
func ErrorFromTransport(rpcName string, err error) *APIError {
	e := &APIError{RPC: rpcName, Code: codes.Unavailable, Message: err.Error()}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		e.Code = codes.Canceled
	}
	return e
}

// Envelope renders err as the Google JSON error body plus its HTTP status.
// Errors without a gRPC status are reported as INTERNAL.
func Envelope(err error) (int, ErrorBody) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, err.Error())
	}
	httpStatus := HTTPStatus(st.Code())
	return httpStatus, ErrorBody{Error: ErrorDetail{
		Code:    httpStatus,
		Message: st.Message(),
		Status:  retry.CodeName(st.Code()),
	}}
}
