// Package nnerrors defines the failure kinds shared by the model pipeline,
// the engine and the transports that expose them.
package nnerrors

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
)

var (
	// ErrState is returned when an operation is not valid for the current pipeline state.
	ErrState = errors.New("invalid pipeline state")
	// ErrChunkOrder is returned when an offset-tagged chunk leaves a gap or overlaps received bytes.
	ErrChunkOrder = errors.New("chunk out of order")
	// ErrParse is returned for a malformed model container.
	ErrParse = errors.New("parse error")
	// ErrCompile is returned when a plan cannot be compiled into a running model.
	ErrCompile = errors.New("compile error")
	// ErrIndex is returned for an out of range layer index (or token id).
	ErrIndex = errors.New("index out of range")
	// ErrShape is returned when input data is inconsistent with its declared shape.
	ErrShape = errors.New("shape mismatch")
	// ErrUnsupportedOp is returned for a dispatch tag with no kernel.
	ErrUnsupportedOp = errors.New("unsupported operation")
	// ErrResourceExhausted is returned when a call would exceed the per-call compute budget.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrInvalidInput is returned for request fields that cannot be used, such as untokenizable text.
	ErrInvalidInput = errors.New("invalid input")
)

var kinds = []struct {
	err        error
	code       codes.Code
	httpStatus int
}{
	{ErrState, codes.FailedPrecondition, http.StatusConflict},
	{ErrChunkOrder, codes.Aborted, http.StatusConflict},
	{ErrParse, codes.InvalidArgument, http.StatusUnprocessableEntity},
	{ErrCompile, codes.InvalidArgument, http.StatusUnprocessableEntity},
	{ErrIndex, codes.OutOfRange, http.StatusBadRequest},
	{ErrShape, codes.InvalidArgument, http.StatusBadRequest},
	{ErrUnsupportedOp, codes.Unimplemented, http.StatusNotImplemented},
	{ErrResourceExhausted, codes.ResourceExhausted, http.StatusTooManyRequests},
	{ErrInvalidInput, codes.InvalidArgument, http.StatusBadRequest},
}

// Kind returns the sentinel err wraps, or nil.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// GRPCCode maps err onto the gRPC status code callers see.
func GRPCCode(err error) codes.Code {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return codes.Internal
}

// HTTPStatus maps err onto an HTTP status code.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.httpStatus
		}
	}
	return http.StatusInternalServerError
}

// FromStatus returns the sentinel matching a gRPC status code and message,
// or nil when nothing matches. InvalidArgument covers several kinds, so the
// message is searched for the kind's text.
func FromStatus(code codes.Code, msg string) error {
	switch code {
	case codes.FailedPrecondition:
		return ErrState
	case codes.Aborted:
		return ErrChunkOrder
	case codes.OutOfRange:
		return ErrIndex
	case codes.Unimplemented:
		return ErrUnsupportedOp
	case codes.ResourceExhausted:
		return ErrResourceExhausted
	case codes.InvalidArgument:
		for _, err := range []error{ErrParse, ErrCompile, ErrShape, ErrInvalidInput} {
			if strings.Contains(msg, err.Error()) {
				return err
			}
		}
	}
	return nil
}
