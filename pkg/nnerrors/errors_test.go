package nnerrors

import (
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestKindMapping(t *testing.T) {
	grid := []struct {
		err  error
		kind error
		code codes.Code
		http int
	}{
		{fmt.Errorf("parsing model: %w: bad magic", ErrParse), ErrParse, codes.InvalidArgument, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: pipeline is Ready", ErrState), ErrState, codes.FailedPrecondition, http.StatusConflict},
		{fmt.Errorf("%w: layer 9", ErrIndex), ErrIndex, codes.OutOfRange, http.StatusBadRequest},
		{fmt.Errorf("%w", ErrResourceExhausted), ErrResourceExhausted, codes.ResourceExhausted, http.StatusTooManyRequests},
		{fmt.Errorf("boom"), nil, codes.Internal, http.StatusInternalServerError},
	}
	for _, g := range grid {
		if got := Kind(g.err); got != g.kind {
			t.Errorf("Kind(%v) = %v, want %v", g.err, got, g.kind)
		}
		if got := GRPCCode(g.err); got != g.code {
			t.Errorf("GRPCCode(%v) = %v, want %v", g.err, got, g.code)
		}
		if got := HTTPStatus(g.err); got != g.http {
			t.Errorf("HTTPStatus(%v) = %v, want %v", g.err, got, g.http)
		}
	}
}

func TestFromStatus(t *testing.T) {
	if got := FromStatus(codes.InvalidArgument, "computing: shape mismatch: 3 elements"); got != ErrShape {
		t.Errorf("got %v, want ErrShape", got)
	}
	if got := FromStatus(codes.InvalidArgument, "parsing model: parse error: truncated"); got != ErrParse {
		t.Errorf("got %v, want ErrParse", got)
	}
	if got := FromStatus(codes.ResourceExhausted, ""); got != ErrResourceExhausted {
		t.Errorf("got %v, want ErrResourceExhausted", got)
	}
	if got := FromStatus(codes.Unavailable, "down"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
