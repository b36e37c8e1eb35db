package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

func chain(inputs ...[]plan.Ref) []Layer {
	layers := make([]Layer, len(inputs))
	for i, in := range inputs {
		layers[i] = Layer{Index: i, Op: Identity{}, Inputs: in}
	}
	return layers
}

func TestComputeBoundaries(t *testing.T) {
	ext := plan.ExternalInput
	nb := notBoundary

	cases := []struct {
		name   string
		layers []Layer
		want   []plan.Ref
	}{
		{"sequential", chain([]plan.Ref{ext}, []plan.Ref{0}, []plan.Ref{1}), []plan.Ref{ext, 0, 1}},
		{"residual", chain([]plan.Ref{ext}, []plan.Ref{0}, []plan.Ref{0, 1}, []plan.Ref{2}), []plan.Ref{ext, 0, nb, 2}},
		{"external input read twice", chain([]plan.Ref{ext}, []plan.Ref{ext, 0}, []plan.Ref{1}), []plan.Ref{ext, nb, 1}},
		{"skip over a dead layer", chain([]plan.Ref{ext}, []plan.Ref{0}, []plan.Ref{0}), []plan.Ref{ext, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, computeBoundaries(tc.layers)); diff != "" {
				t.Errorf("boundaries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type unknownOp struct{}

func (unknownOp) Name() string { return "Unknown" }
func (unknownOp) Arity() int   { return 1 }
func (unknownOp) isOp()        {}

func TestUnsupportedOp(t *testing.T) {
	m := &Model{
		id:             "test",
		layers:         []Layer{{Index: 0, Op: unknownOp{}, Inputs: []plan.Ref{plan.ExternalInput}}},
		carried:        []plan.Ref{plan.ExternalInput},
		firstEmbedding: -1,
	}
	x := tensor.Zeros(2)
	if _, err := m.Compute(context.Background(), 0, x, Window{}); !errors.Is(err, nnerrors.ErrUnsupportedOp) {
		t.Errorf("expected unsupported op from compute, got %v", err)
	}
	if _, err := apply(unknownOp{}, []*tensor.Tensor{x}); !errors.Is(err, nnerrors.ErrUnsupportedOp) {
		t.Errorf("expected unsupported op from apply, got %v", err)
	}
}
