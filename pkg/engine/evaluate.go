package engine

import (
	"context"
	"fmt"
	"slices"

	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/engine/fallback"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

// Window bounds the work done by a single call. Zero fields are unbounded.
type Window struct {
	// MaxCost caps the summed cost estimate of the layers run. A call whose
	// first segment costs more fails with ErrResourceExhausted.
	MaxCost int64

	// MaxLayers caps the number of layers run. The first segment, up to the
	// next resumable boundary, always runs whole so every call makes progress.
	MaxLayers int
}

// Result is the tensor crossing the boundary where a call stopped.
type Result struct {
	Data  []float32
	Shape []uint64

	// NextLayer is where the following call resumes; it equals the layer count when the pass is complete.
	NextLayer int
	ModelID   string
}

// Done reports whether the forward pass reached the end of the network.
func (r *Result) Done(m *Model) bool {
	return r.NextLayer >= m.NumLayers()
}

func (m *Model) ComputeI64(ctx context.Context, start int, data []int64, shape []uint64, window Window) (*Result, error) {
	x, err := tensor.NewI64(data, shape)
	if err != nil {
		return nil, err
	}
	return m.Compute(ctx, start, x, window)
}

func (m *Model) ComputeF32(ctx context.Context, start int, data []float32, shape []uint64, window Window) (*Result, error) {
	x, err := tensor.NewF32(data, shape)
	if err != nil {
		return nil, err
	}
	return m.Compute(ctx, start, x, window)
}

// Compute runs layers from start for as long as window allows, stopping only
// at a resumable boundary. x is the single value crossing boundary start.
//
// The window is planned from shapes alone before any kernel runs, so a call
// that fails leaves nothing half done.
func (m *Model) Compute(ctx context.Context, start int, x *tensor.Tensor, window Window) (*Result, error) {
	log := klog.FromContext(ctx)

	if start < 0 || start >= len(m.layers) {
		return nil, fmt.Errorf("%w: layer %d outside [0, %d)", nnerrors.ErrIndex, start, len(m.layers))
	}
	if !m.IsBoundary(start) {
		return nil, fmt.Errorf("%w: layer %d is not a resumable boundary", nnerrors.ErrIndex, start)
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}

	end, cost, err := m.planWindow(start, describe(x), window)
	if err != nil {
		return nil, err
	}

	values := make([]*tensor.Tensor, end)
	resolve := func(r plan.Ref) *tensor.Tensor {
		if int(r) < start {
			return x
		}
		return values[r]
	}
	for i := start; i < end; i++ {
		layer := m.layers[i]
		inputs := make([]*tensor.Tensor, len(layer.Inputs))
		for j, r := range layer.Inputs {
			inputs[j] = resolve(r)
		}
		out, err := apply(layer.Op, inputs)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Op.Name(), err)
		}
		values[i] = out
	}

	var out *tensor.Tensor
	if end == len(m.layers) {
		out = values[end-1]
	} else {
		out = resolve(m.carried[end])
	}
	out = out.AsF32()

	log.V(2).Info("computed window", "model", m.id, "start", start, "next", end, "cost", cost)
	return &Result{
		Data:      out.F32,
		Shape:     slices.Clone(out.Shape),
		NextLayer: end,
		ModelID:   m.id,
	}, nil
}

// planWindow returns the boundary the call stops at and the cost of getting there.
func (m *Model) planWindow(start int, x Value, window Window) (int, int64, error) {
	values := make([]Value, len(m.layers))
	resolve := func(r plan.Ref) Value {
		if int(r) < start {
			return x
		}
		return values[r]
	}

	end, endCost := -1, int64(0)
	var total int64
	for i := start; i < len(m.layers); i++ {
		layer := m.layers[i]
		inputs := make([]Value, len(layer.Inputs))
		for j, r := range layer.Inputs {
			inputs[j] = resolve(r)
		}
		v, cost, err := infer(layer.Op, inputs)
		if err != nil {
			return 0, 0, fmt.Errorf("layer %d (%s): %w", i, layer.Op.Name(), err)
		}
		if window.MaxCost > 0 && total+max(cost, 1) > window.MaxCost {
			break
		}
		if window.MaxLayers > 0 && i-start+1 > window.MaxLayers && end >= 0 {
			break
		}
		total += max(cost, 1)
		values[i] = v
		if i+1 == len(m.layers) || m.IsBoundary(i+1) {
			end, endCost = i+1, total
		}
	}

	if end < 0 {
		return 0, 0, fmt.Errorf("%w: layers from %d to the next boundary cost more than %d", nnerrors.ErrResourceExhausted, start, window.MaxCost)
	}
	return end, endCost, nil
}

// apply runs a single layer on the host.
func apply(op Op, in []*tensor.Tensor) (*tensor.Tensor, error) {
	if _, ok := op.(Embedding); !ok {
		if _, ok := op.(Identity); !ok {
			for i := range in {
				in[i] = in[i].AsF32()
			}
		}
	}

	switch op := op.(type) {
	case Identity:
		return in[0], nil
	case Embedding:
		return fallback.EmbeddingLookup(op.Table, op.Vocab, op.Dim, in[0])
	case MatMul:
		return fallback.MatMul(in[0], op.Weight, op.In, op.Out)
	case BiasAdd:
		return fallback.BiasAdd(in[0], op.Bias)
	case LayerNorm:
		return fallback.LayerNorm(in[0], op.Gamma, op.Beta, op.Epsilon)
	case GELU:
		return fallback.GELU(in[0]), nil
	case Attention:
		return fallback.SelfAttention(in[0], op.Weights, op.Dim, op.Heads, op.Causal)
	case Add:
		return fallback.Add(in[0], in[1])
	default:
		return nil, fmt.Errorf("%w: %T", nnerrors.ErrUnsupportedOp, op)
	}
}
