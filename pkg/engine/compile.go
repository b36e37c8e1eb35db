package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/google/uuid"
	"github.com/x448/float16"

	"k8s.io/examples/AI/modelpipeline/pkg/engine/fallback"
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
)

const defaultLayerNormEpsilon = 1e-5

// Layer is one compiled step of a Model.
type Layer struct {
	Index  int
	Op     Op
	Inputs []plan.Ref
}

// Model is a compiled network. It owns all of its weights and is never
// modified after Compile returns, so it can be shared between callers.
type Model struct {
	id     string
	layers []Layer

	// carried[s] is the one value crossing resumable boundary s, or notBoundary.
	carried []plan.Ref

	firstEmbedding int
}

func (m *Model) ID() string      { return m.id }
func (m *Model) NumLayers() int  { return len(m.layers) }
func (m *Model) Layers() []Layer { return m.layers }

// IsBoundary reports whether a forward pass may start, or stop, before layer s.
func (m *Model) IsBoundary(s int) bool {
	return s >= 0 && s < len(m.carried) && m.carried[s] != notBoundary
}

// Boundaries lists every layer index a forward pass may start from.
func (m *Model) Boundaries() []int {
	var out []int
	for s := range m.layers {
		if m.IsBoundary(s) {
			out = append(out, s)
		}
	}
	return out
}

// FirstEmbeddingLayer returns the index of the first Embedding layer.
func (m *Model) FirstEmbeddingLayer() (int, bool) {
	return m.firstEmbedding, m.firstEmbedding >= 0
}

// Compile binds every layer of p to an operation with decoded weights and
// checks that the feature widths agree along every edge. p is not modified.
func Compile(p *plan.Plan) (*Model, error) {
	if len(p.Layers) == 0 {
		return nil, fmt.Errorf("%w: model has no layers", nnerrors.ErrCompile)
	}

	m := &Model{
		id:             uuid.NewString(),
		layers:         make([]Layer, len(p.Layers)),
		firstEmbedding: -1,
	}

	// widths[i] is the innermost width produced by layer i, or -1 when it
	// depends on the caller's input.
	widths := make([]int, len(p.Layers))
	// raw[i] is true when layer i passes the external input through unchanged.
	raw := make([]bool, len(p.Layers))
	inputWidth := func(r plan.Ref) int {
		if r == plan.ExternalInput {
			return -1
		}
		return widths[r]
	}
	isRaw := func(r plan.Ref) bool {
		return r == plan.ExternalInput || raw[r]
	}

	for i, spec := range p.Layers {
		op, err := bindOp(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d (%s): %v", nnerrors.ErrCompile, i, spec.Op, err)
		}
		if len(spec.Inputs) != op.Arity() {
			return nil, fmt.Errorf("%w: layer %d (%s) takes %d inputs, has %d", nnerrors.ErrCompile, i, op.Name(), op.Arity(), len(spec.Inputs))
		}
		for _, in := range spec.Inputs {
			if in != plan.ExternalInput && (in < 0 || int(in) >= i) {
				return nil, fmt.Errorf("%w: layer %d reads %d, which is not an earlier layer", nnerrors.ErrCompile, i, in)
			}
		}

		in := inputWidth(spec.Inputs[0])
		expect := func(want int) error {
			if in >= 0 && in != want {
				return fmt.Errorf("%w: layer %d (%s) expects width %d, layer %d produces %d", nnerrors.ErrCompile, i, op.Name(), want, spec.Inputs[0], in)
			}
			return nil
		}

		switch op := op.(type) {
		case Identity:
			widths[i] = in
			raw[i] = isRaw(spec.Inputs[0])
		case Embedding:
			if !isRaw(spec.Inputs[0]) {
				return nil, fmt.Errorf("%w: embedding layer %d must read token ids, not the output of layer %d", nnerrors.ErrCompile, i, spec.Inputs[0])
			}
			widths[i] = op.Dim
			if m.firstEmbedding < 0 {
				m.firstEmbedding = i
			}
		case MatMul:
			if err := expect(op.In); err != nil {
				return nil, err
			}
			widths[i] = op.Out
		case BiasAdd:
			if err := expect(len(op.Bias)); err != nil {
				return nil, err
			}
			widths[i] = len(op.Bias)
		case LayerNorm:
			if err := expect(len(op.Gamma)); err != nil {
				return nil, err
			}
			widths[i] = len(op.Gamma)
		case GELU:
			widths[i] = in
		case Attention:
			if err := expect(op.Dim); err != nil {
				return nil, err
			}
			widths[i] = op.Dim
		case Add:
			other := inputWidth(spec.Inputs[1])
			if in >= 0 && other >= 0 && in != other {
				return nil, fmt.Errorf("%w: layer %d adds widths %d and %d", nnerrors.ErrCompile, i, in, other)
			}
			widths[i] = max(in, other)
		}

		m.layers[i] = Layer{Index: i, Op: op, Inputs: append([]plan.Ref(nil), spec.Inputs...)}
	}

	m.carried = computeBoundaries(m.layers)

	// Results travel as float32, so a boundary cannot carry token ids to a later Embedding.
	lastEmbedding := -1
	for i, l := range m.layers {
		if _, ok := l.Op.(Embedding); ok {
			lastEmbedding = i
		}
	}
	for s := 1; s <= lastEmbedding; s++ {
		if r := m.carried[s]; r != notBoundary && isRaw(r) {
			m.carried[s] = notBoundary
		}
	}
	return m, nil
}

func bindOp(spec plan.LayerSpec) (Op, error) {
	weights := make([][]float32, len(spec.Weights))
	for i, w := range spec.Weights {
		values, err := decodeWeight(w)
		if err != nil {
			return nil, fmt.Errorf("weight %d: %w", i, err)
		}
		weights[i] = values
	}

	switch spec.Op {
	case modelformat.OpIdentity:
		if err := checkCounts(spec, 0, 0, 0); err != nil {
			return nil, err
		}
		return Identity{}, nil

	case modelformat.OpEmbedding:
		if err := checkCounts(spec, 1, 0, 0); err != nil {
			return nil, err
		}
		dims, err := matrixDims(spec.Weights[0])
		if err != nil {
			return nil, err
		}
		return Embedding{Table: weights[0], Vocab: dims[0], Dim: dims[1]}, nil

	case modelformat.OpMatMul:
		if err := checkCounts(spec, 1, 0, 0); err != nil {
			return nil, err
		}
		dims, err := matrixDims(spec.Weights[0])
		if err != nil {
			return nil, err
		}
		return MatMul{Weight: weights[0], In: dims[0], Out: dims[1]}, nil

	case modelformat.OpBiasAdd:
		if err := checkCounts(spec, 1, 0, 0); err != nil {
			return nil, err
		}
		if len(spec.Weights[0].Shape) != 1 {
			return nil, fmt.Errorf("bias must be a vector, got shape %v", spec.Weights[0].Shape)
		}
		return BiasAdd{Bias: weights[0]}, nil

	case modelformat.OpLayerNorm:
		if err := checkCounts(spec, 2, 0, 1); err != nil {
			return nil, err
		}
		g, b := spec.Weights[0].Shape, spec.Weights[1].Shape
		if len(g) != 1 || len(b) != 1 || g[0] != b[0] {
			return nil, fmt.Errorf("gamma %v and beta %v must be vectors of equal width", g, b)
		}
		eps := float32(defaultLayerNormEpsilon)
		if len(spec.Attrs) == 1 {
			eps = spec.Attrs[0]
		}
		if !(eps > 0) {
			return nil, fmt.Errorf("epsilon must be positive, got %v", eps)
		}
		return LayerNorm{Gamma: weights[0], Beta: weights[1], Epsilon: eps}, nil

	case modelformat.OpGELU:
		if err := checkCounts(spec, 0, 0, 0); err != nil {
			return nil, err
		}
		return GELU{}, nil

	case modelformat.OpAttention:
		if err := checkCounts(spec, 4, 1, 2); err != nil {
			return nil, err
		}
		var dim int
		for i, w := range spec.Weights {
			dims, err := matrixDims(w)
			if err != nil {
				return nil, err
			}
			if dims[0] != dims[1] || (i > 0 && dims[0] != dim) {
				return nil, fmt.Errorf("projections must all be square with the same width, weight %d is %v", i, w.Shape)
			}
			dim = dims[0]
		}
		heads := spec.Attrs[0]
		if heads < 1 || heads != float32(int(heads)) || dim%int(heads) != 0 {
			return nil, fmt.Errorf("head count %v must be a whole number dividing width %d", heads, dim)
		}
		causal := len(spec.Attrs) == 2 && spec.Attrs[1] != 0
		return Attention{
			Weights: fallback.AttentionWeights{Query: weights[0], Key: weights[1], Value: weights[2], Output: weights[3]},
			Dim:     dim,
			Heads:   int(heads),
			Causal:  causal,
		}, nil

	case modelformat.OpAdd:
		if err := checkCounts(spec, 0, 0, 0); err != nil {
			return nil, err
		}
		return Add{}, nil

	default:
		return nil, fmt.Errorf("%w: op code %d", nnerrors.ErrUnsupportedOp, uint32(spec.Op))
	}
}

// checkCounts checks the weight count and that the attribute count lies in [minAttrs, maxAttrs].
func checkCounts(spec plan.LayerSpec, weights, minAttrs, maxAttrs int) error {
	if len(spec.Weights) != weights {
		return fmt.Errorf("expected %d weights, got %d", weights, len(spec.Weights))
	}
	if n := len(spec.Attrs); n < minAttrs || n > maxAttrs {
		if minAttrs == maxAttrs {
			return fmt.Errorf("expected %d attributes, got %d", minAttrs, n)
		}
		return fmt.Errorf("expected %d to %d attributes, got %d", minAttrs, maxAttrs, n)
	}
	return nil
}

func matrixDims(w plan.WeightSpec) ([2]int, error) {
	if len(w.Shape) != 2 || w.Shape[0] == 0 || w.Shape[1] == 0 {
		return [2]int{}, fmt.Errorf("expected a non-empty matrix, got shape %v", w.Shape)
	}
	return [2]int{int(w.Shape[0]), int(w.Shape[1])}, nil
}

// decodeWeight copies a weight blob out of the model buffer into float32 values.
func decodeWeight(w plan.WeightSpec) ([]float32, error) {
	switch w.DType {
	case modelformat.TypeF32:
		out := make([]float32, len(w.Data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(w.Data[4*i:]))
		}
		return out, nil
	case modelformat.TypeF16:
		out := make([]float32, len(w.Data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(w.Data[2*i:])).Float32()
		}
		return out, nil
	case modelformat.TypeBF16:
		return bfloat16.DecodeFloat32(w.Data), nil
	default:
		return nil, fmt.Errorf("%s weights cannot feed a float kernel", w.DType)
	}
}
