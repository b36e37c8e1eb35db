package engine

import (
	"fmt"
	"slices"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

// infer computes the value a layer produces from the values it reads, and
// estimates the work of producing it in multiply-accumulate units.
func infer(op Op, in []Value) (Value, int64, error) {
	x := in[0]
	n := int64(tensor.NumElements(x.Shape))
	width := func(want int) error {
		if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1] != uint64(want) {
			return fmt.Errorf("%w: %s expects innermost width %d, got shape %v", nnerrors.ErrShape, op.Name(), want, x.Shape)
		}
		return nil
	}
	floats := Value{DType: tensor.Float32, Shape: x.Shape}

	switch op := op.(type) {
	case Identity:
		return x, n, nil

	case Embedding:
		if x.DType != tensor.Int64 {
			return Value{}, 0, fmt.Errorf("%w: embedding expects int64 token ids, got %s", nnerrors.ErrShape, x.DType)
		}
		shape := append(slices.Clone(x.Shape), uint64(op.Dim))
		return Value{DType: tensor.Float32, Shape: shape}, n * int64(op.Dim), nil

	case MatMul:
		if err := width(op.In); err != nil {
			return Value{}, 0, err
		}
		rows := n / int64(op.In)
		return Value{DType: tensor.Float32, Shape: withLastDim(x.Shape, op.Out)}, rows * int64(op.In) * int64(op.Out), nil

	case BiasAdd:
		if err := width(len(op.Bias)); err != nil {
			return Value{}, 0, err
		}
		return floats, n, nil

	case LayerNorm:
		if err := width(len(op.Gamma)); err != nil {
			return Value{}, 0, err
		}
		return floats, 4 * n, nil

	case GELU:
		return floats, 8 * n, nil

	case Attention:
		if len(x.Shape) < 2 {
			return Value{}, 0, fmt.Errorf("%w: attention expects [..., seq, %d], got %v", nnerrors.ErrShape, op.Dim, x.Shape)
		}
		if err := width(op.Dim); err != nil {
			return Value{}, 0, err
		}
		rows := n / int64(op.Dim)
		seq := int64(x.Shape[len(x.Shape)-2])
		return floats, 4*rows*int64(op.Dim)*int64(op.Dim) + 2*rows*seq*int64(op.Dim), nil

	case Add:
		if !slices.Equal(x.Shape, in[1].Shape) {
			return Value{}, 0, fmt.Errorf("%w: cannot add %v and %v", nnerrors.ErrShape, x.Shape, in[1].Shape)
		}
		return floats, n, nil

	default:
		return Value{}, 0, fmt.Errorf("%w: %s", nnerrors.ErrUnsupportedOp, op.Name())
	}
}

func withLastDim(shape []uint64, d int) []uint64 {
	out := slices.Clone(shape)
	out[len(out)-1] = uint64(d)
	return out
}
