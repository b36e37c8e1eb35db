// Package fallback implements the engine's kernels in pure Go.
//
// Every kernel is single threaded and accumulates in a fixed order, so equal
// inputs give bit-identical outputs. Products are rounded with an explicit
// float32 conversion before they are accumulated, which keeps the compiler
// from fusing them into FMA instructions on architectures that have them.
package fallback

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

type Tensor = tensor.Tensor

func withLastDim(shape []uint64, d uint64) []uint64 {
	out := slices.Clone(shape)
	if len(out) == 0 {
		return []uint64{d}
	}
	out[len(out)-1] = d
	return out
}

// EmbeddingLookup gathers rows of a [vocab, dim] table. The output shape is the id shape plus dim.
func EmbeddingLookup(table []float32, vocab, dim int, ids *Tensor) (*Tensor, error) {
	if ids.DType != tensor.Int64 {
		return nil, fmt.Errorf("%w: embedding lookup needs int64 token ids, got %s", nnerrors.ErrShape, ids.DType)
	}
	out := tensor.Zeros(append(slices.Clone(ids.Shape), uint64(dim))...)
	for i, id := range ids.I64 {
		if id < 0 || id >= int64(vocab) {
			return nil, fmt.Errorf("%w: token id %d outside vocabulary [0, %d)", nnerrors.ErrIndex, id, vocab)
		}
		copy(out.F32[i*dim:(i+1)*dim], table[int(id)*dim:(int(id)+1)*dim])
	}
	return out, nil
}

// MatMul multiplies every innermost row of x by a row-major [in, out] matrix.
func MatMul(x *Tensor, w []float32, in, out int) (*Tensor, error) {
	if x.Dim(-1) != uint64(in) || x.Rank() == 0 {
		return nil, fmt.Errorf("%w: matmul expects innermost width %d, got shape %v", nnerrors.ErrShape, in, x.Shape)
	}
	rows := x.Rows()
	y := tensor.Zeros(withLastDim(x.Shape, uint64(out))...)
	matmulRows(x.F32, w, y.F32, rows, in, out)
	return y, nil
}

func matmulRows(x, w, y []float32, rows, in, out int) {
	for r := 0; r < rows; r++ {
		xr := x[r*in : (r+1)*in]
		yr := y[r*out : (r+1)*out]
		for i, xv := range xr {
			wi := w[i*out : (i+1)*out]
			for o, wv := range wi {
				yr[o] += float32(xv * wv)
			}
		}
	}
}

// BiasAdd adds b to every innermost row of x.
func BiasAdd(x *Tensor, b []float32) (*Tensor, error) {
	n := len(b)
	if x.Dim(-1) != uint64(n) || x.Rank() == 0 {
		return nil, fmt.Errorf("%w: bias of width %d does not match shape %v", nnerrors.ErrShape, n, x.Shape)
	}
	y := x.Clone()
	for r := 0; r < x.Rows(); r++ {
		row := y.F32[r*n : (r+1)*n]
		for i := range row {
			row[i] += b[i]
		}
	}
	return y, nil
}

// LayerNorm normalizes each innermost row to zero mean and unit variance, then scales and shifts it.
func LayerNorm(x *Tensor, gamma, beta []float32, eps float32) (*Tensor, error) {
	n := len(gamma)
	if x.Dim(-1) != uint64(n) || x.Rank() == 0 {
		return nil, fmt.Errorf("%w: layer norm of width %d does not match shape %v", nnerrors.ErrShape, n, x.Shape)
	}
	y := x.Clone()
	for r := 0; r < x.Rows(); r++ {
		row := y.F32[r*n : (r+1)*n]
		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(n)
		variance := float32(0)
		for _, v := range row {
			d := v - mean
			variance += float32(d * d)
		}
		variance /= float32(n)
		inv := 1 / math32.Sqrt(variance+eps)
		for i, v := range row {
			row[i] = float32(float32((v-mean)*inv)*gamma[i]) + beta[i]
		}
	}
	return y, nil
}

const (
	geluCoefficient = 0.044715
	sqrt2OverPi     = 0.7978845608028654
)

// GELU applies the tanh approximation of the Gaussian error linear unit elementwise.
func GELU(x *Tensor) *Tensor {
	y := x.Clone()
	for i, v := range y.F32 {
		inner := float32(sqrt2OverPi * float32(v+float32(geluCoefficient*float32(v*float32(v*v)))))
		y.F32[i] = float32(0.5*v) * (1 + math32.Tanh(inner))
	}
	return y
}

// Add sums two tensors of identical shape.
func Add(a, b *Tensor) (*Tensor, error) {
	if !tensor.SameShape(a, b) {
		return nil, fmt.Errorf("%w: cannot add %v and %v", nnerrors.ErrShape, a.Shape, b.Shape)
	}
	y := a.Clone()
	for i, v := range b.F32 {
		y.F32[i] += v
	}
	return y, nil
}

// Softmax normalizes v in place, subtracting the maximum first.
func Softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	sum := float32(0)
	for i, x := range v {
		e := math32.Exp(x - m)
		v[i] = e
		sum += e
	}
	for i := range v {
		v[i] /= sum
	}
}
