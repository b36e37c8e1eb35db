package fallback

import (
	"fmt"

	"github.com/chewxy/math32"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

// AttentionWeights are the four [dim, dim] projections of a self attention block.
type AttentionWeights struct {
	Query  []float32
	Key    []float32
	Value  []float32
	Output []float32
}

// SelfAttention runs multi-head scaled dot-product attention over x, shaped
// [..., seq, dim]. Leading dimensions are independent batches.
func SelfAttention(x *Tensor, w AttentionWeights, dim, heads int, causal bool) (*Tensor, error) {
	if x.Rank() < 2 || x.Dim(-1) != uint64(dim) {
		return nil, fmt.Errorf("%w: attention expects [..., seq, %d], got %v", nnerrors.ErrShape, dim, x.Shape)
	}
	if heads <= 0 || dim%heads != 0 {
		return nil, fmt.Errorf("%w: %d heads do not divide width %d", nnerrors.ErrShape, heads, dim)
	}
	seq := int(x.Dim(-2))
	batches := x.Rows() / max(seq, 1)
	headDim := dim / heads
	scale := 1 / math32.Sqrt(float32(headDim))

	rows := x.Rows()
	q := make([]float32, rows*dim)
	k := make([]float32, rows*dim)
	v := make([]float32, rows*dim)
	matmulRows(x.F32, w.Query, q, rows, dim, dim)
	matmulRows(x.F32, w.Key, k, rows, dim, dim)
	matmulRows(x.F32, w.Value, v, rows, dim, dim)

	mixed := make([]float32, rows*dim)
	scores := make([]float32, seq)
	for b := 0; b < batches; b++ {
		base := b * seq * dim
		for h := 0; h < heads; h++ {
			off := h * headDim
			for i := 0; i < seq; i++ {
				qi := q[base+i*dim+off : base+i*dim+off+headDim]
				visible := seq
				if causal {
					visible = i + 1
				}
				s := scores[:visible]
				for j := range s {
					kj := k[base+j*dim+off : base+j*dim+off+headDim]
					dot := float32(0)
					for c, qv := range qi {
						dot += float32(qv * kj[c])
					}
					s[j] = float32(dot * scale)
				}
				Softmax(s)
				out := mixed[base+i*dim+off : base+i*dim+off+headDim]
				for j, p := range s {
					vj := v[base+j*dim+off : base+j*dim+off+headDim]
					for c, vv := range vj {
						out[c] += float32(p * vv)
					}
				}
			}
		}
	}

	y := tensor.Zeros(x.Shape...)
	matmulRows(mixed, w.Output, y.F32, rows, dim, dim)
	return y, nil
}
