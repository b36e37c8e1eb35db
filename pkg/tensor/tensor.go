// Package tensor holds the flat, shaped buffers passed between layers.
package tensor

import (
	"fmt"
	"slices"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
)

type DType int

const (
	Float32 DType = iota
	Int64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Tensor is a row-major buffer. Exactly one of F32 and I64 is used, chosen by DType.
type Tensor struct {
	DType DType
	Shape []uint64
	F32   []float32
	I64   []int64
}

// NumElements returns the product of shape; an empty shape is a scalar.
func NumElements(shape []uint64) uint64 {
	n := uint64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

func NewF32(data []float32, shape []uint64) (*Tensor, error) {
	t := &Tensor{DType: Float32, F32: data, Shape: slices.Clone(shape)}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func NewI64(data []int64, shape []uint64) (*Tensor, error) {
	t := &Tensor{DType: Int64, I64: data, Shape: slices.Clone(shape)}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Zeros allocates a float32 tensor of the given shape.
func Zeros(shape ...uint64) *Tensor {
	return &Tensor{DType: Float32, Shape: slices.Clone(shape), F32: make([]float32, NumElements(shape))}
}

func (t *Tensor) Len() int {
	if t.DType == Int64 {
		return len(t.I64)
	}
	return len(t.F32)
}

// Validate checks that the data length equals the product of the shape.
func (t *Tensor) Validate() error {
	if n := NumElements(t.Shape); n != uint64(t.Len()) {
		return fmt.Errorf("%w: %d elements do not fill shape %v (%d)", nnerrors.ErrShape, t.Len(), t.Shape, n)
	}
	return nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Dim returns dimension i counted from the end, so Dim(-1) is the innermost width.
func (t *Tensor) Dim(i int) uint64 {
	if i < 0 {
		i += len(t.Shape)
	}
	if i < 0 || i >= len(t.Shape) {
		return 1
	}
	return t.Shape[i]
}

// Rows returns the number of innermost vectors: every dimension but the last multiplied together.
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return int(NumElements(t.Shape[:len(t.Shape)-1]))
}

// AsF32 returns t as float32 data, converting int64 values when needed.
func (t *Tensor) AsF32() *Tensor {
	if t.DType == Float32 {
		return t
	}
	out := &Tensor{DType: Float32, Shape: slices.Clone(t.Shape), F32: make([]float32, len(t.I64))}
	for i, v := range t.I64 {
		out.F32[i] = float32(v)
	}
	return out
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		DType: t.DType,
		Shape: slices.Clone(t.Shape),
		F32:   slices.Clone(t.F32),
		I64:   slices.Clone(t.I64),
	}
}

func SameShape(a, b *Tensor) bool {
	return slices.Equal(a.Shape, b.Shape)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%s%v)", t.DType, t.Shape)
}
