// Package engine compiles a Plan into an immutable Model and runs forward
// passes over it one layer window at a time.
package engine

import (
	"k8s.io/examples/AI/modelpipeline/pkg/engine/fallback"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

// Op is the compiled operation of a single layer. The set of implementations
// is closed: Evaluate dispatches on the concrete type.
type Op interface {
	// Name is the operation name used in logs and errors.
	Name() string

	// Arity is the number of inputs the operation consumes.
	Arity() int

	isOp()
}

type Identity struct{}

// Embedding maps int64 token ids to rows of a [Vocab, Dim] table.
type Embedding struct {
	Table []float32
	Vocab int
	Dim   int
}

// MatMul multiplies the innermost rows of its input by a row-major [In, Out] weight.
type MatMul struct {
	Weight []float32
	In     int
	Out    int
}

type BiasAdd struct {
	Bias []float32
}

type LayerNorm struct {
	Gamma   []float32
	Beta    []float32
	Epsilon float32
}

// GELU is the designated nonlinearity.
type GELU struct{}

// Attention is multi-head self attention over [..., seq, Dim].
type Attention struct {
	Weights fallback.AttentionWeights
	Dim     int
	Heads   int
	Causal  bool
}

// Add sums its two inputs.
type Add struct{}

func (Identity) Name() string  { return "Identity" }
func (Embedding) Name() string { return "Embedding" }
func (MatMul) Name() string    { return "MatMul" }
func (BiasAdd) Name() string   { return "BiasAdd" }
func (LayerNorm) Name() string { return "LayerNorm" }
func (GELU) Name() string      { return "GELU" }
func (Attention) Name() string { return "Attention" }
func (Add) Name() string       { return "Add" }

func (Identity) Arity() int  { return 1 }
func (Embedding) Arity() int { return 1 }
func (MatMul) Arity() int    { return 1 }
func (BiasAdd) Arity() int   { return 1 }
func (LayerNorm) Arity() int { return 1 }
func (GELU) Arity() int      { return 1 }
func (Attention) Arity() int { return 1 }
func (Add) Arity() int       { return 2 }

func (Identity) isOp()  {}
func (Embedding) isOp() {}
func (MatMul) isOp()    {}
func (BiasAdd) isOp()   {}
func (LayerNorm) isOp() {}
func (GELU) isOp()      {}
func (Attention) isOp() {}
func (Add) isOp()       {}

// Value describes a tensor flowing between layers without carrying its data.
type Value struct {
	DType tensor.DType
	Shape []uint64
}

func describe(t *tensor.Tensor) Value {
	return Value{DType: t.DType, Shape: t.Shape}
}
