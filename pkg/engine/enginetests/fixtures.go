// Package enginetests builds small models shared by the engine, pipeline and
// server tests.
package enginetests

import (
	"math"
	"testing"

	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
)

const (
	EncoderVocab  = 16
	EncoderWidth  = 8
	EncoderHidden = 16
)

// EmbeddingRow is row r of the TwoLayer embedding table.
func EmbeddingRow(r int) []float32 {
	row := make([]float32, 4)
	for i := range row {
		row[i] = float32(r*4 + i)
	}
	return row
}

// TwoLayer is a 10x4 embedding table followed by an identity layer.
func TwoLayer() []modelformat.Layer {
	table := make([]float32, 0, 40)
	for r := 0; r < 10; r++ {
		table = append(table, EmbeddingRow(r)...)
	}
	return []modelformat.Layer{
		{Op: modelformat.OpEmbedding, Inputs: []int32{modelformat.ExternalInput}, Weights: []modelformat.Weight{modelformat.F32Weight(table, 10, 4)}},
		{Op: modelformat.OpIdentity, Inputs: []int32{0}},
	}
}

// PassThroughFirst is TwoLayer behind an identity layer reading the token ids.
func PassThroughFirst() []modelformat.Layer {
	layers := TwoLayer()
	layers[0].Inputs = []int32{0}
	layers[1].Inputs = []int32{1}
	return append([]modelformat.Layer{{Op: modelformat.OpIdentity, Inputs: []int32{modelformat.ExternalInput}}}, layers...)
}

// EncoderBoundaries are the resumable boundaries of Encoder.
var EncoderBoundaries = []int{0, 1, 2, 4, 9}

// Encoder is a single pre-norm transformer block with residual connections:
//
//	0 embedding, 1 norm, 2 attention, 3 residual(1, 2),
//	4 up projection, 5 bias, 6 gelu, 7 down projection, 8 residual(3, 7), 9 norm
func Encoder() []modelformat.Layer {
	d, h := uint64(EncoderWidth), uint64(EncoderHidden)
	ones := fill(EncoderWidth, func(int) float32 { return 1 })
	zeros := make([]float32, EncoderWidth)
	ext := modelformat.ExternalInput

	return []modelformat.Layer{
		{Op: modelformat.OpEmbedding, Inputs: []int32{ext}, Weights: []modelformat.Weight{
			modelformat.F32Weight(wave(EncoderVocab*EncoderWidth, 0.7, 1), EncoderVocab, d),
		}},
		{Op: modelformat.OpLayerNorm, Inputs: []int32{0}, Weights: []modelformat.Weight{
			modelformat.F32Weight(ones, d), modelformat.F32Weight(zeros, d),
		}},
		{Op: modelformat.OpAttention, Inputs: []int32{1}, Attrs: []float32{2, 1}, Weights: []modelformat.Weight{
			modelformat.F32Weight(wave(EncoderWidth*EncoderWidth, 0.31, 0.3), d, d),
			modelformat.F32Weight(wave(EncoderWidth*EncoderWidth, 0.53, 0.3), d, d),
			modelformat.F16Weight(wave(EncoderWidth*EncoderWidth, 0.71, 0.3), d, d),
			modelformat.BF16Weight(wave(EncoderWidth*EncoderWidth, 0.97, 0.3), d, d),
		}},
		{Op: modelformat.OpAdd, Inputs: []int32{1, 2}},
		{Op: modelformat.OpMatMul, Inputs: []int32{3}, Weights: []modelformat.Weight{
			modelformat.F16Weight(wave(EncoderWidth*EncoderHidden, 0.13, 0.25), d, h),
		}},
		{Op: modelformat.OpBiasAdd, Inputs: []int32{4}, Weights: []modelformat.Weight{
			modelformat.F32Weight(wave(EncoderHidden, 0.41, 0.1), h),
		}},
		{Op: modelformat.OpGELU, Inputs: []int32{5}},
		{Op: modelformat.OpMatMul, Inputs: []int32{6}, Weights: []modelformat.Weight{
			modelformat.BF16Weight(wave(EncoderHidden*EncoderWidth, 0.29, 0.25), h, d),
		}},
		{Op: modelformat.OpAdd, Inputs: []int32{3, 7}},
		{Op: modelformat.OpLayerNorm, Inputs: []int32{8}, Attrs: []float32{1e-6}, Weights: []modelformat.Weight{
			modelformat.F32Weight(ones, d), modelformat.F32Weight(zeros, d),
		}},
	}
}

// Encode writes layers into a container.
func Encode(t testing.TB, layers []modelformat.Layer) []byte {
	t.Helper()
	b, err := modelformat.Encode(layers)
	if err != nil {
		t.Fatalf("encoding model: %v", err)
	}
	return b
}

// Build encodes, parses and compiles layers.
func Build(t testing.TB, layers []modelformat.Layer) *engine.Model {
	t.Helper()
	p, err := plan.Parse(Encode(t, layers))
	if err != nil {
		t.Fatalf("parsing model: %v", err)
	}
	m, err := engine.Compile(p)
	if err != nil {
		t.Fatalf("compiling model: %v", err)
	}
	return m
}

func wave(n int, freq, scale float64) []float32 {
	return fill(n, func(i int) float32 { return float32(scale * math.Sin(float64(i+1)*freq)) })
}

func fill(n int, f func(int) float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

// FloatingPointEqual compares a and b within a small absolute tolerance.
func FloatingPointEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, value := range a {
		if math.Abs(float64(value-b[i])) > 0.00001 {
			return false
		}
	}
	return true
}
