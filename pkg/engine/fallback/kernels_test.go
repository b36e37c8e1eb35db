package fallback

import (
	"errors"
	"math"
	"slices"
	"testing"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

func mustF32(t *testing.T, data []float32, shape ...uint64) *Tensor {
	t.Helper()
	x, err := tensor.NewF32(data, shape)
	if err != nil {
		t.Fatalf("building tensor: %v", err)
	}
	return x
}

func closeTo(a, b []float32, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tolerance {
			return false
		}
	}
	return true
}

func identity(n int) []float32 {
	m := make([]float32, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1
	}
	return m
}

func TestEmbeddingLookup(t *testing.T) {
	table := []float32{0, 1, 10, 11, 20, 21}
	ids, err := tensor.NewI64([]int64{2, 0}, []uint64{1, 2})
	if err != nil {
		t.Fatalf("building ids: %v", err)
	}
	got, err := EmbeddingLookup(table, 3, 2, ids)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !slices.Equal(got.Shape, []uint64{1, 2, 2}) {
		t.Errorf("unexpected shape %v", got.Shape)
	}
	if want := []float32{20, 21, 0, 1}; !slices.Equal(got.F32, want) {
		t.Errorf("expected %v, got %v", want, got.F32)
	}

	bad, _ := tensor.NewI64([]int64{3}, []uint64{1})
	if _, err := EmbeddingLookup(table, 3, 2, bad); !errors.Is(err, nnerrors.ErrIndex) {
		t.Errorf("expected index error for id past the vocabulary, got %v", err)
	}
	floats := mustF32(t, []float32{1}, 1)
	if _, err := EmbeddingLookup(table, 3, 2, floats); !errors.Is(err, nnerrors.ErrShape) {
		t.Errorf("expected shape error for float ids, got %v", err)
	}
}

func TestMatMul(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 0, 1}, 2, 2)
	w := []float32{1, 2, 3, 4, 5, 6}
	got, err := MatMul(x, w, 2, 3)
	if err != nil {
		t.Fatalf("matmul failed: %v", err)
	}
	if !slices.Equal(got.Shape, []uint64{2, 3}) {
		t.Errorf("unexpected shape %v", got.Shape)
	}
	if want := []float32{9, 12, 15, 4, 5, 6}; !slices.Equal(got.F32, want) {
		t.Errorf("expected %v, got %v", want, got.F32)
	}
	if _, err := MatMul(mustF32(t, []float32{1, 2, 3}, 3), w, 2, 3); !errors.Is(err, nnerrors.ErrShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestBiasAddAndAdd(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4}, 2, 2)
	got, err := BiasAdd(x, []float32{10, 20})
	if err != nil {
		t.Fatalf("bias add failed: %v", err)
	}
	if want := []float32{11, 22, 13, 24}; !slices.Equal(got.F32, want) {
		t.Errorf("expected %v, got %v", want, got.F32)
	}
	if x.F32[0] != 1 {
		t.Errorf("bias add modified its input")
	}

	sum, err := Add(x, got)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if want := []float32{12, 24, 16, 28}; !slices.Equal(sum.F32, want) {
		t.Errorf("expected %v, got %v", want, sum.F32)
	}
	if _, err := Add(x, mustF32(t, []float32{1, 2, 3, 4}, 4)); !errors.Is(err, nnerrors.ErrShape) {
		t.Errorf("expected shape error adding mismatched shapes, got %v", err)
	}
}

func TestLayerNorm(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3}, 1, 3)
	got, err := LayerNorm(x, []float32{1, 1, 1}, []float32{0, 0, 0}, 1e-5)
	if err != nil {
		t.Fatalf("layer norm failed: %v", err)
	}
	expected := []float32{-1.2247356, 0, 1.2247356}
	if !closeTo(got.F32, expected, 1e-4) {
		t.Errorf("expected %v, got %v", expected, got.F32)
	}

	shifted, err := LayerNorm(x, []float32{2, 2, 2}, []float32{1, 1, 1}, 1e-5)
	if err != nil {
		t.Fatalf("layer norm failed: %v", err)
	}
	expected = []float32{-1.4494712, 1, 3.4494712}
	if !closeTo(shifted.F32, expected, 1e-4) {
		t.Errorf("expected %v, got %v", expected, shifted.F32)
	}
}

func TestGELU(t *testing.T) {
	got := GELU(mustF32(t, []float32{-1, 0, 1, 3}, 4))
	expected := []float32{-0.15880801, 0, 0.841192, 2.9963627}
	if !closeTo(got.F32, expected, 1e-4) {
		t.Errorf("expected %v, got %v", expected, got.F32)
	}
}

func TestSoftmax(t *testing.T) {
	v := []float32{1000, 1000}
	Softmax(v)
	if v[0] != 0.5 || v[1] != 0.5 {
		t.Errorf("large equal logits should split evenly, got %v", v)
	}
	Softmax(nil)
}

func TestSelfAttention(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4}, 1, 2, 2)
	w := AttentionWeights{
		// A zero query projection makes every score equal.
		Query:  make([]float32, 4),
		Key:    identity(2),
		Value:  identity(2),
		Output: identity(2),
	}

	got, err := SelfAttention(x, w, 2, 1, false)
	if err != nil {
		t.Fatalf("attention failed: %v", err)
	}
	if !slices.Equal(got.Shape, x.Shape) {
		t.Errorf("unexpected shape %v", got.Shape)
	}
	if want := []float32{2, 3, 2, 3}; !closeTo(got.F32, want, 1e-6) {
		t.Errorf("expected %v, got %v", want, got.F32)
	}

	masked, err := SelfAttention(x, w, 2, 1, true)
	if err != nil {
		t.Fatalf("causal attention failed: %v", err)
	}
	if want := []float32{1, 2, 2, 3}; !closeTo(masked.F32, want, 1e-6) {
		t.Errorf("expected %v, got %v", want, masked.F32)
	}

	if _, err := SelfAttention(x, w, 2, 3, false); !errors.Is(err, nnerrors.ErrShape) {
		t.Errorf("expected shape error when heads do not divide width, got %v", err)
	}
}

func TestSelfAttentionIsDeterministic(t *testing.T) {
	const dim, seq = 8, 5
	data := make([]float32, seq*dim)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) * 0.37))
	}
	proj := func(seed float64) []float32 {
		m := make([]float32, dim*dim)
		for i := range m {
			m[i] = float32(math.Cos(float64(i)*seed)) / dim
		}
		return m
	}
	w := AttentionWeights{Query: proj(0.11), Key: proj(0.23), Value: proj(0.31), Output: proj(0.47)}

	first, err := SelfAttention(mustF32(t, data, seq, dim), w, dim, 2, true)
	if err != nil {
		t.Fatalf("attention failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := SelfAttention(mustF32(t, slices.Clone(data), seq, dim), w, dim, 2, true)
		if err != nil {
			t.Fatalf("attention failed: %v", err)
		}
		for j := range first.F32 {
			if math.Float32bits(first.F32[j]) != math.Float32bits(again.F32[j]) {
				t.Fatalf("run %d differs at %d: %v vs %v", i, j, first.F32[j], again.F32[j])
			}
		}
	}
}
