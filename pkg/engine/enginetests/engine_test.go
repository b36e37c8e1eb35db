package enginetests

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

func TestEngine(t *testing.T) {
	ctx := context.Background()
	m := Build(t, TwoLayer())

	result, err := m.ComputeI64(ctx, 0, []int64{3}, []uint64{1}, engine.Window{})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	t.Logf("result: %+v", result)

	if diff := cmp.Diff([]uint64{1, 4}, result.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if !FloatingPointEqual(result.Data, EmbeddingRow(3)) {
		t.Errorf("expected %+v, got %+v", EmbeddingRow(3), result.Data)
	}
	if result.NextLayer != 2 || !result.Done(m) {
		t.Errorf("expected the pass to finish, next layer is %d", result.NextLayer)
	}
	if result.ModelID != m.ID() {
		t.Errorf("expected model id %q, got %q", m.ID(), result.ModelID)
	}
}

func TestComputeErrors(t *testing.T) {
	ctx := context.Background()
	m := Build(t, TwoLayer())

	cases := []struct {
		name  string
		start int
		input *tensor.Tensor
		want  error
	}{
		{"start at layer count", 2, &tensor.Tensor{DType: tensor.Int64, I64: []int64{1}, Shape: []uint64{1}}, nnerrors.ErrIndex},
		{"negative start", -1, &tensor.Tensor{DType: tensor.Int64, I64: []int64{1}, Shape: []uint64{1}}, nnerrors.ErrIndex},
		{"short data", 0, &tensor.Tensor{DType: tensor.Int64, I64: []int64{1, 2}, Shape: []uint64{3}}, nnerrors.ErrShape},
		{"float ids", 0, &tensor.Tensor{DType: tensor.Float32, F32: []float32{1}, Shape: []uint64{1}}, nnerrors.ErrShape},
		{"id past vocabulary", 0, &tensor.Tensor{DType: tensor.Int64, I64: []int64{10}, Shape: []uint64{1}}, nnerrors.ErrIndex},
		{"negative id", 0, &tensor.Tensor{DType: tensor.Int64, I64: []int64{-1}, Shape: []uint64{1}}, nnerrors.ErrIndex},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Compute(ctx, tc.start, tc.input, engine.Window{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := m.ComputeF32(ctx, 2, []float32{1}, []uint64{1}, engine.Window{}); !errors.Is(err, nnerrors.ErrIndex) {
		t.Errorf("expected index error from ComputeF32, got %v", err)
	}
	if _, err := m.ComputeF32(ctx, 1, []float32{1, 2}, []uint64{1}, engine.Window{}); !errors.Is(err, nnerrors.ErrShape) {
		t.Errorf("expected shape error from ComputeF32, got %v", err)
	}
}

func TestIntegerInputToFloatLayer(t *testing.T) {
	m := Build(t, TwoLayer())
	result, err := m.ComputeI64(context.Background(), 1, []int64{5, 6}, []uint64{2}, engine.Window{})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if want := []float32{5, 6}; !slices.Equal(result.Data, want) {
		t.Errorf("expected %v, got %v", want, result.Data)
	}
}

func TestEncoderBoundaries(t *testing.T) {
	m := Build(t, Encoder())
	if diff := cmp.Diff(EncoderBoundaries, m.Boundaries()); diff != "" {
		t.Errorf("boundaries mismatch (-want +got):\n%s", diff)
	}
	if first, ok := m.FirstEmbeddingLayer(); !ok || first != 0 {
		t.Errorf("expected embedding at layer 0, got %d %v", first, ok)
	}

	x := make([]float32, 2*EncoderWidth)
	if _, err := m.ComputeF32(context.Background(), 3, x, []uint64{1, 2, EncoderWidth}, engine.Window{}); !errors.Is(err, nnerrors.ErrIndex) {
		t.Errorf("expected index error starting inside a residual block, got %v", err)
	}
}

func TestTokenIDsNeverCrossABoundary(t *testing.T) {
	ctx := context.Background()
	m := Build(t, PassThroughFirst())
	if diff := cmp.Diff([]int{0, 2}, m.Boundaries()); diff != "" {
		t.Errorf("boundaries mismatch (-want +got):\n%s", diff)
	}

	result, err := m.ComputeI64(ctx, 0, []int64{3}, []uint64{1}, engine.Window{MaxLayers: 1})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if !result.Done(m) {
		t.Fatalf("expected the first window to reach the end, stopped at %d", result.NextLayer)
	}
	if !FloatingPointEqual(result.Data, EmbeddingRow(3)) {
		t.Errorf("expected %+v, got %+v", EmbeddingRow(3), result.Data)
	}

	if _, err := m.ComputeF32(ctx, 1, []float32{3}, []uint64{1}, engine.Window{}); !errors.Is(err, nnerrors.ErrIndex) {
		t.Errorf("expected index error resuming before the embedding, got %v", err)
	}
}

func encoderIDs() ([]int64, []uint64) {
	return []int64{3, 1, 4, 1, 5}, []uint64{1, 5}
}

func TestWindowedPassMatchesSinglePass(t *testing.T) {
	ctx := context.Background()
	m := Build(t, Encoder())
	ids, shape := encoderIDs()

	whole, err := m.ComputeI64(ctx, 0, ids, shape, engine.Window{})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 5, EncoderWidth}, whole.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}

	window := engine.Window{MaxLayers: 1}
	step, err := m.ComputeI64(ctx, 0, ids, shape, window)
	if err != nil {
		t.Fatalf("failed to compute first window: %v", err)
	}
	stops := []int{step.NextLayer}
	for !step.Done(m) {
		step, err = m.ComputeF32(ctx, step.NextLayer, step.Data, step.Shape, window)
		if err != nil {
			t.Fatalf("failed to compute window at %d: %v", stops[len(stops)-1], err)
		}
		if tensor.NumElements(step.Shape) != uint64(len(step.Data)) {
			t.Fatalf("result shape %v does not match %d values", step.Shape, len(step.Data))
		}
		stops = append(stops, step.NextLayer)
	}

	if diff := cmp.Diff([]int{1, 2, 4, 9, 10}, stops); diff != "" {
		t.Errorf("window stops mismatch (-want +got):\n%s", diff)
	}
	if len(step.Data) != len(whole.Data) {
		t.Fatalf("expected %d values, got %d", len(whole.Data), len(step.Data))
	}
	for i := range whole.Data {
		if math.Float32bits(whole.Data[i]) != math.Float32bits(step.Data[i]) {
			t.Fatalf("value %d differs: %v vs %v", i, whole.Data[i], step.Data[i])
		}
	}
}

func TestDeterminism(t *testing.T) {
	ctx := context.Background()
	m := Build(t, Encoder())
	ids, shape := encoderIDs()

	first, err := m.ComputeI64(ctx, 0, ids, shape, engine.Window{})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := m.ComputeI64(ctx, 0, ids, shape, engine.Window{})
		if err != nil {
			t.Fatalf("failed to compute: %v", err)
		}
		for j := range first.Data {
			if math.Float32bits(first.Data[j]) != math.Float32bits(again.Data[j]) {
				t.Fatalf("run %d differs at %d", i, j)
			}
		}
	}

	// A second compile of the same bytes computes the same values under a new id.
	other := Build(t, Encoder())
	if other.ID() == m.ID() {
		t.Errorf("expected distinct model ids")
	}
	again, err := other.ComputeI64(ctx, 0, ids, shape, engine.Window{})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if !slices.Equal(first.Data, again.Data) {
		t.Errorf("recompiled model computed different values")
	}
}

func TestCostWindow(t *testing.T) {
	ctx := context.Background()
	m := Build(t, Encoder())
	ids, shape := encoderIDs()

	if _, err := m.ComputeI64(ctx, 0, ids, shape, engine.Window{MaxCost: 1}); !errors.Is(err, nnerrors.ErrResourceExhausted) {
		t.Fatalf("expected resource exhausted, got %v", err)
	}

	// The embedding lookup costs one unit per output value.
	result, err := m.ComputeI64(ctx, 0, ids, shape, engine.Window{MaxCost: 5 * EncoderWidth})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if result.NextLayer != 1 {
		t.Errorf("expected to stop after the embedding, stopped at %d", result.NextLayer)
	}
}

func TestCompileErrors(t *testing.T) {
	ext := modelformat.ExternalInput
	table := modelformat.F32Weight(make([]float32, 12), 3, 4)
	square := func(n uint64) modelformat.Weight { return modelformat.F32Weight(make([]float32, n*n), n, n) }

	cases := []struct {
		name   string
		layers []modelformat.Layer
	}{
		{"width mismatch", []modelformat.Layer{
			{Op: modelformat.OpEmbedding, Inputs: []int32{ext}, Weights: []modelformat.Weight{table}},
			{Op: modelformat.OpMatMul, Inputs: []int32{0}, Weights: []modelformat.Weight{square(5)}},
		}},
		{"embedding of floats", []modelformat.Layer{
			{Op: modelformat.OpEmbedding, Inputs: []int32{ext}, Weights: []modelformat.Weight{table}},
			{Op: modelformat.OpEmbedding, Inputs: []int32{0}, Weights: []modelformat.Weight{table}},
		}},
		{"integer weights", []modelformat.Layer{
			{Op: modelformat.OpBiasAdd, Inputs: []int32{ext}, Weights: []modelformat.Weight{modelformat.I64Weight([]int64{1, 2}, 2)}},
		}},
		{"missing weight", []modelformat.Layer{
			{Op: modelformat.OpMatMul, Inputs: []int32{ext}},
		}},
		{"heads do not divide width", []modelformat.Layer{
			{Op: modelformat.OpAttention, Inputs: []int32{ext}, Attrs: []float32{3}, Weights: []modelformat.Weight{square(4), square(4), square(4), square(4)}},
		}},
		{"attention without head count", []modelformat.Layer{
			{Op: modelformat.OpAttention, Inputs: []int32{ext}, Weights: []modelformat.Weight{square(4), square(4), square(4), square(4)}},
		}},
		{"add with one input", []modelformat.Layer{
			{Op: modelformat.OpAdd, Inputs: []int32{ext}},
		}},
		{"add of mismatched widths", []modelformat.Layer{
			{Op: modelformat.OpEmbedding, Inputs: []int32{ext}, Weights: []modelformat.Weight{table}},
			{Op: modelformat.OpMatMul, Inputs: []int32{0}, Weights: []modelformat.Weight{modelformat.F32Weight(make([]float32, 8), 4, 2)}},
			{Op: modelformat.OpAdd, Inputs: []int32{0, 1}},
		}},
		{"layer norm epsilon", []modelformat.Layer{
			{Op: modelformat.OpLayerNorm, Inputs: []int32{ext}, Attrs: []float32{0}, Weights: []modelformat.Weight{
				modelformat.F32Weight([]float32{1}, 1), modelformat.F32Weight([]float32{0}, 1),
			}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := Encode(t, tc.layers)
			p, err := plan.Parse(buf)
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			if _, err := engine.Compile(p); !errors.Is(err, nnerrors.ErrCompile) {
				t.Fatalf("expected compile error, got %v", err)
			}
			fresh, err := plan.Parse(buf)
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			if diff := cmp.Diff(fresh, p); diff != "" {
				t.Errorf("compile modified the plan (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompilePreservesLayers(t *testing.T) {
	layers := Encoder()
	m := Build(t, layers)
	if m.NumLayers() != len(layers) {
		t.Fatalf("expected %d layers, got %d", len(layers), m.NumLayers())
	}
	for i, l := range m.Layers() {
		if got, want := l.Op.Name(), layers[i].Op.String(); got != want {
			t.Errorf("layer %d: expected %s, got %s", i, want, got)
		}
	}
	mm, ok := m.Layers()[4].Op.(engine.MatMul)
	if !ok || mm.In != EncoderWidth || mm.Out != EncoderHidden {
		t.Errorf("unexpected up projection %+v", m.Layers()[4].Op)
	}
}
