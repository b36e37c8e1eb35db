package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/engine/enginetests"
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
)

func uploadChunks(t *testing.T, p *Pipeline, buf []byte, size int) {
	t.Helper()
	ctx := context.Background()
	for len(buf) > 0 {
		n := min(size, len(buf))
		if err := p.Upload(ctx, buf[:n]); err != nil {
			t.Fatalf("uploading chunk: %v", err)
		}
		buf = buf[n:]
	}
}

func ready(t *testing.T, layers []modelformat.Layer) *Pipeline {
	t.Helper()
	ctx := context.Background()
	p := New(engine.Window{})
	uploadChunks(t, p, enginetests.Encode(t, layers), 100)
	if err := p.Parse(ctx); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if err := p.Compile(ctx); err != nil {
		t.Fatalf("compiling: %v", err)
	}
	return p
}

func TestChunkingDoesNotChangePlan(t *testing.T) {
	ctx := context.Background()
	buf := enginetests.Encode(t, enginetests.Encoder())

	parse := func(size int) *plan.Plan {
		p := New(engine.Window{})
		uploadChunks(t, p, buf, size)
		if got := p.BufferLength(); got != len(buf) {
			t.Fatalf("expected %d buffered bytes, got %d", len(buf), got)
		}
		if err := p.Parse(ctx); err != nil {
			t.Fatalf("parsing with chunk size %d: %v", size, err)
		}
		return p.plan
	}

	whole := parse(len(buf))
	for _, size := range []int{1, 3, 24, 25, 1000} {
		if diff := cmp.Diff(whole, parse(size)); diff != "" {
			t.Errorf("chunk size %d changed the plan (-want +got):\n%s", size, diff)
		}
	}
}

func TestTwoLayerModel(t *testing.T) {
	p := ready(t, enginetests.TwoLayer())

	result, err := p.ComputeI64(context.Background(), 0, []int64{3}, []uint64{1}, 0)
	if err != nil {
		t.Fatalf("computing: %v", err)
	}
	if diff := cmp.Diff([]uint64{1, 4}, result.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(enginetests.EmbeddingRow(3), result.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	status := p.Status()
	if status.State != Ready || status.Layers != 2 || status.ModelID != result.ModelID {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestReinitialize(t *testing.T) {
	ctx := context.Background()
	p := ready(t, enginetests.TwoLayer())

	p.Reset(ctx)
	if got := p.Status().State; got != Empty {
		t.Fatalf("expected Empty after reset, got %s", got)
	}
	if _, err := p.ComputeF32(ctx, 1, []float32{1, 2, 3, 4}, []uint64{1, 4}, 0); !errors.Is(err, nnerrors.ErrState) {
		t.Fatalf("expected state error, got %v", err)
	}

	// A different model can now be loaded.
	uploadChunks(t, p, enginetests.Encode(t, enginetests.Encoder()), 64)
	if err := p.Parse(ctx); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if err := p.Compile(ctx); err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if got := p.Status().Layers; got != len(enginetests.Encoder()) {
		t.Errorf("expected the new model's layers, got %d", got)
	}
}

func TestTruncatedUpload(t *testing.T) {
	ctx := context.Background()
	buf := enginetests.Encode(t, enginetests.TwoLayer())
	p := New(engine.Window{})

	uploadChunks(t, p, buf[:len(buf)-5], 16)
	if got := p.DeclaredLength(); got != uint64(len(buf)) {
		t.Errorf("expected declared length %d, got %d", len(buf), got)
	}
	if err := p.Parse(ctx); !errors.Is(err, nnerrors.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if s := p.Status(); s.State != Uploading || s.BufferLength != len(buf)-5 {
		t.Fatalf("failed parse changed the pipeline: %+v", s)
	}

	uploadChunks(t, p, buf[len(buf)-5:], 16)
	if err := p.Parse(ctx); err != nil {
		t.Fatalf("parsing completed upload: %v", err)
	}
	if s := p.Status(); s.State != Parsed || s.BufferLength != 0 {
		t.Errorf("unexpected status after parse: %+v", s)
	}
}

func TestStateErrors(t *testing.T) {
	ctx := context.Background()
	p := New(engine.Window{})

	if err := p.Parse(ctx); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("parse while empty: expected state error, got %v", err)
	}
	if err := p.Compile(ctx); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("compile while empty: expected state error, got %v", err)
	}
	if _, err := p.ComputeI64(ctx, 0, []int64{1}, []uint64{1}, 0); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("compute while empty: expected state error, got %v", err)
	}

	uploadChunks(t, p, enginetests.Encode(t, enginetests.TwoLayer()), 50)
	if err := p.Compile(ctx); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("compile while uploading: expected state error, got %v", err)
	}
	if err := p.Parse(ctx); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if err := p.Upload(ctx, []byte{1}); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("upload while parsed: expected state error, got %v", err)
	}
	if err := p.Parse(ctx); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("parse while parsed: expected state error, got %v", err)
	}
	if got := p.Status().State; got != Parsed {
		t.Errorf("expected failed calls to leave Parsed, got %s", got)
	}
}

func TestUploadAt(t *testing.T) {
	ctx := context.Background()
	p := New(engine.Window{})

	if err := p.UploadAt(ctx, 0, []byte("abcd")); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if err := p.UploadAt(ctx, 6, []byte("gh")); !errors.Is(err, nnerrors.ErrChunkOrder) {
		t.Errorf("gap: expected chunk order error, got %v", err)
	}
	if err := p.UploadAt(ctx, 2, []byte("xy")); !errors.Is(err, nnerrors.ErrChunkOrder) {
		t.Errorf("overlap: expected chunk order error, got %v", err)
	}
	if err := p.UploadAt(ctx, 2, []byte("cd")); err != nil {
		t.Errorf("repeated tail: %v", err)
	}
	if err := p.UploadAt(ctx, 4, []byte("ef")); err != nil {
		t.Fatalf("next chunk: %v", err)
	}
	if diff := cmp.Diff([]byte("abcdef"), p.buffer); diff != "" {
		t.Errorf("buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestFailedCompileKeepsPlan(t *testing.T) {
	ctx := context.Background()
	p := New(engine.Window{})
	uploadChunks(t, p, enginetests.Encode(t, []modelformat.Layer{
		{Op: modelformat.OpAdd, Inputs: []int32{modelformat.ExternalInput}},
	}), 64)
	if err := p.Parse(ctx); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if err := p.Compile(ctx); !errors.Is(err, nnerrors.ErrCompile) {
		t.Fatalf("expected compile error, got %v", err)
	}
	if s := p.Status(); s.State != Parsed || s.Layers != 1 {
		t.Errorf("failed compile changed the pipeline: %+v", s)
	}
	if _, err := p.Model(); !errors.Is(err, nnerrors.ErrState) {
		t.Errorf("expected no model, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	p := New(engine.Window{MaxCost: 100})
	if diff := cmp.Diff(engine.Window{MaxCost: 100, MaxLayers: 3}, p.Window(3)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	p = New(engine.Window{MaxLayers: 2})
	if got := p.Window(5).MaxLayers; got != 2 {
		t.Errorf("expected the host limit of 2 layers, got %d", got)
	}
	if got := p.Window(0).MaxLayers; got != 2 {
		t.Errorf("expected the host limit of 2 layers, got %d", got)
	}
}
