package plan

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
)

func encode(t *testing.T, layers []modelformat.Layer) []byte {
	t.Helper()
	b, err := modelformat.Encode(layers)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func twoLayer() []modelformat.Layer {
	table := make([]float32, 40)
	for i := range table {
		table[i] = float32(i)
	}
	return []modelformat.Layer{
		{Op: modelformat.OpEmbedding, Inputs: []int32{modelformat.ExternalInput}, Weights: []modelformat.Weight{modelformat.F32Weight(table, 10, 4)}},
		{Op: modelformat.OpIdentity, Inputs: []int32{0}},
	}
}

func TestParsePreservesLayers(t *testing.T) {
	buf := encode(t, twoLayer())
	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(p.Layers))
	}
	l0 := p.Layers[0]
	if l0.Op != modelformat.OpEmbedding || l0.Output != 0 {
		t.Errorf("unexpected layer 0: %+v", l0)
	}
	if diff := cmp.Diff([]uint64{10, 4}, l0.Weights[0].Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if len(l0.Weights[0].Data) != 160 {
		t.Errorf("expected 160 weight bytes, got %d", len(l0.Weights[0].Data))
	}
	if diff := cmp.Diff([]Ref{0}, p.Layers[1].Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1}, nil}, p.Consumers()); diff != "" {
		t.Errorf("consumers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	buf := encode(t, twoLayer())
	a, err := Parse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := Parse(append([]byte(nil), buf...))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("plans differ (-a +b):\n%s", diff)
	}
}

func TestParseRejects(t *testing.T) {
	grid := []struct {
		name   string
		mutate func(b []byte) []byte
		layers []modelformat.Layer
		want   string
	}{
		{
			name:   "declared length exceeds buffer",
			mutate: func(b []byte) []byte { return b[:len(b)-4] },
			want:   "declares",
		},
		{
			name: "blob length mismatch",
			mutate: func(b []byte) []byte {
				c, _ := modelformat.Decode(b)
				// the length field is the last u64 of the only weight entry
				binary.LittleEndian.PutUint64(b[c.DataOffset-8-8-12:], 8)
				return b
			},
			want: "needs 160 bytes",
		},
		{
			name: "forward reference",
			layers: []modelformat.Layer{
				{Op: modelformat.OpIdentity, Inputs: []int32{1}},
				{Op: modelformat.OpIdentity, Inputs: []int32{modelformat.ExternalInput}},
			},
			want: "not the external input or a prior layer",
		},
		{
			name: "self reference",
			layers: []modelformat.Layer{
				{Op: modelformat.OpIdentity, Inputs: []int32{0}},
			},
			want: "not the external input or a prior layer",
		},
		{
			name: "unknown op",
			layers: []modelformat.Layer{
				{Op: modelformat.OpCode(99), Inputs: []int32{modelformat.ExternalInput}},
			},
			want: "unknown operation code 99",
		},
		{
			name: "no inputs",
			layers: []modelformat.Layer{
				{Op: modelformat.OpIdentity},
			},
			want: "no inputs",
		},
	}
	for _, g := range grid {
		t.Run(g.name, func(t *testing.T) {
			layers := g.layers
			if layers == nil {
				layers = twoLayer()
			}
			buf := encode(t, layers)
			if g.mutate != nil {
				buf = g.mutate(buf)
			}
			_, err := Parse(buf)
			if !errors.Is(err, nnerrors.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if !strings.Contains(err.Error(), g.want) {
				t.Errorf("error %q does not mention %q", err, g.want)
			}
		})
	}
}

func TestParseChecksLengthBeforeOpCodes(t *testing.T) {
	buf := encode(t, []modelformat.Layer{{Op: modelformat.OpCode(42), Inputs: []int32{modelformat.ExternalInput}}})
	buf = append(buf, 0)
	_, err := Parse(buf)
	if err == nil || !strings.Contains(err.Error(), "declares") {
		t.Fatalf("expected the length check to fail first, got %v", err)
	}
}
