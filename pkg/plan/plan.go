// Package plan decodes a model container into an ordered layer graph.
package plan

import (
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
)

// Ref names a value in the graph: a layer's output, or ExternalInput.
type Ref int32

const ExternalInput = Ref(modelformat.ExternalInput)

type WeightSpec struct {
	DType  modelformat.ElementType
	Shape  []uint64
	Offset uint64
	Length uint64

	// Data aliases the model buffer; it is never written.
	Data []byte
}

type LayerSpec struct {
	Index   int
	Op      modelformat.OpCode
	Inputs  []Ref
	Output  Ref
	Attrs   []float32
	Weights []WeightSpec
}

// Plan is an ordered layer graph. Every input of layer i is ExternalInput or a layer before i.
type Plan struct {
	Version uint32
	Layers  []LayerSpec
}

// Consumers returns, for each layer, the indexes of the layers reading its output.
func (p *Plan) Consumers() [][]int {
	out := make([][]int, len(p.Layers))
	for _, l := range p.Layers {
		for _, in := range l.Inputs {
			if in != ExternalInput {
				out[in] = append(out[in], l.Index)
			}
		}
	}
	return out
}
