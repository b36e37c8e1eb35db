// Package modelformat reads and writes the chunked model container.
//
// The container is little endian:
//
//	header:  magic "NNCK" | version u32 | layer_count u32 | total_length u64
//	table:   per layer: op u32 | n u32 | inputs i32[n] | n u32 | attrs f32[n] |
//	         n u32 | per weight: type u32 | ndims u32 | dims u64[ndims] | offset u64 | length u64
//	data:    raw row-major weight blobs at the absolute offsets named in the table
package modelformat

import "fmt"

const (
	Magic      = "NNCK"
	Version    = 1
	HeaderSize = 20

	// ExternalInput is the input reference naming the caller-supplied tensor.
	ExternalInput int32 = -1
)

type OpCode uint32

const (
	OpIdentity OpCode = iota
	OpEmbedding
	OpMatMul
	OpBiasAdd
	OpLayerNorm
	OpGELU
	OpAttention
	OpAdd

	numOpCodes
)

var opNames = [...]string{
	OpIdentity:  "Identity",
	OpEmbedding: "Embedding",
	OpMatMul:    "MatMul",
	OpBiasAdd:   "BiasAdd",
	OpLayerNorm: "LayerNorm",
	OpGELU:      "GELU",
	OpAttention: "Attention",
	OpAdd:       "Add",
}

// Known reports whether op is one of the defined operation codes.
func (op OpCode) Known() bool {
	return op < numOpCodes
}

func (op OpCode) String() string {
	if op.Known() {
		return opNames[op]
	}
	return fmt.Sprintf("OpCode(%d)", uint32(op))
}

type ElementType uint32

const (
	TypeF32 ElementType = iota
	TypeF16
	TypeBF16
	TypeI64
)

// Size returns the encoded size of one element in bytes, or 0 for an unknown type.
func (t ElementType) Size() uint64 {
	switch t {
	case TypeF32:
		return 4
	case TypeF16, TypeBF16:
		return 2
	case TypeI64:
		return 8
	default:
		return 0
	}
}

func (t ElementType) String() string {
	switch t {
	case TypeF32:
		return "F32"
	case TypeF16:
		return "F16"
	case TypeBF16:
		return "BF16"
	case TypeI64:
		return "I64"
	default:
		return fmt.Sprintf("ElementType(%d)", uint32(t))
	}
}

type Header struct {
	Magic       [4]byte
	Version     uint32
	LayerCount  uint32
	TotalLength uint64
}

type WeightEntry struct {
	Type   ElementType
	Dims   []uint64
	Offset uint64
	Length uint64
}

// Elements returns the product of the weight's dimensions.
func (w WeightEntry) Elements() uint64 {
	n := uint64(1)
	for _, d := range w.Dims {
		n *= d
	}
	return n
}

type LayerEntry struct {
	Op      OpCode
	Inputs  []int32
	Attrs   []float32
	Weights []WeightEntry
}

// Container is a decoded header and layer table. Weight bytes stay in the source buffer.
type Container struct {
	Header
	Layers []LayerEntry

	// DataOffset is where the layer table ends and weight data may begin.
	DataOffset uint64
}
