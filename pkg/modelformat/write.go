package modelformat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Layer is one layer to encode, with its weight bytes inline.
type Layer struct {
	Op      OpCode
	Inputs  []int32
	Attrs   []float32
	Weights []Weight
}

type Weight struct {
	Type ElementType
	Dims []uint64
	Data []byte
}

func F32Weight(values []float32, dims ...uint64) Weight {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return Weight{Type: TypeF32, Dims: dims, Data: b}
}

func F16Weight(values []float32, dims ...uint64) Weight {
	b := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(v).Bits())
	}
	return Weight{Type: TypeF16, Dims: dims, Data: b}
}

func BF16Weight(values []float32, dims ...uint64) Weight {
	return Weight{Type: TypeBF16, Dims: dims, Data: bfloat16.EncodeFloat32(values)}
}

func I64Weight(values []int64, dims ...uint64) Weight {
	b := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[8*i:], uint64(v))
	}
	return Weight{Type: TypeI64, Dims: dims, Data: b}
}

func tableSize(layers []Layer) uint64 {
	n := uint64(0)
	for _, l := range layers {
		n += 16 + 4*uint64(len(l.Inputs)) + 4*uint64(len(l.Attrs))
		for _, w := range l.Weights {
			n += 8 + 8*uint64(len(w.Dims)) + 16
		}
	}
	return n
}

// Encode lays out layers as a container: header, table, then every weight
// blob in layer order directly after the table.
func Encode(layers []Layer) ([]byte, error) {
	offset := HeaderSize + tableSize(layers)
	total := offset
	for i, l := range layers {
		for j, w := range l.Weights {
			entry := WeightEntry{Type: w.Type, Dims: w.Dims}
			if want := entry.Elements() * w.Type.Size(); want != uint64(len(w.Data)) {
				return nil, fmt.Errorf("layer %d weight %d: %s%v needs %d bytes, have %d", i, j, w.Type, w.Dims, want, len(w.Data))
			}
			total += uint64(len(w.Data))
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(total))
	put := func(v any) {
		// bytes.Buffer writes cannot fail
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}

	var magic [4]byte
	copy(magic[:], Magic)
	put(Header{Magic: magic, Version: Version, LayerCount: uint32(len(layers)), TotalLength: total})

	for _, l := range layers {
		put(uint32(l.Op))
		put(uint32(len(l.Inputs)))
		put(l.Inputs)
		put(uint32(len(l.Attrs)))
		put(l.Attrs)
		put(uint32(len(l.Weights)))
		for _, w := range l.Weights {
			put(uint32(w.Type))
			put(uint32(len(w.Dims)))
			put(w.Dims)
			put(offset)
			put(uint64(len(w.Data)))
			offset += uint64(len(w.Data))
		}
	}

	for _, l := range layers {
		for _, w := range l.Weights {
			buf.Write(w.Data)
		}
	}
	return buf.Bytes(), nil
}
