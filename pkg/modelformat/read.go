package modelformat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
)

type reader struct {
	r *bytes.Reader
}

func read[T any](r *reader) (t T, err error) {
	err = binary.Read(r.r, binary.LittleEndian, &t)
	return t, err
}

// readSlice reads n fixed-size values, refusing counts the remaining bytes cannot hold.
func readSlice[T any](r *reader, n uint32, elemSize int) ([]T, error) {
	if uint64(n)*uint64(elemSize) > uint64(r.r.Len()) {
		return nil, fmt.Errorf("%d entries of %d bytes exceed the %d remaining bytes", n, elemSize, r.r.Len())
	}
	s := make([]T, n)
	if err := binary.Read(r.r, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeHeader decodes the fixed-size header at the start of b.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: header needs %d bytes, have %d", nnerrors.ErrParse, HeaderSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("%w: reading header: %v", nnerrors.ErrParse, err)
	}
	return h, nil
}

// Decode decodes the header and layer table of b. It checks the magic and
// version, and that the table itself is complete; semantic validation of the
// table is left to the caller.
func Decode(b []byte) (*Container, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: unrecognized format tag %q", nnerrors.ErrParse, h.Magic[:])
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", nnerrors.ErrParse, h.Version)
	}

	r := &reader{r: bytes.NewReader(b[HeaderSize:])}
	c := &Container{Header: h}
	// smallest possible layer entry is four u32 fields
	if uint64(h.LayerCount)*16 > uint64(r.r.Len()) {
		return nil, fmt.Errorf("%w: %d layers do not fit in %d table bytes", nnerrors.ErrParse, h.LayerCount, r.r.Len())
	}
	c.Layers = make([]LayerEntry, h.LayerCount)
	for i := range c.Layers {
		l, err := readLayer(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading layer %d: %v", nnerrors.ErrParse, i, err)
		}
		c.Layers[i] = l
	}
	c.DataOffset = uint64(len(b) - r.r.Len())
	return c, nil
}

func readLayer(r *reader) (LayerEntry, error) {
	var l LayerEntry
	op, err := read[uint32](r)
	if err != nil {
		return l, err
	}
	l.Op = OpCode(op)

	n, err := read[uint32](r)
	if err != nil {
		return l, err
	}
	if l.Inputs, err = readSlice[int32](r, n, 4); err != nil {
		return l, fmt.Errorf("inputs: %w", err)
	}

	if n, err = read[uint32](r); err != nil {
		return l, err
	}
	if l.Attrs, err = readSlice[float32](r, n, 4); err != nil {
		return l, fmt.Errorf("attrs: %w", err)
	}

	if n, err = read[uint32](r); err != nil {
		return l, err
	}
	// type, ndims, offset and length at minimum
	if uint64(n)*24 > uint64(r.r.Len()) {
		return l, fmt.Errorf("%d weights exceed the %d remaining bytes", n, r.r.Len())
	}
	l.Weights = make([]WeightEntry, n)
	for i := range l.Weights {
		if l.Weights[i], err = readWeight(r); err != nil {
			return l, fmt.Errorf("weight %d: %w", i, err)
		}
	}
	return l, nil
}

func readWeight(r *reader) (WeightEntry, error) {
	var w WeightEntry
	t, err := read[uint32](r)
	if err != nil {
		return w, err
	}
	w.Type = ElementType(t)

	ndims, err := read[uint32](r)
	if err != nil {
		return w, err
	}
	if w.Dims, err = readSlice[uint64](r, ndims, 8); err != nil {
		return w, fmt.Errorf("dims: %w", err)
	}
	if w.Offset, err = read[uint64](r); err != nil {
		return w, err
	}
	if w.Length, err = read[uint64](r); err != nil {
		return w, err
	}
	return w, nil
}
