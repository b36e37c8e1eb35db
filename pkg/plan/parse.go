package plan

import (
	"fmt"
	"math"

	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
)

// Parse decodes buf into a Plan. The checks run in a fixed order: format tag
// and version, declared total length, weight blob lengths, input references,
// then operation codes. Any failure wraps nnerrors.ErrParse.
func Parse(buf []byte) (*Plan, error) {
	h, err := modelformat.DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if string(h.Magic[:]) != modelformat.Magic {
		return nil, fmt.Errorf("%w: unrecognized format tag %q", nnerrors.ErrParse, h.Magic[:])
	}
	if h.Version != modelformat.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", nnerrors.ErrParse, h.Version)
	}
	if h.TotalLength != uint64(len(buf)) {
		return nil, fmt.Errorf("%w: container declares %d bytes, buffer holds %d", nnerrors.ErrParse, h.TotalLength, len(buf))
	}

	c, err := modelformat.Decode(buf)
	if err != nil {
		return nil, err
	}

	for i, l := range c.Layers {
		for j, w := range l.Weights {
			if err := checkWeight(c, w); err != nil {
				return nil, fmt.Errorf("%w: layer %d weight %d: %v", nnerrors.ErrParse, i, j, err)
			}
		}
	}

	for i, l := range c.Layers {
		if len(l.Inputs) == 0 {
			return nil, fmt.Errorf("%w: layer %d has no inputs", nnerrors.ErrParse, i)
		}
		for _, in := range l.Inputs {
			if in != modelformat.ExternalInput && (in < 0 || int(in) >= i) {
				return nil, fmt.Errorf("%w: layer %d input %d is not the external input or a prior layer", nnerrors.ErrParse, i, in)
			}
		}
	}

	for i, l := range c.Layers {
		if !l.Op.Known() {
			return nil, fmt.Errorf("%w: layer %d has unknown operation code %d", nnerrors.ErrParse, i, uint32(l.Op))
		}
	}

	return build(c, buf), nil
}

func checkWeight(c *modelformat.Container, w modelformat.WeightEntry) error {
	size := w.Type.Size()
	if size == 0 {
		return fmt.Errorf("unknown element type %d", uint32(w.Type))
	}
	n := size
	for _, d := range w.Dims {
		if d != 0 && n > math.MaxUint64/d {
			return fmt.Errorf("%s%v overflows", w.Type, w.Dims)
		}
		n *= d
	}
	if want := n; want != w.Length {
		return fmt.Errorf("%s%v needs %d bytes, declared %d", w.Type, w.Dims, want, w.Length)
	}
	end := w.Offset + w.Length
	if w.Offset < c.DataOffset || end < w.Offset || end > c.TotalLength {
		return fmt.Errorf("blob [%d, %d) lies outside the data region [%d, %d)", w.Offset, end, c.DataOffset, c.TotalLength)
	}
	return nil
}

func build(c *modelformat.Container, buf []byte) *Plan {
	p := &Plan{Version: c.Version, Layers: make([]LayerSpec, len(c.Layers))}
	for i, l := range c.Layers {
		spec := LayerSpec{
			Index:   i,
			Op:      l.Op,
			Inputs:  make([]Ref, len(l.Inputs)),
			Output:  Ref(i),
			Attrs:   l.Attrs,
			Weights: make([]WeightSpec, len(l.Weights)),
		}
		for j, in := range l.Inputs {
			spec.Inputs[j] = Ref(in)
		}
		for j, w := range l.Weights {
			spec.Weights[j] = WeightSpec{
				DType:  w.Type,
				Shape:  w.Dims,
				Offset: w.Offset,
				Length: w.Length,
				Data:   buf[w.Offset : w.Offset+w.Length : w.Offset+w.Length],
			}
		}
		p.Layers[i] = spec
	}
	return p
}
