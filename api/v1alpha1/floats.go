package v1alpha1

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Floats is a float32 list whose JSON form spells non-finite values as the
// strings "NaN", "Infinity" and "-Infinity", as the protobuf JSON mapping does.
type Floats []float32

func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 2+8*len(f))
	b = append(b, '[')
	for i, v := range f {
		if i > 0 {
			b = append(b, ',')
		}
		switch {
		case math.IsNaN(float64(v)):
			b = append(b, `"NaN"`...)
		case math.IsInf(float64(v), 1):
			b = append(b, `"Infinity"`...)
		case math.IsInf(float64(v), -1):
			b = append(b, `"-Infinity"`...)
		default:
			b = strconv.AppendFloat(b, float64(v), 'g', -1, 32)
		}
	}
	return append(b, ']'), nil
}

func (f *Floats) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(Floats, len(raw))
	for i, r := range raw {
		if len(r) > 0 && r[0] == '"' {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			switch s {
			case "NaN":
				out[i] = float32(math.NaN())
			case "Infinity":
				out[i] = float32(math.Inf(1))
			case "-Infinity":
				out[i] = float32(math.Inf(-1))
			default:
				return fmt.Errorf("element %d: %q is not a number", i, s)
			}
			continue
		}
		v, err := strconv.ParseFloat(string(r), 32)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	*f = out
	return nil
}

// The messages carrying float data marshal through a local copy of their own
// type, which has no methods, with the float fields shadowed by Floats.

func (x WordEmbeddingsResponse) MarshalJSON() ([]byte, error) {
	type plain WordEmbeddingsResponse
	return json.Marshal(struct {
		plain
		Embeddings Floats `json:"embeddings"`
	}{plain(x), x.Embeddings})
}

func (x *WordEmbeddingsResponse) UnmarshalJSON(b []byte) error {
	type plain WordEmbeddingsResponse
	var aux struct {
		plain
		Embeddings Floats `json:"embeddings"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*x = WordEmbeddingsResponse(aux.plain)
	x.Embeddings = aux.Embeddings
	return nil
}

func (x EmbedResponse) MarshalJSON() ([]byte, error) {
	type plain EmbedResponse
	var rows []Floats
	if x.Embeddings != nil {
		rows = make([]Floats, len(x.Embeddings))
		for i, e := range x.Embeddings {
			rows[i] = e
		}
	}
	return json.Marshal(struct {
		plain
		Embeddings []Floats `json:"embeddings"`
	}{plain(x), rows})
}

func (x *EmbedResponse) UnmarshalJSON(b []byte) error {
	type plain EmbedResponse
	var aux struct {
		plain
		Embeddings []Floats `json:"embeddings"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*x = EmbedResponse(aux.plain)
	x.Embeddings = nil
	if aux.Embeddings != nil {
		x.Embeddings = make([][]float32, len(aux.Embeddings))
		for i, e := range aux.Embeddings {
			x.Embeddings[i] = e
		}
	}
	return nil
}

func (x SubNNComputeF32Request) MarshalJSON() ([]byte, error) {
	type plain SubNNComputeF32Request
	return json.Marshal(struct {
		plain
		Input Floats `json:"input"`
	}{plain(x), x.Input})
}

func (x *SubNNComputeF32Request) UnmarshalJSON(b []byte) error {
	type plain SubNNComputeF32Request
	var aux struct {
		plain
		Input Floats `json:"input"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*x = SubNNComputeF32Request(aux.plain)
	x.Input = aux.Input
	return nil
}

func (x ComputeResponse) MarshalJSON() ([]byte, error) {
	type plain ComputeResponse
	return json.Marshal(struct {
		plain
		Output Floats `json:"output"`
	}{plain(x), x.Output})
}

func (x *ComputeResponse) UnmarshalJSON(b []byte) error {
	type plain ComputeResponse
	var aux struct {
		plain
		Output Floats `json:"output"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*x = ComputeResponse(aux.plain)
	x.Output = aux.Output
	return nil
}
