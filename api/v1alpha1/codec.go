package v1alpha1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// Codec is the content subtype the service is spoken in. Clients select it
// with grpc.CallContentSubtype(Codec).
const Codec = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return Codec
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
