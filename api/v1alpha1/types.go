// Package v1alpha1 is the wire API of the model pipeline service.
//
// Messages travel as JSON over gRPC; see Codec.
package v1alpha1

type UploadModelChunksRequest struct {
	Bytes []byte `json:"bytes"`

	// Offset, when set, is the position of Bytes in the model. It must equal
	// the number of bytes the server has already received.
	Offset *uint64 `json:"offset,omitempty"`
}

func (x *UploadModelChunksRequest) GetBytes() []byte {
	if x != nil {
		return x.Bytes
	}
	return nil
}

type UploadModelChunksResponse struct {
	BufferLength   uint64 `json:"buffer_length"`
	DeclaredLength uint64 `json:"declared_length,omitempty"`
}

type InitializeModelPipelineRequest struct{}

type InitializeModelPipelineResponse struct{}

type ModelBytesToPlanRequest struct{}

type ModelBytesToPlanResponse struct {
	Layers uint32 `json:"layers"`
}

type PlanToRunningModelRequest struct{}

type PlanToRunningModelResponse struct {
	ModelId    string   `json:"model_id"`
	Layers     uint32   `json:"layers"`
	Boundaries []uint32 `json:"boundaries,omitempty"`
}

type WordEmbeddingsRequest struct {
	Text string `json:"text"`
}

type WordEmbeddingsResponse struct {
	Embeddings []float32 `json:"embeddings"`
}

type EmbedRequest struct {
	Input      []string `json:"input"`
	Pooling    string   `json:"pooling,omitempty"`
	Normalize  bool     `json:"normalize,omitempty"`
	Dimensions uint32   `json:"dimensions,omitempty"`
}

type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type SubNNComputeI64Request struct {
	LayerIndex uint32   `json:"layer_index"`
	Input      []int64  `json:"input"`
	Shape      []uint64 `json:"shape"`

	// MaxLayers narrows the server's window; zero accepts it.
	MaxLayers uint32 `json:"max_layers,omitempty"`
}

func (x *SubNNComputeI64Request) GetInput() []int64 {
	if x != nil {
		return x.Input
	}
	return nil
}

func (x *SubNNComputeI64Request) GetShape() []uint64 {
	if x != nil {
		return x.Shape
	}
	return nil
}

type SubNNComputeF32Request struct {
	LayerIndex uint32    `json:"layer_index"`
	Input      []float32 `json:"input"`
	Shape      []uint64  `json:"shape"`
	MaxLayers  uint32    `json:"max_layers,omitempty"`
}

func (x *SubNNComputeF32Request) GetInput() []float32 {
	if x != nil {
		return x.Input
	}
	return nil
}

func (x *SubNNComputeF32Request) GetShape() []uint64 {
	if x != nil {
		return x.Shape
	}
	return nil
}

type ComputeResponse struct {
	Output []float32 `json:"output"`
	Shape  []uint64  `json:"shape"`

	// NextLayer is the layer_index of the following call.
	NextLayer uint32 `json:"next_layer"`
	Done      bool   `json:"done"`
	ModelId   string `json:"model_id"`
}

type StatusRequest struct{}

type StatusResponse struct {
	State          string   `json:"state"`
	BufferLength   uint64   `json:"buffer_length"`
	DeclaredLength uint64   `json:"declared_length,omitempty"`
	Layers         uint32   `json:"layers,omitempty"`
	Boundaries     []uint32 `json:"boundaries,omitempty"`
	ModelId        string   `json:"model_id,omitempty"`
}

type TokenizeRequest struct {
	Text string `json:"text"`
}

type TokenizeResponse struct {
	Ids    []int64  `json:"ids"`
	Tokens []string `json:"tokens"`
}
