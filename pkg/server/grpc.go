// Package server exposes a model pipeline over gRPC and HTTP.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	api "k8s.io/examples/AI/modelpipeline/api/v1alpha1"
	"k8s.io/examples/AI/modelpipeline/pkg/embedding"
	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/pipeline"
)

// PipelineServer implements the Pipeline gRPC service on top of a single pipeline.
type PipelineServer struct {
	api.UnimplementedPipelineServer

	pipeline   *pipeline.Pipeline
	embeddings *embedding.Service
}

func NewPipelineServer(p *pipeline.Pipeline, embeddings *embedding.Service) *PipelineServer {
	return &PipelineServer{pipeline: p, embeddings: embeddings}
}

// Register adds the service to a gRPC server.
func (s *PipelineServer) Register(grpcServer *grpc.Server) {
	api.RegisterPipelineServer(grpcServer, s)
}

// toStatus converts a pipeline error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(nnerrors.GRPCCode(err), err.Error())
}

// LoggingInterceptor logs failed calls and maps pipeline errors onto status codes.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	log := klog.FromContext(ctx).WithValues("method", info.FullMethod)
	ctx = klog.NewContext(ctx, log)

	resp, err := handler(ctx, req)
	if err != nil {
		err = toStatus(err)
		log.V(1).Info("call failed", "code", status.Code(err), "err", err)
	}
	return resp, err
}

func (s *PipelineServer) UploadModelChunks(ctx context.Context, req *api.UploadModelChunksRequest) (*api.UploadModelChunksResponse, error) {
	var err error
	if req.Offset != nil {
		err = s.pipeline.UploadAt(ctx, *req.Offset, req.GetBytes())
	} else {
		err = s.pipeline.Upload(ctx, req.GetBytes())
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UploadModelChunksResponse{
		BufferLength:   uint64(s.pipeline.BufferLength()),
		DeclaredLength: s.pipeline.DeclaredLength(),
	}, nil
}

func (s *PipelineServer) InitializeModelPipeline(ctx context.Context, req *api.InitializeModelPipelineRequest) (*api.InitializeModelPipelineResponse, error) {
	s.pipeline.Reset(ctx)
	return &api.InitializeModelPipelineResponse{}, nil
}

func (s *PipelineServer) ModelBytesToPlan(ctx context.Context, req *api.ModelBytesToPlanRequest) (*api.ModelBytesToPlanResponse, error) {
	if err := s.pipeline.Parse(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &api.ModelBytesToPlanResponse{Layers: uint32(s.pipeline.Status().Layers)}, nil
}

func (s *PipelineServer) PlanToRunningModel(ctx context.Context, req *api.PlanToRunningModelRequest) (*api.PlanToRunningModelResponse, error) {
	if err := s.pipeline.Compile(ctx); err != nil {
		return nil, toStatus(err)
	}
	m, err := s.pipeline.Model()
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PlanToRunningModelResponse{
		ModelId:    m.ID(),
		Layers:     uint32(m.NumLayers()),
		Boundaries: toUint32s(m.Boundaries()),
	}, nil
}

func (s *PipelineServer) WordEmbeddings(ctx context.Context, req *api.WordEmbeddingsRequest) (*api.WordEmbeddingsResponse, error) {
	embeddings, err := s.embeddings.WordEmbeddings(ctx, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.WordEmbeddingsResponse{Embeddings: embeddings}, nil
}

func (s *PipelineServer) Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error) {
	embeddings, err := s.embeddings.Embed(ctx, req.Input, embedding.Options{
		Pooling:    embedding.Pooling(req.Pooling),
		Normalize:  req.Normalize,
		Dimensions: int(req.Dimensions),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EmbedResponse{Embeddings: embeddings}, nil
}

func (s *PipelineServer) SubNNComputeI64(ctx context.Context, req *api.SubNNComputeI64Request) (*api.ComputeResponse, error) {
	result, err := s.pipeline.ComputeI64(ctx, int(req.LayerIndex), req.GetInput(), req.GetShape(), int(req.MaxLayers))
	if err != nil {
		return nil, toStatus(err)
	}
	return s.computeResponse(result), nil
}

func (s *PipelineServer) SubNNComputeF32(ctx context.Context, req *api.SubNNComputeF32Request) (*api.ComputeResponse, error) {
	result, err := s.pipeline.ComputeF32(ctx, int(req.LayerIndex), req.GetInput(), req.GetShape(), int(req.MaxLayers))
	if err != nil {
		return nil, toStatus(err)
	}
	return s.computeResponse(result), nil
}

func (s *PipelineServer) computeResponse(result *engine.Result) *api.ComputeResponse {
	resp := &api.ComputeResponse{
		Output:    result.Data,
		Shape:     result.Shape,
		NextLayer: uint32(result.NextLayer),
		ModelId:   result.ModelID,
	}
	if m, err := s.pipeline.Model(); err == nil && m.ID() == result.ModelID {
		resp.Done = result.Done(m)
	}
	return resp
}

func (s *PipelineServer) Status(ctx context.Context, req *api.StatusRequest) (*api.StatusResponse, error) {
	st := s.pipeline.Status()
	return &api.StatusResponse{
		State:          st.State.String(),
		BufferLength:   uint64(st.BufferLength),
		DeclaredLength: st.DeclaredLength,
		Layers:         uint32(st.Layers),
		Boundaries:     toUint32s(st.Boundaries),
		ModelId:        st.ModelID,
	}, nil
}

func (s *PipelineServer) Tokenize(ctx context.Context, req *api.TokenizeRequest) (*api.TokenizeResponse, error) {
	ids, tokens, err := s.embeddings.Tokenize(ctx, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TokenizeResponse{Ids: ids, Tokens: tokens}, nil
}

func toUint32s(in []int) []uint32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}
