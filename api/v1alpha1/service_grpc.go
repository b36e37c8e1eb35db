package v1alpha1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "modelpipeline.v1alpha1.Pipeline"

const (
	Pipeline_UploadModelChunks_FullMethodName       = "/" + ServiceName + "/UploadModelChunks"
	Pipeline_InitializeModelPipeline_FullMethodName = "/" + ServiceName + "/InitializeModelPipeline"
	Pipeline_ModelBytesToPlan_FullMethodName        = "/" + ServiceName + "/ModelBytesToPlan"
	Pipeline_PlanToRunningModel_FullMethodName      = "/" + ServiceName + "/PlanToRunningModel"
	Pipeline_WordEmbeddings_FullMethodName          = "/" + ServiceName + "/WordEmbeddings"
	Pipeline_Embed_FullMethodName                   = "/" + ServiceName + "/Embed"
	Pipeline_SubNNComputeI64_FullMethodName         = "/" + ServiceName + "/SubNNComputeI64"
	Pipeline_SubNNComputeF32_FullMethodName         = "/" + ServiceName + "/SubNNComputeF32"
	Pipeline_Status_FullMethodName                  = "/" + ServiceName + "/Status"
	Pipeline_Tokenize_FullMethodName                = "/" + ServiceName + "/Tokenize"
)

// PipelineClient is the client API for the Pipeline service.
type PipelineClient interface {
	UploadModelChunks(ctx context.Context, in *UploadModelChunksRequest, opts ...grpc.CallOption) (*UploadModelChunksResponse, error)
	InitializeModelPipeline(ctx context.Context, in *InitializeModelPipelineRequest, opts ...grpc.CallOption) (*InitializeModelPipelineResponse, error)
	ModelBytesToPlan(ctx context.Context, in *ModelBytesToPlanRequest, opts ...grpc.CallOption) (*ModelBytesToPlanResponse, error)
	PlanToRunningModel(ctx context.Context, in *PlanToRunningModelRequest, opts ...grpc.CallOption) (*PlanToRunningModelResponse, error)
	WordEmbeddings(ctx context.Context, in *WordEmbeddingsRequest, opts ...grpc.CallOption) (*WordEmbeddingsResponse, error)
	Embed(ctx context.Context, in *EmbedRequest, opts ...grpc.CallOption) (*EmbedResponse, error)
	SubNNComputeI64(ctx context.Context, in *SubNNComputeI64Request, opts ...grpc.CallOption) (*ComputeResponse, error)
	SubNNComputeF32(ctx context.Context, in *SubNNComputeF32Request, opts ...grpc.CallOption) (*ComputeResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Tokenize(ctx context.Context, in *TokenizeRequest, opts ...grpc.CallOption) (*TokenizeResponse, error)
}

type pipelineClient struct {
	cc grpc.ClientConnInterface
}

func NewPipelineClient(cc grpc.ClientConnInterface) PipelineClient {
	return &pipelineClient{cc}
}

func (c *pipelineClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Codec)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *pipelineClient) UploadModelChunks(ctx context.Context, in *UploadModelChunksRequest, opts ...grpc.CallOption) (*UploadModelChunksResponse, error) {
	out := new(UploadModelChunksResponse)
	if err := c.invoke(ctx, Pipeline_UploadModelChunks_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) InitializeModelPipeline(ctx context.Context, in *InitializeModelPipelineRequest, opts ...grpc.CallOption) (*InitializeModelPipelineResponse, error) {
	out := new(InitializeModelPipelineResponse)
	if err := c.invoke(ctx, Pipeline_InitializeModelPipeline_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) ModelBytesToPlan(ctx context.Context, in *ModelBytesToPlanRequest, opts ...grpc.CallOption) (*ModelBytesToPlanResponse, error) {
	out := new(ModelBytesToPlanResponse)
	if err := c.invoke(ctx, Pipeline_ModelBytesToPlan_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) PlanToRunningModel(ctx context.Context, in *PlanToRunningModelRequest, opts ...grpc.CallOption) (*PlanToRunningModelResponse, error) {
	out := new(PlanToRunningModelResponse)
	if err := c.invoke(ctx, Pipeline_PlanToRunningModel_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) WordEmbeddings(ctx context.Context, in *WordEmbeddingsRequest, opts ...grpc.CallOption) (*WordEmbeddingsResponse, error) {
	out := new(WordEmbeddingsResponse)
	if err := c.invoke(ctx, Pipeline_WordEmbeddings_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) Embed(ctx context.Context, in *EmbedRequest, opts ...grpc.CallOption) (*EmbedResponse, error) {
	out := new(EmbedResponse)
	if err := c.invoke(ctx, Pipeline_Embed_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) SubNNComputeI64(ctx context.Context, in *SubNNComputeI64Request, opts ...grpc.CallOption) (*ComputeResponse, error) {
	out := new(ComputeResponse)
	if err := c.invoke(ctx, Pipeline_SubNNComputeI64_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) SubNNComputeF32(ctx context.Context, in *SubNNComputeF32Request, opts ...grpc.CallOption) (*ComputeResponse, error) {
	out := new(ComputeResponse)
	if err := c.invoke(ctx, Pipeline_SubNNComputeF32_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, Pipeline_Status_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pipelineClient) Tokenize(ctx context.Context, in *TokenizeRequest, opts ...grpc.CallOption) (*TokenizeResponse, error) {
	out := new(TokenizeResponse)
	if err := c.invoke(ctx, Pipeline_Tokenize_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// PipelineServer is the server API for the Pipeline service. Implementations
// must embed UnimplementedPipelineServer.
type PipelineServer interface {
	UploadModelChunks(context.Context, *UploadModelChunksRequest) (*UploadModelChunksResponse, error)
	InitializeModelPipeline(context.Context, *InitializeModelPipelineRequest) (*InitializeModelPipelineResponse, error)
	ModelBytesToPlan(context.Context, *ModelBytesToPlanRequest) (*ModelBytesToPlanResponse, error)
	PlanToRunningModel(context.Context, *PlanToRunningModelRequest) (*PlanToRunningModelResponse, error)
	WordEmbeddings(context.Context, *WordEmbeddingsRequest) (*WordEmbeddingsResponse, error)
	Embed(context.Context, *EmbedRequest) (*EmbedResponse, error)
	SubNNComputeI64(context.Context, *SubNNComputeI64Request) (*ComputeResponse, error)
	SubNNComputeF32(context.Context, *SubNNComputeF32Request) (*ComputeResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Tokenize(context.Context, *TokenizeRequest) (*TokenizeResponse, error)
	mustEmbedUnimplementedPipelineServer()
}

type UnimplementedPipelineServer struct{}

func (UnimplementedPipelineServer) UploadModelChunks(context.Context, *UploadModelChunksRequest) (*UploadModelChunksResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UploadModelChunks not implemented")
}

func (UnimplementedPipelineServer) InitializeModelPipeline(context.Context, *InitializeModelPipelineRequest) (*InitializeModelPipelineResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method InitializeModelPipeline not implemented")
}

func (UnimplementedPipelineServer) ModelBytesToPlan(context.Context, *ModelBytesToPlanRequest) (*ModelBytesToPlanResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ModelBytesToPlan not implemented")
}

func (UnimplementedPipelineServer) PlanToRunningModel(context.Context, *PlanToRunningModelRequest) (*PlanToRunningModelResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PlanToRunningModel not implemented")
}

func (UnimplementedPipelineServer) WordEmbeddings(context.Context, *WordEmbeddingsRequest) (*WordEmbeddingsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method WordEmbeddings not implemented")
}

func (UnimplementedPipelineServer) Embed(context.Context, *EmbedRequest) (*EmbedResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Embed not implemented")
}

func (UnimplementedPipelineServer) SubNNComputeI64(context.Context, *SubNNComputeI64Request) (*ComputeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubNNComputeI64 not implemented")
}

func (UnimplementedPipelineServer) SubNNComputeF32(context.Context, *SubNNComputeF32Request) (*ComputeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubNNComputeF32 not implemented")
}

func (UnimplementedPipelineServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Status not implemented")
}

func (UnimplementedPipelineServer) Tokenize(context.Context, *TokenizeRequest) (*TokenizeResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Tokenize not implemented")
}

func (UnimplementedPipelineServer) mustEmbedUnimplementedPipelineServer() {}

func RegisterPipelineServer(s grpc.ServiceRegistrar, srv PipelineServer) {
	s.RegisterService(&Pipeline_ServiceDesc, srv)
}

func _Pipeline_UploadModelChunks_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UploadModelChunksRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).UploadModelChunks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_UploadModelChunks_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).UploadModelChunks(ctx, req.(*UploadModelChunksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_InitializeModelPipeline_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InitializeModelPipelineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).InitializeModelPipeline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_InitializeModelPipeline_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).InitializeModelPipeline(ctx, req.(*InitializeModelPipelineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_ModelBytesToPlan_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ModelBytesToPlanRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).ModelBytesToPlan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_ModelBytesToPlan_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).ModelBytesToPlan(ctx, req.(*ModelBytesToPlanRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_PlanToRunningModel_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlanToRunningModelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).PlanToRunningModel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_PlanToRunningModel_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).PlanToRunningModel(ctx, req.(*PlanToRunningModelRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_WordEmbeddings_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WordEmbeddingsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).WordEmbeddings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_WordEmbeddings_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).WordEmbeddings(ctx, req.(*WordEmbeddingsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_Embed_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EmbedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Embed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_Embed_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).Embed(ctx, req.(*EmbedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_SubNNComputeI64_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubNNComputeI64Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).SubNNComputeI64(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_SubNNComputeI64_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).SubNNComputeI64(ctx, req.(*SubNNComputeI64Request))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_SubNNComputeF32_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubNNComputeF32Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).SubNNComputeF32(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_SubNNComputeF32_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).SubNNComputeF32(ctx, req.(*SubNNComputeF32Request))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_Status_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pipeline_Tokenize_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TokenizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PipelineServer).Tokenize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Pipeline_Tokenize_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PipelineServer).Tokenize(ctx, req.(*TokenizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Pipeline_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UploadModelChunks",
			Handler:    _Pipeline_UploadModelChunks_Handler,
		},
		{
			MethodName: "InitializeModelPipeline",
			Handler:    _Pipeline_InitializeModelPipeline_Handler,
		},
		{
			MethodName: "ModelBytesToPlan",
			Handler:    _Pipeline_ModelBytesToPlan_Handler,
		},
		{
			MethodName: "PlanToRunningModel",
			Handler:    _Pipeline_PlanToRunningModel_Handler,
		},
		{
			MethodName: "WordEmbeddings",
			Handler:    _Pipeline_WordEmbeddings_Handler,
		},
		{
			MethodName: "Embed",
			Handler:    _Pipeline_Embed_Handler,
		},
		{
			MethodName: "SubNNComputeI64",
			Handler:    _Pipeline_SubNNComputeI64_Handler,
		},
		{
			MethodName: "SubNNComputeF32",
			Handler:    _Pipeline_SubNNComputeF32_Handler,
		},
		{
			MethodName: "Status",
			Handler:    _Pipeline_Status_Handler,
		},
		{
			MethodName: "Tokenize",
			Handler:    _Pipeline_Tokenize_Handler,
		},
	},
	Streams: []grpc.StreamDesc{},
}
