// Package client drives a remote model pipeline: it streams a model up in
// chunks and runs full forward passes as a sequence of windowed calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	api "k8s.io/examples/AI/modelpipeline/api/v1alpha1"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
)

// DefaultChunkSize keeps a base64-encoded chunk well below gRPC's default 4MiB message limit.
const DefaultChunkSize = 1 << 20

type Client struct {
	api api.PipelineClient

	// ChunkSize is the number of model bytes sent per upload call.
	ChunkSize int
}

func New(conn grpc.ClientConnInterface) *Client {
	return &Client{api: api.NewPipelineClient(conn), ChunkSize: DefaultChunkSize}
}

// Dial connects to a pipeline server without transport security.
func Dial(serverAddr string, maxMessageBytes int) (*Client, *grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if maxMessageBytes > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageBytes), grpc.MaxCallSendMsgSize(maxMessageBytes)))
	}
	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to server %q: %w", serverAddr, err)
	}
	return New(conn), conn, nil
}

// callError keeps the gRPC status of a failed call while exposing the
// pipeline error kind to errors.Is.
type callError struct {
	kind error
	st   *status.Status
}

func (e *callError) Error() string              { return e.st.Message() }
func (e *callError) Unwrap() error              { return e.kind }
func (e *callError) GRPCStatus() *status.Status { return e.st }

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	kind := nnerrors.FromStatus(st.Code(), st.Message())
	if kind == nil {
		return err
	}
	return &callError{kind: kind, st: st}
}

func (c *Client) Reset(ctx context.Context) error {
	_, err := c.api.InitializeModelPipeline(ctx, &api.InitializeModelPipelineRequest{})
	return fromStatus(err)
}

// Upload sends everything r yields, tagging each chunk with its offset so a
// duplicated or lost chunk is rejected rather than corrupting the buffer.
// It returns the number of bytes the server holds.
func (c *Client) Upload(ctx context.Context, r io.Reader) (uint64, error) {
	log := klog.FromContext(ctx)

	chunkSize := c.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	var offset uint64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			off := offset
			resp, uploadErr := c.api.UploadModelChunks(ctx, &api.UploadModelChunksRequest{Bytes: buf[:n], Offset: &off})
			if uploadErr != nil {
				return offset, fmt.Errorf("uploading chunk at offset %d: %w", offset, fromStatus(uploadErr))
			}
			offset = resp.BufferLength
			log.V(2).Info("uploaded chunk", "bytes", n, "bufferLength", resp.BufferLength, "declaredLength", resp.DeclaredLength)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("reading model: %w", err)
		}
	}
}

// Load replaces the server's model with the one r yields and compiles it.
func (c *Client) Load(ctx context.Context, r io.Reader) (*api.PlanToRunningModelResponse, error) {
	log := klog.FromContext(ctx)

	if err := c.Reset(ctx); err != nil {
		return nil, fmt.Errorf("resetting pipeline: %w", err)
	}
	n, err := c.Upload(ctx, r)
	if err != nil {
		return nil, err
	}
	parsed, err := c.Parse(ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := c.Compile(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("loaded model", "bytes", n, "layers", parsed.Layers, "modelID", compiled.ModelId)
	return compiled, nil
}

func (c *Client) Parse(ctx context.Context) (*api.ModelBytesToPlanResponse, error) {
	resp, err := c.api.ModelBytesToPlan(ctx, &api.ModelBytesToPlanRequest{})
	if err != nil {
		return nil, fmt.Errorf("parsing model: %w", fromStatus(err))
	}
	return resp, nil
}

func (c *Client) Compile(ctx context.Context) (*api.PlanToRunningModelResponse, error) {
	resp, err := c.api.PlanToRunningModel(ctx, &api.PlanToRunningModelRequest{})
	if err != nil {
		return nil, fmt.Errorf("compiling model: %w", fromStatus(err))
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	resp, err := c.api.Status(ctx, &api.StatusRequest{})
	return resp, fromStatus(err)
}

func (c *Client) ComputeI64(ctx context.Context, req *api.SubNNComputeI64Request) (*api.ComputeResponse, error) {
	resp, err := c.api.SubNNComputeI64(ctx, req)
	return resp, fromStatus(err)
}

func (c *Client) ComputeF32(ctx context.Context, req *api.SubNNComputeF32Request) (*api.ComputeResponse, error) {
	resp, err := c.api.SubNNComputeF32(ctx, req)
	return resp, fromStatus(err)
}

func (c *Client) WordEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.WordEmbeddings(ctx, &api.WordEmbeddingsRequest{Text: text})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Embeddings, nil
}

func (c *Client) Embed(ctx context.Context, req *api.EmbedRequest) ([][]float32, error) {
	resp, err := c.api.Embed(ctx, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Embeddings, nil
}

func (c *Client) Tokenize(ctx context.Context, text string) (*api.TokenizeResponse, error) {
	resp, err := c.api.Tokenize(ctx, &api.TokenizeRequest{Text: text})
	return resp, fromStatus(err)
}

// ForwardOptions controls how a forward pass is split into calls.
type ForwardOptions struct {
	// MaxLayers is the initial per-call layer limit; zero accepts the server's window.
	MaxLayers int

	// CallTimeout bounds each call; zero leaves calls bounded only by ctx.
	CallTimeout time.Duration
}

// Output is the result of a complete forward pass.
type Output struct {
	Data    []float32
	Shape   []uint64
	ModelID string

	// Calls is the number of successful compute calls the pass took.
	Calls int
}

// Forward runs token ids through the whole network. A call the server aborts
// for size or time is retried with half the layer limit. All calls must be
// served by the same compiled model.
func (c *Client) Forward(ctx context.Context, ids []int64, shape []uint64, opts ForwardOptions) (*Output, error) {
	log := klog.FromContext(ctx)

	st, err := c.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting pipeline status: %w", err)
	}
	if st.ModelId == "" {
		return nil, fmt.Errorf("%w: no running model", nnerrors.ErrState)
	}

	out := &Output{ModelID: st.ModelId}
	maxLayers := opts.MaxLayers
	layer := uint32(0)
	var input []float32
	for {
		callCtx := ctx
		cancel := func() {}
		if opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
		}
		var resp *api.ComputeResponse
		if out.Calls == 0 {
			resp, err = c.ComputeI64(callCtx, &api.SubNNComputeI64Request{LayerIndex: layer, Input: ids, Shape: shape, MaxLayers: uint32(maxLayers)})
		} else {
			resp, err = c.ComputeF32(callCtx, &api.SubNNComputeF32Request{LayerIndex: layer, Input: input, Shape: shape, MaxLayers: uint32(maxLayers)})
		}
		cancel()

		if err != nil {
			code := status.Code(err)
			if (code != codes.ResourceExhausted && code != codes.DeadlineExceeded) || ctx.Err() != nil {
				return nil, fmt.Errorf("computing from layer %d: %w", layer, err)
			}
			if maxLayers == 0 {
				maxLayers = int(st.Layers - layer)
			}
			if maxLayers <= 1 {
				return nil, fmt.Errorf("computing from layer %d with a single layer window: %w", layer, err)
			}
			maxLayers /= 2
			log.Info("compute call aborted, narrowing window", "layer", layer, "code", code, "maxLayers", maxLayers)
			continue
		}

		if resp.ModelId != out.ModelID {
			return nil, fmt.Errorf("%w: model changed from %q to %q during forward pass", nnerrors.ErrState, out.ModelID, resp.ModelId)
		}
		out.Calls++
		log.V(2).Info("computed window", "from", layer, "to", resp.NextLayer, "done", resp.Done)

		input, shape = resp.Output, resp.Shape
		if resp.Done {
			out.Data, out.Shape = input, shape
			return out, nil
		}
		if resp.NextLayer <= layer {
			return nil, fmt.Errorf("server made no progress at layer %d", layer)
		}
		layer = resp.NextLayer
	}
}
