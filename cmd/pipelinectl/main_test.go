package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	api "k8s.io/examples/AI/modelpipeline/api/v1alpha1"
	"k8s.io/examples/AI/modelpipeline/pkg/client"
	"k8s.io/examples/AI/modelpipeline/pkg/embedding"
	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/engine/enginetests"
	"k8s.io/examples/AI/modelpipeline/pkg/pipeline"
	"k8s.io/examples/AI/modelpipeline/pkg/server"
	"k8s.io/examples/AI/modelpipeline/pkg/tokenizer/idlist"
)

func bufconnDialer(t *testing.T) func(o *options) (*client.Client, func(), error) {
	t.Helper()

	p := pipeline.New(engine.Window{})
	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.LoggingInterceptor))
	server.NewPipelineServer(p, embedding.NewService(p, idlist.New(), 1)).Register(grpcServer)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	return func(o *options) (*client.Client, func(), error) {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		return client.New(conn), func() { conn.Close() }, nil
	}
}

func execute(t *testing.T, connect func(o *options) (*client.Client, func(), error), args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(connect)
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadAndForward(t *testing.T) {
	connect := bufconnDialer(t)
	modelPath := filepath.Join(t.TempDir(), "encoder.bin")
	require.NoError(t, os.WriteFile(modelPath, enginetests.Encode(t, enginetests.Encoder()), 0o644))

	out, err := execute(t, connect, "load", modelPath, "--chunk-size", "100")
	require.NoError(t, err)
	var compiled api.PlanToRunningModelResponse
	require.NoError(t, json.Unmarshal([]byte(out), &compiled))
	assert.Equal(t, uint32(10), compiled.Layers)

	out, err = execute(t, connect, "status")
	require.NoError(t, err)
	var st api.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "Ready", st.State)
	assert.Equal(t, compiled.ModelId, st.ModelId)

	out, err = execute(t, connect, "forward", "[1, 5, 9, 2]", "--max-layers", "1")
	require.NoError(t, err)
	var result client.Output
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []uint64{1, 4, enginetests.EncoderWidth}, result.Shape)
	assert.Equal(t, len(enginetests.EncoderBoundaries), result.Calls)

	out, err = execute(t, connect, "compute", "--input", "[3]", "--shape", "[1, 1]", "--max-layers", "1")
	require.NoError(t, err)
	var window api.ComputeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &window))
	assert.Equal(t, uint32(1), window.NextLayer)
	assert.False(t, window.Done)

	_, err = execute(t, connect, "compute", "--dtype", "bf16", "--input", "[3]", "--shape", "[1]")
	assert.ErrorContains(t, err, "unknown dtype")
}

func TestStagedUpload(t *testing.T) {
	connect := bufconnDialer(t)
	modelPath := filepath.Join(t.TempDir(), "two.bin")
	buf := enginetests.Encode(t, enginetests.TwoLayer())
	require.NoError(t, os.WriteFile(modelPath, buf, 0o644))

	out, err := execute(t, connect, "upload", modelPath, "--chunk-size", "7")
	require.NoError(t, err)
	assert.Contains(t, out, `"buffer_length"`)

	_, err = execute(t, connect, "parse")
	require.NoError(t, err)
	_, err = execute(t, connect, "compile")
	require.NoError(t, err)

	out, err = execute(t, connect, "embed", "--per-token", "2")
	require.NoError(t, err)
	var embeddings api.WordEmbeddingsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &embeddings))
	assert.Equal(t, enginetests.EmbeddingRow(2), embeddings.Embeddings)

	out, err = execute(t, connect, "tokenize", "4 2")
	require.NoError(t, err)
	assert.Contains(t, out, `"ids"`)

	require.NoError(t, func() error { _, err := execute(t, connect, "reset"); return err }())
	_, err = execute(t, connect, "compile")
	assert.ErrorContains(t, err, "invalid pipeline state")
}

func TestBlobHash(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	out, err := execute(t, nil, "blob", "hash", p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), "got %q", out)
}

func TestParseBucket(t *testing.T) {
	store, err := parseBucket("gs://models/team/")
	require.NoError(t, err)
	assert.Equal(t, "models", store.Bucket)
	assert.Equal(t, "team", store.Prefix)

	for _, bad := range []string{"models", "gs://", "s3://models"} {
		_, err := parseBucket(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseLists(t *testing.T) {
	ints, err := parseInts("[1, 2 3]")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ints)

	floats, err := parseFloats("0.5,-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, floats)

	shape, err := parseShape("[]")
	require.NoError(t, err)
	assert.Empty(t, shape)

	_, err = parseShape("[-1]")
	assert.Error(t, err)
}
