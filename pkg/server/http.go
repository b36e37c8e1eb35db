package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	api "k8s.io/examples/AI/modelpipeline/api/v1alpha1"
	"k8s.io/examples/AI/modelpipeline/pkg/embedding"
	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/pipeline"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelpipeline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelpipeline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration)
}

// ComputeRequest is the HTTP form of SubNNComputeI64 and SubNNComputeF32.
type ComputeRequest struct {
	LayerIndex uint32          `json:"layer_index"`
	DType      string          `json:"dtype"`
	Input      json.RawMessage `json:"input"`
	Shape      []uint64        `json:"shape"`
	MaxLayers  uint32          `json:"max_layers,omitempty"`
}

// EmbedRequest accepts a single string or a list of strings as input.
type EmbedRequest struct {
	Input      any    `json:"input"`
	Pooling    string `json:"pooling,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// HTTPServer is a JSON gateway to the pipeline.
type HTTPServer struct {
	pipeline   *pipeline.Pipeline
	embeddings *embedding.Service

	// maxUploadBytes caps a single upload body.
	maxUploadBytes int64
}

// DefaultMaxUploadBytes is the upload body limit used when none is configured.
const DefaultMaxUploadBytes = 4 << 20

func NewHTTPServer(p *pipeline.Pipeline, embeddings *embedding.Service, maxUploadBytes int64) *HTTPServer {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &HTTPServer{pipeline: p, embeddings: embeddings, maxUploadBytes: maxUploadBytes}
}

func (s *HTTPServer) GenerateRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), metricsMiddleware)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/readyz", s.ReadyHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api/upload", s.UploadHandler)
	r.POST("/api/initialize", s.InitializeHandler)
	r.POST("/api/parse", s.ParseHandler)
	r.POST("/api/compile", s.CompileHandler)
	r.POST("/api/compute", s.ComputeHandler)
	r.POST("/api/embeddings", s.WordEmbeddingsHandler)
	r.POST("/api/embed", s.EmbedHandler)
	r.POST("/api/tokenize", s.TokenizeHandler)
	r.GET("/api/status", s.StatusHandler)
	return r
}

func metricsMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	httpRequestDuration.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
}

func abort(c *gin.Context, err error) {
	code := nnerrors.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		klog.FromContext(c.Request.Context()).Error(err, "request failed", "path", c.FullPath())
	}
	c.AbortWithStatusJSON(code, gin.H{"error": strings.TrimSpace(err.Error())})
}

func badRequest(c *gin.Context, err error) {
	if errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *HTTPServer) UploadHandler(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("chunk larger than %d bytes", s.maxUploadBytes)})
			return
		}
		badRequest(c, err)
		return
	}

	if v := c.Query("offset"); v != "" {
		offset, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			badRequest(c, fmt.Errorf("invalid offset %q", v))
			return
		}
		err = s.pipeline.UploadAt(ctx, offset, body)
	} else {
		err = s.pipeline.Upload(ctx, body)
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.UploadModelChunksResponse{
		BufferLength:   uint64(s.pipeline.BufferLength()),
		DeclaredLength: s.pipeline.DeclaredLength(),
	})
}

func (s *HTTPServer) InitializeHandler(c *gin.Context) {
	s.pipeline.Reset(c.Request.Context())
	c.JSON(http.StatusOK, api.InitializeModelPipelineResponse{})
}

func (s *HTTPServer) ParseHandler(c *gin.Context) {
	if err := s.pipeline.Parse(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ModelBytesToPlanResponse{Layers: uint32(s.pipeline.Status().Layers)})
}

func (s *HTTPServer) CompileHandler(c *gin.Context) {
	if err := s.pipeline.Compile(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	st := s.pipeline.Status()
	c.JSON(http.StatusOK, api.PlanToRunningModelResponse{
		ModelId:    st.ModelID,
		Layers:     uint32(st.Layers),
		Boundaries: toUint32s(st.Boundaries),
	})
}

func (s *HTTPServer) ComputeHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var result *engine.Result
	var err error
	switch req.DType {
	case "int64", "i64":
		var input []int64
		if err := json.Unmarshal(req.Input, &input); err != nil {
			badRequest(c, fmt.Errorf("input is not a list of integers: %w", err))
			return
		}
		result, err = s.pipeline.ComputeI64(ctx, int(req.LayerIndex), input, req.Shape, int(req.MaxLayers))
	case "", "float32", "f32":
		var input api.Floats
		if err := json.Unmarshal(req.Input, &input); err != nil {
			badRequest(c, fmt.Errorf("input is not a list of numbers: %w", err))
			return
		}
		result, err = s.pipeline.ComputeF32(ctx, int(req.LayerIndex), input, req.Shape, int(req.MaxLayers))
	default:
		badRequest(c, fmt.Errorf("unknown dtype %q", req.DType))
		return
	}
	if err != nil {
		abort(c, err)
		return
	}

	resp := api.ComputeResponse{
		Output:    result.Data,
		Shape:     result.Shape,
		NextLayer: uint32(result.NextLayer),
		ModelId:   result.ModelID,
	}
	if m, err := s.pipeline.Model(); err == nil && m.ID() == result.ModelID {
		resp.Done = result.Done(m)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) WordEmbeddingsHandler(c *gin.Context) {
	var req api.WordEmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	embeddings, err := s.embeddings.WordEmbeddings(c.Request.Context(), req.Text)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.WordEmbeddingsResponse{Embeddings: embeddings})
}

func (s *HTTPServer) EmbedHandler(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var input []string
	switch i := req.Input.(type) {
	case string:
		if len(i) > 0 {
			input = append(input, i)
		}
	case []any:
		for _, v := range i {
			if _, ok := v.(string); !ok {
				badRequest(c, errors.New("invalid input type"))
				return
			}
			input = append(input, v.(string))
		}
	default:
		if req.Input != nil {
			badRequest(c, errors.New("invalid input type"))
			return
		}
	}

	embeddings, err := s.embeddings.Embed(c.Request.Context(), input, embedding.Options{
		Pooling:    embedding.Pooling(req.Pooling),
		Normalize:  req.Normalize,
		Dimensions: req.Dimensions,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.EmbedResponse{Embeddings: embeddings})
}

func (s *HTTPServer) TokenizeHandler(c *gin.Context) {
	var req api.TokenizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ids, tokens, err := s.embeddings.Tokenize(c.Request.Context(), req.Text)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TokenizeResponse{Ids: ids, Tokens: tokens})
}

func (s *HTTPServer) StatusHandler(c *gin.Context) {
	st := s.pipeline.Status()
	c.JSON(http.StatusOK, api.StatusResponse{
		State:          st.State.String(),
		BufferLength:   uint64(st.BufferLength),
		DeclaredLength: st.DeclaredLength,
		Layers:         uint32(st.Layers),
		Boundaries:     toUint32s(st.Boundaries),
		ModelId:        st.ModelID,
	})
}

// ReadyHandler reports 200 once a model is compiled and serving.
func (s *HTTPServer) ReadyHandler(c *gin.Context) {
	if _, err := s.pipeline.Model(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, "ok")
}
