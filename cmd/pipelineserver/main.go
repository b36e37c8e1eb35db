package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/blobs"
	"k8s.io/examples/AI/modelpipeline/pkg/config"
	"k8s.io/examples/AI/modelpipeline/pkg/embedding"
	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/pipeline"
	"k8s.io/examples/AI/modelpipeline/pkg/server"
	"k8s.io/examples/AI/modelpipeline/pkg/tokenizer"
	"k8s.io/examples/AI/modelpipeline/pkg/tokenizer/idlist"
	"k8s.io/examples/AI/modelpipeline/pkg/tokenizer/vocab"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

func envOr(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

func run(ctx context.Context) error {
	cfg := config.Config{
		GRPCListen:      envOr("GRPC_LISTEN", ":9876"),
		HTTPListen:      envOr("HTTP_LISTEN", ":8080"),
		MaxMessageBytes: envInt("MAX_MESSAGE_BYTES", 64<<20),
		MaxUploadBytes:  int64(envInt("MAX_UPLOAD_BYTES", server.DefaultMaxUploadBytes)),
		Model:           os.Getenv("MODEL"),
		CacheDir:        os.Getenv("CACHE_DIR"),
		Window: config.WindowConfig{
			MaxCost:   int64(envInt("WINDOW_MAX_COST", 0)),
			MaxLayers: envInt("WINDOW_MAX_LAYERS", 0),
		},
		Tokenizer: config.TokenizerConfig{
			Kind:      envOr("TOKENIZER", "idlist"),
			VocabPath: os.Getenv("VOCAB_PATH"),
		},
		Embedding: config.EmbeddingConfig{Parallelism: envInt("EMBED_PARALLELISM", 4)},
	}

	configPath := os.Getenv("CONFIG")
	flag.StringVar(&configPath, "config", configPath, "config file (.yaml, .json or .toml); flags override it")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", cfg.GRPCListen, "gRPC listen address")
	flag.StringVar(&cfg.HTTPListen, "http-listen", cfg.HTTPListen, "HTTP listen address, empty to disable")
	flag.IntVar(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "largest gRPC message accepted")
	flag.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "largest HTTP upload body accepted")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "model to load at startup: path, gs://bucket/<hash> or http://blobserver/<hash>")
	flag.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for downloaded models")
	flag.Int64Var(&cfg.Window.MaxCost, "window-max-cost", cfg.Window.MaxCost, "compute budget of one call, 0 for unbounded")
	flag.IntVar(&cfg.Window.MaxLayers, "window-max-layers", cfg.Window.MaxLayers, "layers run by one call, 0 for unbounded")
	flag.StringVar(&cfg.Tokenizer.Kind, "tokenizer", cfg.Tokenizer.Kind, "tokenizer: idlist or vocab")
	flag.StringVar(&cfg.Tokenizer.VocabPath, "vocab", cfg.Tokenizer.VocabPath, "vocab.json for the vocab tokenizer")
	flag.IntVar(&cfg.Embedding.Parallelism, "embed-parallelism", cfg.Embedding.Parallelism, "inputs embedded concurrently")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	if configPath != "" {
		fileConfig, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		cfg = merge(cfg, fileConfig, set)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tok, err := newTokenizer(cfg.Tokenizer)
	if err != nil {
		return err
	}

	p := pipeline.New(engine.Window{MaxCost: cfg.Window.MaxCost, MaxLayers: cfg.Window.MaxLayers})
	embeddings := embedding.NewService(p, tok, cfg.Embedding.Parallelism)

	if cfg.Model != "" {
		if err := loadModel(ctx, p, cfg.Model, cfg.CacheDir); err != nil {
			return fmt.Errorf("loading model %q: %w", cfg.Model, err)
		}
	}

	lis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.GRPCListen, err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.LoggingInterceptor),
		grpc.MaxRecvMsgSize(cfg.MaxMessageBytes),
		grpc.MaxSendMsgSize(cfg.MaxMessageBytes),
	)
	server.NewPipelineServer(p, embeddings).Register(grpcServer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting pipelineserver", "listen", cfg.GRPCListen)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("serving GRPC: %w", err)
		}
		return nil
	})

	var httpServer *http.Server
	if cfg.HTTPListen != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPListen,
			Handler:           server.NewHTTPServer(p, embeddings, cfg.MaxUploadBytes).GenerateRoutes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("Starting HTTP gateway", "listen", cfg.HTTPListen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving HTTP on %q: %w", cfg.HTTPListen, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// merge takes file settings for every flag the command line left alone.
func merge(cfg, file config.Config, set map[string]bool) config.Config {
	str := func(dst *string, v, name string) {
		if v != "" && !set[name] {
			*dst = v
		}
	}
	num := func(dst *int, v int, name string) {
		if v != 0 && !set[name] {
			*dst = v
		}
	}
	num64 := func(dst *int64, v int64, name string) {
		if v != 0 && !set[name] {
			*dst = v
		}
	}

	str(&cfg.GRPCListen, file.GRPCListen, "grpc-listen")
	str(&cfg.HTTPListen, file.HTTPListen, "http-listen")
	num(&cfg.MaxMessageBytes, file.MaxMessageBytes, "max-message-bytes")
	num64(&cfg.MaxUploadBytes, file.MaxUploadBytes, "max-upload-bytes")
	str(&cfg.Model, file.Model, "model")
	str(&cfg.CacheDir, file.CacheDir, "cache-dir")
	num64(&cfg.Window.MaxCost, file.Window.MaxCost, "window-max-cost")
	num(&cfg.Window.MaxLayers, file.Window.MaxLayers, "window-max-layers")
	str(&cfg.Tokenizer.Kind, file.Tokenizer.Kind, "tokenizer")
	str(&cfg.Tokenizer.VocabPath, file.Tokenizer.VocabPath, "vocab")
	num(&cfg.Embedding.Parallelism, file.Embedding.Parallelism, "embed-parallelism")
	// no flags for these
	if file.Tokenizer.UnknownToken != "" {
		cfg.Tokenizer.UnknownToken = file.Tokenizer.UnknownToken
	}
	if file.Tokenizer.MaxTokens != 0 {
		cfg.Tokenizer.MaxTokens = file.Tokenizer.MaxTokens
	}
	return cfg
}

func newTokenizer(cfg config.TokenizerConfig) (tokenizer.Tokenizer, error) {
	switch cfg.Kind {
	case "", "idlist":
		return idlist.New(), nil
	case "vocab":
		tok, err := vocab.NewTokenizer(cfg.VocabPath, vocab.Options{UnknownToken: cfg.UnknownToken, MaxTokens: cfg.MaxTokens})
		if err != nil {
			return nil, fmt.Errorf("loading vocab tokenizer: %w", err)
		}
		return tok, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", cfg.Kind)
	}
}

// loadModel runs the upload, parse and compile stages for a model fetched from ref.
func loadModel(ctx context.Context, p *pipeline.Pipeline, ref, cacheDir string) error {
	log := klog.FromContext(ctx)

	localPath, err := blobs.Fetch(ctx, ref, cacheDir)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading model: %w", err)
	}

	p.Reset(ctx)
	if err := p.Upload(ctx, b); err != nil {
		return err
	}
	if err := p.Parse(ctx); err != nil {
		return err
	}
	if err := p.Compile(ctx); err != nil {
		return err
	}
	st := p.Status()
	log.Info("model ready", "path", localPath, "layers", st.Layers, "modelID", st.ModelID)
	return nil
}
