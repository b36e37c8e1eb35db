package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/blobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	listen := ":8080"
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		// We expect CACHE_DIR to be set when running on kubernetes, but default sensibly for local dev
		cacheDir = "~/.cache/model-store/blobs"
	}
	cacheBucket := os.Getenv("CACHE_BUCKET")
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.StringVar(&cacheDir, "cache-dir", cacheDir, "cache directory")
	flag.StringVar(&cacheBucket, "bucket", cacheBucket, "GCS bucket models are read from, gs://<bucketName>[/prefix] (CACHE_BUCKET)")
	klog.InitFlags(nil)
	flag.Parse()

	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	if !strings.HasPrefix(cacheBucket, "gs://") {
		return fmt.Errorf("must specify CACHE_BUCKET as a GCS bucket URL (gs://<bucketName>)")
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(cacheBucket, "gs://"), "/")
	log.Info("using GCS cache", "bucket", bucket, "prefix", prefix)

	cache := newBlobCache(cacheDir, &blobs.GCSBlobstore{Bucket: bucket, Prefix: strings.TrimSuffix(prefix, "/")})

	srv := &http.Server{
		Addr:              listen,
		Handler:           routes(cache),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving", "listen", listen, "cacheDir", cacheDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving on %q: %w", listen, err)
	}
	return nil
}

func routes(cache *blobCache) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/blobs/:hash", cache.serveBlob)
	r.HEAD("/blobs/:hash", cache.serveBlob)
	return r
}

func (c *blobCache) serveBlob(ctx *gin.Context) {
	log := klog.FromContext(ctx.Request.Context())

	info := blobs.BlobInfo{Hash: ctx.Param("hash")}
	if !info.Verifiable() {
		ctx.String(http.StatusBadRequest, "blob name must be a hex sha256")
		return
	}

	p, err := c.GetBlob(ctx.Request.Context(), info)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ctx.String(http.StatusNotFound, "not found")
			return
		}
		log.Error(err, "error getting blob", "hash", info.Hash)
		ctx.String(http.StatusInternalServerError, "internal server error")
		return
	}

	log.V(2).Info("serving blob", "path", p)
	ctx.File(p)
}
