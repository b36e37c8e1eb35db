// Package embedding maps text to vectors by running the compiled model from
// its embedding layer to the end of the network.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/tokenizer"
)

// Models provides the current model and the per-call budget; *pipeline.Pipeline implements it.
type Models interface {
	Model() (*engine.Model, error)
	Window(maxLayers int) engine.Window
}

type Pooling string

const (
	// PoolingNone returns one vector per token, concatenated in token order.
	PoolingNone Pooling = "none"
	PoolingMean Pooling = "mean"
	PoolingLast Pooling = "last"
)

type Options struct {
	Pooling   Pooling
	Normalize bool

	// Dimensions truncates each pooled vector; zero keeps them whole.
	Dimensions int
}

type Service struct {
	models    Models
	tokenizer tokenizer.Tokenizer

	// parallelism bounds the inputs Embed computes at once.
	parallelism int
}

func NewService(models Models, tok tokenizer.Tokenizer, parallelism int) *Service {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Service{models: models, tokenizer: tok, parallelism: parallelism}
}

// Tokenize returns the ids and display tokens of text.
func (s *Service) Tokenize(ctx context.Context, text string) ([]int64, []string, error) {
	ids, tokens, err := s.tokenizer.Tokenize(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tokenizing text: %v", nnerrors.ErrInvalidInput, err)
	}
	return ids, tokens, nil
}

// WordEmbeddings returns one vector per token of text, concatenated in token
// order. Text without tokens gives an empty result.
func (s *Service) WordEmbeddings(ctx context.Context, text string) ([]float32, error) {
	result, err := s.embed(ctx, s.models.Model, text)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []float32{}, nil
	}
	return result.Data, nil
}

// embed runs the forward pass for text on the model from current, returning
// nil when text has no tokens.
func (s *Service) embed(ctx context.Context, current func() (*engine.Model, error), text string) (*engine.Result, error) {
	log := klog.FromContext(ctx)

	ids, _, err := s.Tokenize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	m, err := current()
	if err != nil {
		return nil, err
	}
	start, ok := m.FirstEmbeddingLayer()
	if !ok {
		return nil, fmt.Errorf("%w: model %s has no embedding layer", nnerrors.ErrUnsupportedOp, m.ID())
	}

	window := s.models.Window(0)
	result, err := m.ComputeI64(ctx, start, ids, []uint64{1, uint64(len(ids))}, window)
	windows := 1
	for err == nil && !result.Done(m) {
		result, err = m.ComputeF32(ctx, result.NextLayer, result.Data, result.Shape, window)
		windows++
	}
	if err != nil {
		return nil, fmt.Errorf("embedding %d tokens: %w", len(ids), err)
	}
	log.V(2).Info("embedded text", "tokens", len(ids), "windows", windows, "shape", result.Shape)
	return result, nil
}

// Embed computes one pooled vector per input, several inputs at a time.
func (s *Service) Embed(ctx context.Context, inputs []string, opts Options) ([][]float32, error) {
	if opts.Pooling == "" {
		opts.Pooling = PoolingMean
	}

	// every input of the batch runs on the same model, even across a reload
	current := sync.OnceValues(s.models.Model)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	embeddings := make([][]float32, len(inputs))
	for i, text := range inputs {
		g.Go(func() error {
			result, err := s.embed(ctx, current, text)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			if result == nil {
				embeddings[i] = []float32{}
				return nil
			}
			v, err := pool(result, opts.Pooling)
			if err != nil {
				return err
			}
			if opts.Dimensions > 0 && opts.Dimensions < len(v) {
				v = v[:opts.Dimensions]
			}
			if opts.Normalize {
				if v, err = normalize(v); err != nil {
					return fmt.Errorf("input %d: %w", i, err)
				}
			}
			embeddings[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// pool reduces the per-token rows of r to a single vector.
func pool(r *engine.Result, p Pooling) ([]float32, error) {
	if p == PoolingNone {
		return r.Data, nil
	}
	if len(r.Shape) == 0 {
		return r.Data, nil
	}
	width := int(r.Shape[len(r.Shape)-1])
	if width == 0 {
		return []float32{}, nil
	}
	rows := len(r.Data) / width

	switch p {
	case PoolingLast:
		return append([]float32(nil), r.Data[(rows-1)*width:]...), nil
	case PoolingMean:
		out := make([]float32, width)
		for row := 0; row < rows; row++ {
			for i, v := range r.Data[row*width : (row+1)*width] {
				out[i] += v
			}
		}
		for i := range out {
			out[i] /= float32(rows)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown pooling %q", nnerrors.ErrInvalidInput, p)
	}
}

func normalize(vec []float32) ([]float32, error) {
	var sum float32
	for _, v := range vec {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, errors.New("embedding contains NaN or Inf values")
		}
		sum += v * v
	}

	norm := 1 / max(math32.Sqrt(sum), 1e-12)
	for i := range vec {
		vec[i] *= norm
	}
	return vec, nil
}
