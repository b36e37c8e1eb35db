// Package pipeline holds the single model a process serves and walks it
// through upload, parse and compile before serving inference.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/engine"
	"k8s.io/examples/AI/modelpipeline/pkg/modelformat"
	"k8s.io/examples/AI/modelpipeline/pkg/nnerrors"
	"k8s.io/examples/AI/modelpipeline/pkg/plan"
	"k8s.io/examples/AI/modelpipeline/pkg/tensor"
)

type State int32

const (
	Empty State = iota
	Uploading
	Parsed
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Uploading:
		return "Uploading"
	case Parsed:
		return "Parsed"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Pipeline owns the model buffer, the parsed plan and the compiled model.
//
// Upload, Parse, Compile and Reset are serialized. Compute calls read an
// immutable model snapshot and may run concurrently with each other and with
// any mutation.
type Pipeline struct {
	mu     sync.Mutex
	state  State
	buffer []byte
	plan   *plan.Plan

	model atomic.Pointer[engine.Model]

	// window is the per-call budget of the host.
	window engine.Window
}

// New returns an empty pipeline whose compute calls never exceed window.
func New(window engine.Window) *Pipeline {
	recordState(Empty)
	return &Pipeline{window: window}
}

func (p *Pipeline) setState(s State) {
	p.state = s
	recordState(s)
}

// Reset discards the buffer, plan and model from any state.
func (p *Pipeline) Reset(ctx context.Context) {
	log := klog.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	log.Info("resetting model pipeline", "from", p.state)
	p.buffer = nil
	p.plan = nil
	p.model.Store(nil)
	p.setState(Empty)
	observe("reset", nil)
}

// Upload appends chunk to the model buffer.
func (p *Pipeline) Upload(ctx context.Context, chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.append(ctx, -1, chunk)
	observe("upload", err)
	return err
}

// UploadAt appends chunk, which must start at offset: the number of bytes
// received so far. Re-sending the chunk that ends the buffer is accepted and
// changes nothing, so a caller may retry a chunk whose acknowledgement it lost.
func (p *Pipeline) UploadAt(ctx context.Context, offset uint64, chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.append(ctx, int64(offset), chunk)
	observe("upload", err)
	return err
}

func (p *Pipeline) append(ctx context.Context, offset int64, chunk []byte) error {
	log := klog.FromContext(ctx)

	if p.state != Empty && p.state != Uploading {
		return fmt.Errorf("%w: cannot upload while %s, reinitialize first", nnerrors.ErrState, p.state)
	}

	have := int64(len(p.buffer))
	if offset >= 0 && offset != have {
		end := offset + int64(len(chunk))
		if offset < have && end == have && bytes.Equal(p.buffer[offset:], chunk) {
			log.V(2).Info("ignoring repeated chunk", "offset", offset, "length", len(chunk))
			return nil
		}
		return fmt.Errorf("%w: chunk starts at %d, have %d bytes", nnerrors.ErrChunkOrder, offset, have)
	}

	p.buffer = append(p.buffer, chunk...)
	uploadedBytesTotal.Add(float64(len(chunk)))
	if p.state == Empty {
		p.setState(Uploading)
	}
	log.V(2).Info("appended chunk", "length", len(chunk), "total", len(p.buffer))
	return nil
}

// BufferLength returns the number of bytes received so far.
func (p *Pipeline) BufferLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// DeclaredLength returns the total length named in the container header, or 0
// until the header has arrived.
func (p *Pipeline) DeclaredLength() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.declaredLength()
}

func (p *Pipeline) declaredLength() uint64 {
	h, err := modelformat.DecodeHeader(p.buffer)
	if err != nil {
		return 0
	}
	return h.TotalLength
}

// Parse decodes the buffer into a plan. On failure the buffer is kept so the
// caller can send the missing bytes and try again.
func (p *Pipeline) Parse(ctx context.Context) error {
	log := klog.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	err := func() error {
		if p.state != Uploading {
			return fmt.Errorf("%w: cannot parse while %s", nnerrors.ErrState, p.state)
		}
		parsed, err := plan.Parse(p.buffer)
		if err != nil {
			return err
		}
		log.Info("parsed model", "layers", len(parsed.Layers), "bytes", len(p.buffer))
		p.plan = parsed
		p.buffer = nil
		p.setState(Parsed)
		return nil
	}()
	observe("parse", err)
	return err
}

// Compile builds the running model from the plan. On failure the plan is kept.
func (p *Pipeline) Compile(ctx context.Context) error {
	log := klog.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	err := func() error {
		if p.state != Parsed {
			return fmt.Errorf("%w: cannot compile while %s", nnerrors.ErrState, p.state)
		}
		m, err := engine.Compile(p.plan)
		if err != nil {
			return err
		}
		log.Info("compiled model", "id", m.ID(), "layers", m.NumLayers(), "boundaries", len(m.Boundaries()))
		p.model.Store(m)
		p.plan = nil
		p.setState(Ready)
		return nil
	}()
	observe("compile", err)
	return err
}

// Model returns the compiled model, or ErrState until the pipeline is ready.
func (p *Pipeline) Model() (*engine.Model, error) {
	m := p.model.Load()
	if m == nil {
		return nil, fmt.Errorf("%w: no model is ready", nnerrors.ErrState)
	}
	return m, nil
}

// Window returns the budget of a call asking for at most maxLayers layers.
func (p *Pipeline) Window(maxLayers int) engine.Window {
	w := p.window
	if maxLayers > 0 && (w.MaxLayers == 0 || maxLayers < w.MaxLayers) {
		w.MaxLayers = maxLayers
	}
	return w
}

func (p *Pipeline) ComputeI64(ctx context.Context, start int, data []int64, shape []uint64, maxLayers int) (*engine.Result, error) {
	x, err := tensor.NewI64(data, shape)
	if err != nil {
		return nil, err
	}
	return p.Compute(ctx, start, x, maxLayers)
}

func (p *Pipeline) ComputeF32(ctx context.Context, start int, data []float32, shape []uint64, maxLayers int) (*engine.Result, error) {
	x, err := tensor.NewF32(data, shape)
	if err != nil {
		return nil, err
	}
	return p.Compute(ctx, start, x, maxLayers)
}

// Compute runs one window of the forward pass against the current model.
func (p *Pipeline) Compute(ctx context.Context, start int, x *tensor.Tensor, maxLayers int) (*engine.Result, error) {
	m, err := p.Model()
	if err != nil {
		return nil, err
	}

	began := time.Now()
	result, err := m.Compute(ctx, start, x, p.Window(maxLayers))
	observe("compute", err)
	if err != nil {
		return nil, err
	}
	computeDuration.WithLabelValues(x.DType.String()).Observe(time.Since(began).Seconds())
	windowLayers.Observe(float64(result.NextLayer - start))
	return result, nil
}

// Status is a snapshot of the pipeline.
type Status struct {
	State          State
	BufferLength   int
	DeclaredLength uint64
	Layers         int
	Boundaries     []int
	ModelID        string
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		State:          p.state,
		BufferLength:   len(p.buffer),
		DeclaredLength: p.declaredLength(),
	}
	switch {
	case p.plan != nil:
		s.Layers = len(p.plan.Layers)
	case p.model.Load() != nil:
		m := p.model.Load()
		s.Layers = m.NumLayers()
		s.Boundaries = m.Boundaries()
		s.ModelID = m.ID()
	}
	return s
}
