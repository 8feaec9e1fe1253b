// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package render turns document artifacts into pixels. A Pipeline renders
// one page at a time into the standby half of a BufferPair and swaps it in
// when the render completes; a Controller drives the pipeline from document,
// page and size inputs that may change faster than renders finish.
package render

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/metrics"
)

// ErrRenderCancelled is returned by rasterizers whose render was superseded.
// The pipeline never reports it as a failure.
var ErrRenderCancelled = errors.New("rendering cancelled")

// ErrNothingRendered is returned by EncodePNG before the first swap.
var ErrNothingRendered = errors.New("nothing rendered")

// RenderError is a render failure unrelated to cancellation.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PageRenderTask is a page render in flight.
type PageRenderTask struct {
	Page int

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex // held while committing; excludes Cancel
	settled   bool
	cancelled bool
	err       error
}

// Cancel aborts the render. A render that has already been swapped in is
// unaffected.
func (t *PageRenderTask) Cancel() {
	t.mu.Lock()
	if !t.settled {
		t.cancelled = true
	}
	t.mu.Unlock()
	t.cancel()
}

// Wait blocks until the task settles. It returns nil when the render was
// swapped in or cancelled, and a *RenderError otherwise.
func (t *PageRenderTask) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task settles.
func (t *PageRenderTask) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the task was cancelled before it could swap.
func (t *PageRenderTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Pipeline renders pages into a BufferPair. At most one task is in flight.
type Pipeline struct {
	buffers    *BufferPair
	rasterizer Rasterizer
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current *PageRenderTask
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRasterizer replaces the vector rasterizer.
func WithRasterizer(r Rasterizer) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.rasterizer = r
		}
	}
}

// WithPipelineLogger configures the logger.
func WithPipelineLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPipelineMetrics records render outcomes.
func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline with an empty buffer pair.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		buffers: NewBufferPair(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rasterizer == nil {
		p.rasterizer = NewVectorRasterizer(nil)
	}
	return p
}

// Buffers returns the pipeline's buffer pair.
func (p *Pipeline) Buffers() *BufferPair {
	return p.buffers
}

// Start cancels the task in flight, waits for it to settle and then starts
// rendering pageNumber of doc to fit container.
func (p *Pipeline) Start(ctx context.Context, doc *Document, pageNumber int, container Size, dpr float64) *PageRenderTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCurrent()

	ctx, cancel := context.WithCancel(ctx)
	t := &PageRenderTask{Page: pageNumber, cancel: cancel, done: make(chan struct{})}
	p.current = t
	go p.run(ctx, t, doc, container, dpr)
	return t
}

// Cancel cancels the task in flight and waits for it to settle.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCurrent()
}

// Clear cancels the task in flight and drops the displayed content.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCurrent()
	p.buffers.Clear()
}

func (p *Pipeline) cancelCurrent() {
	if p.current == nil {
		return
	}
	p.current.Cancel()
	<-p.current.done
	p.current = nil
}

func (p *Pipeline) run(ctx context.Context, t *PageRenderTask, doc *Document, container Size, dpr float64) {
	defer t.cancel()
	defer close(t.done)
	start := time.Now()

	err := p.render(ctx, t, doc, container, dpr)

	outcome := "ok"
	t.mu.Lock()
	switch {
	case t.cancelled, errors.Is(err, ErrRenderCancelled), errors.Is(err, context.Canceled):
		t.cancelled = true
		outcome = "cancelled"
		p.logger.Debug("Render cancelled", zap.Int("page", t.Page))
	case err != nil:
		t.err = &RenderError{Page: t.Page, Err: err}
		outcome = "error"
		p.logger.Warn("Render failed", zap.Int("page", t.Page), zap.Error(err))
	default:
		// Swap under the task lock so a concurrent Cancel either wins
		// before the swap or observes a finished task.
		p.buffers.Swap()
	}
	t.settled = true
	t.mu.Unlock()
	p.metrics.RecordRender(outcome, time.Since(start))
}

func (p *Pipeline) render(ctx context.Context, t *PageRenderTask, doc *Document, container Size, dpr float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in rasterizer: %v", r)
		}
	}()

	page, err := doc.Page(ctx, t.Page)
	if err != nil {
		return err
	}
	vp, err := FitViewport(page.Width, page.Height, container, dpr)
	if err != nil {
		return err
	}

	standby := p.buffers.Standby()
	standby.Resize(vp.Pixels())
	standby.frame = Frame{}
	if err := p.rasterizer.Rasterize(ctx, page, vp, standby.Image()); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrRenderCancelled
	}
	standby.frame = Frame{Page: t.Page, Viewport: vp}
	return nil
}

// EncodePNG writes the visible surface as a PNG image.
func (p *Pipeline) EncodePNG(w io.Writer) error {
	_, img := p.buffers.Snapshot()
	if img == nil {
		return ErrNothingRendered
	}
	return png.Encode(w, img)
}
