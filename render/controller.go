// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"

	"go.uber.org/zap"
)

// State is the controller's position in the document and page lifecycle.
type State int

const (
	StateIdle State = iota
	StateDocumentLoading
	StateDocumentReady
	StatePageLoading
	StatePageReady
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDocumentLoading:
		return "DocumentLoading"
	case StateDocumentReady:
		return "DocumentReady"
	case StatePageLoading:
		return "PageLoading"
	case StatePageReady:
		return "PageReady"
	case StateCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// PageNavigator is told the page count of every document that loads.
type PageNavigator interface {
	SetPagesCount(n int)
}

// PageNavigatorFunc adapts a function to PageNavigator.
type PageNavigatorFunc func(n int)

func (f PageNavigatorFunc) SetPagesCount(n int) {
	f(n)
}

// View is a snapshot of the controller.
type View struct {
	State      State
	URL        string
	Page       int
	PagesCount int
	Loading    bool  // loading indicator shown until the first page of a document is visible
	Err        error // last load or render failure
	Frame      Frame // visible content
}

// Controller owns the displayed document and keeps the visible page in step
// with the latest inputs. Inputs may come from any goroutine.
type Controller struct {
	fetcher   Fetcher
	pipeline  *Pipeline
	navigator PageNavigator
	onChange  func(View)
	dpr       float64
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inputMu  sync.Mutex // serializes inputs
	renderMu sync.Mutex // serializes render starts

	mu       sync.Mutex
	state    State
	url      string
	doc      *Document
	loading  *LoadingTask
	docGen   uint64
	page     int
	size     Size
	pageGen  uint64
	err      error
	showBusy bool
	busy     int
	idle     chan struct{}
	closed   bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPipeline replaces the default pipeline.
func WithPipeline(p *Pipeline) ControllerOption {
	return func(c *Controller) {
		if p != nil {
			c.pipeline = p
		}
	}
}

// WithNavigator receives page counts.
func WithNavigator(n PageNavigator) ControllerOption {
	return func(c *Controller) {
		c.navigator = n
	}
}

// WithOnChange is called after every state change. fn runs on the
// goroutine that made the change and must not call the controller's inputs.
func WithOnChange(fn func(View)) ControllerOption {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithDevicePixelRatio sets the ratio used for every render.
func WithDevicePixelRatio(dpr float64) ControllerOption {
	return func(c *Controller) {
		c.dpr = NormalizeDPR(dpr)
	}
}

// WithLogger configures the logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates an idle controller loading documents from fetcher.
func NewController(fetcher Fetcher, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher:  fetcher,
		dpr:      1,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		page:     1,
		showBusy: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = NewPipeline(WithPipelineLogger(c.logger))
	}
	return c
}

// SetDocument replaces the displayed document. The load in flight and the
// render in flight are cancelled first. An empty url returns to Idle.
func (c *Controller) SetDocument(url string) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	c.renderMu.Lock()
	c.pipeline.Cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.renderMu.Unlock()
		return
	}
	c.docGen++
	c.pageGen++
	gen := c.docGen
	oldDoc, oldLoading := c.doc, c.loading
	c.doc, c.loading = nil, nil
	c.url = url
	c.err = nil

	if url == "" {
		c.state = StateIdle
		c.showBusy = true
	} else {
		c.state = StateDocumentLoading
		c.begin()
	}
	c.mu.Unlock()
	c.renderMu.Unlock()

	// The superseded load is cancelled and settled before its successor
	// starts fetching.
	if oldLoading != nil {
		oldLoading.Destroy()
		<-oldLoading.Done()
		c.notifyAs(StateCancelled)
	}
	if oldDoc != nil {
		oldDoc.Destroy()
	}
	if url == "" {
		c.pipeline.Clear()
		c.notify()
		return
	}

	task := LoadDocument(c.ctx, c.fetcher, url)
	c.mu.Lock()
	c.loading = task
	c.mu.Unlock()
	c.notify()

	c.wg.Add(1)
	go c.awaitDocument(gen, task)
}

func (c *Controller) awaitDocument(gen uint64, task *LoadingTask) {
	defer c.wg.Done()
	defer c.end()

	doc, err := task.Wait(c.ctx)

	c.mu.Lock()
	if gen != c.docGen || c.closed {
		c.mu.Unlock()
		if doc != nil {
			doc.Destroy()
		}
		return
	}
	c.loading = nil
	if err != nil {
		c.state = StateIdle
		if !errors.Is(err, context.Canceled) {
			c.err = err
			c.logger.Warn("Document load failed", zap.String("url", c.url), zap.Error(err))
		}
		c.mu.Unlock()
		c.notify()
		return
	}
	c.doc = doc
	c.state = StateDocumentReady
	c.page = clampPage(c.page, doc.NumPages())
	c.mu.Unlock()

	if c.navigator != nil {
		c.navigator.SetPagesCount(doc.NumPages())
	}
	c.notify()
	c.render()
}

// SetPage selects the page to display. Numbers outside the document are
// clamped.
func (c *Controller) SetPage(n int) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	c.mu.Lock()
	if c.doc != nil {
		n = clampPage(n, c.doc.NumPages())
	} else {
		n = max(n, 1)
	}
	changed := n != c.page
	c.page = n
	c.mu.Unlock()

	if changed {
		c.render()
	}
}

// Resize sets the container size.
func (c *Controller) Resize(size Size) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	c.mu.Lock()
	changed := size != c.size
	c.size = size
	c.mu.Unlock()

	if changed {
		c.render()
	}
}

// render starts rendering the current page. The pipeline cancels and awaits
// the previous render before the new one starts.
func (c *Controller) render() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if c.closed || c.doc == nil || c.size.Empty() {
		c.mu.Unlock()
		return
	}
	superseded := c.state == StatePageLoading
	c.pageGen++
	gen := c.pageGen
	doc, page, size := c.doc, c.page, c.size
	c.state = StatePageLoading
	c.begin()
	c.mu.Unlock()

	if superseded {
		c.notifyAs(StateCancelled)
	}
	c.notify()

	task := c.pipeline.Start(c.ctx, doc, page, size, c.dpr)
	c.wg.Add(1)
	go c.awaitPage(gen, task)
}

func (c *Controller) awaitPage(gen uint64, task *PageRenderTask) {
	defer c.wg.Done()
	defer c.end()

	err := task.Wait()

	c.mu.Lock()
	if gen != c.pageGen || c.closed {
		c.mu.Unlock()
		return
	}
	switch {
	case task.Cancelled():
		c.state = StateDocumentReady
	case err != nil:
		c.state = StateDocumentReady
		c.err = err
	default:
		c.state = StatePageReady
		c.showBusy = false
		c.err = nil
	}
	c.mu.Unlock()
	c.notify()
}

// begin and end track work in flight for Settle. Callers of begin hold c.mu.
func (c *Controller) begin() {
	if c.busy == 0 {
		c.idle = make(chan struct{})
	}
	c.busy++
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy--
	if c.busy == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// Settle waits until no document load or page render is in flight.
func (c *Controller) Settle(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.busy == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	v := View{
		State:   c.state,
		URL:     c.url,
		Page:    c.page,
		Loading: c.showBusy,
		Err:     c.err,
	}
	if c.doc != nil {
		v.PagesCount = c.doc.NumPages()
	}
	c.mu.Unlock()
	v.Frame = c.pipeline.Buffers().Visible()
	return v
}

// Image returns a copy of the visible surface, nil when nothing is shown.
func (c *Controller) Image() *image.RGBA {
	_, img := c.pipeline.Buffers().Snapshot()
	return img
}

// EncodePNG writes the visible surface as a PNG image.
func (c *Controller) EncodePNG(w io.Writer) error {
	return c.pipeline.EncodePNG(w)
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}

// notifyAs reports a transient state that is never stored.
func (c *Controller) notifyAs(state State) {
	if c.onChange != nil {
		v := c.Snapshot()
		v.State = state
		c.onChange(v)
	}
}

// Close cancels all work, destroys the document and waits for background
// goroutines.
func (c *Controller) Close() {
	c.inputMu.Lock()
	c.renderMu.Lock()
	c.pipeline.Cancel()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.renderMu.Unlock()
		c.inputMu.Unlock()
		return
	}
	c.closed = true
	doc, loading := c.doc, c.loading
	c.doc, c.loading = nil, nil
	c.mu.Unlock()
	c.renderMu.Unlock()
	c.inputMu.Unlock()

	if loading != nil {
		loading.Destroy()
	}
	if doc != nil {
		doc.Destroy()
	}
	c.cancel()
	// A navigator may still call SetPage; inputs are no-ops once closed.
	c.wg.Wait()
}

func clampPage(n, count int) int {
	if n < 1 || count < 1 {
		return 1
	}
	return min(n, count)
}
