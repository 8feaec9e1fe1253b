// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/buke/docrepl/document"
)

// ErrDocumentDestroyed is returned by pages of a destroyed document.
var ErrDocumentDestroyed = errors.New("document destroyed")

// Fetcher resolves an artifact reference. *artifact.Store is a Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Document is a loaded artifact. It must be destroyed when superseded.
type Document struct {
	url   string
	pages int

	mu  sync.Mutex
	doc *document.Document // nil once destroyed
}

// NewDocument wraps a decoded artifact.
func NewDocument(url string, doc *document.Document) *Document {
	return &Document{url: url, pages: len(doc.Pages), doc: doc}
}

// URL returns the reference the document was loaded from.
func (d *Document) URL() string {
	return d.url
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return d.pages
}

// Page returns the page numbered n, starting at 1.
func (d *Document) Page(ctx context.Context, n int) (*document.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrDocumentDestroyed
	}
	if n < 1 || n > len(d.doc.Pages) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, len(d.doc.Pages))
	}
	return &d.doc.Pages[n-1], nil
}

// Destroy releases the decoded pages.
func (d *Document) Destroy() {
	d.mu.Lock()
	d.doc = nil
	d.mu.Unlock()
}

// LoadingTask is an in-flight document load.
type LoadingTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	doc       *Document
	err       error
	destroyed bool
}

// LoadDocument starts fetching and decoding url.
func LoadDocument(ctx context.Context, fetcher Fetcher, url string) *LoadingTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &LoadingTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		doc, err := load(ctx, fetcher, url)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.destroyed && doc != nil {
			// Nobody will take ownership of a late result.
			doc.Destroy()
			doc, err = nil, context.Canceled
		}
		t.doc, t.err = doc, err
	}()
	return t
}

func load(ctx context.Context, fetcher Fetcher, url string) (*Document, error) {
	data, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := document.Decode(data)
	if err != nil {
		return nil, err
	}
	return NewDocument(url, doc), nil
}

// Wait returns the loaded document once the task settles.
func (t *LoadingTask) Wait(ctx context.Context) (*Document, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc, t.err
}

// Done is closed once the load settles.
func (t *LoadingTask) Done() <-chan struct{} {
	return t.done
}

// Destroy aborts the load. A document that was already loaded is
// destroyed too.
func (t *LoadingTask) Destroy() {
	t.mu.Lock()
	t.destroyed = true
	if t.doc != nil {
		t.doc.Destroy()
		t.doc, t.err = nil, context.Canceled
	}
	t.mu.Unlock()
	t.cancel()
}
