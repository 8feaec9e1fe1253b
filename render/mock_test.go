// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buke/docrepl/artifact"
	"github.com/buke/docrepl/document"
)

// pageColors gives each test page a distinct background.
var pageColors = []document.Color{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 255, A: 255},
	{G: 255, B: 255, A: 255},
}

// testDocument builds an A4 document whose pages are filled with pageColors.
func testDocument(pages int) *document.Document {
	doc := &document.Document{Producer: "test"}
	for i := 0; i < pages; i++ {
		doc.Pages = append(doc.Pages, document.Page{
			Width:  595.28,
			Height: 841.89,
			Ops: []document.Op{
				{Kind: document.OpFill, X: 0, Y: 0, W: 595.28, H: 841.89, Color: pageColors[i%len(pageColors)]},
			},
		})
	}
	return doc
}

// storeDocument encodes a test document into a fresh store.
func storeDocument(t *testing.T, pages int) (*artifact.Store, string) {
	t.Helper()
	data, err := document.Encode(testDocument(pages))
	require.NoError(t, err)
	store := artifact.NewStore(8)
	return store, store.Put(data, document.ContentType)
}

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// gatedRasterizer paints the page's first fill color over the whole
// surface. Pages listed in blocked wait for cancellation instead.
type gatedRasterizer struct {
	mu       sync.Mutex
	blocked  map[int]bool
	started  chan int
	rendered []int
}

func newGatedRasterizer(blocked ...int) *gatedRasterizer {
	r := &gatedRasterizer{blocked: make(map[int]bool), started: make(chan int, 64)}
	for _, p := range blocked {
		r.blocked[p] = true
	}
	return r
}

func (r *gatedRasterizer) Rasterize(ctx context.Context, page *document.Page, vp Viewport, dst *image.RGBA) error {
	n := pageNumberOf(page)
	select {
	case r.started <- n:
	default:
	}
	r.mu.Lock()
	blocked := r.blocked[n]
	r.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return ErrRenderCancelled
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(page.Ops[0].Color.NRGBA()), image.Point{}, draw.Src)
	r.mu.Lock()
	r.rendered = append(r.rendered, n)
	r.mu.Unlock()
	return nil
}

func (r *gatedRasterizer) unblock(page int) {
	r.mu.Lock()
	delete(r.blocked, page)
	r.mu.Unlock()
}

// pageNumberOf recovers the 1-based page number from the fill color.
func pageNumberOf(page *document.Page) int {
	for i, c := range pageColors {
		if page.Ops[0].Color == c {
			return i + 1
		}
	}
	return 0
}

// colorAt returns the pixel at the center of img.
func colorAt(img *image.RGBA) color.RGBA {
	b := img.Bounds()
	return img.RGBAAt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
}

// nrgbaAt returns the opaque pixel at the center of img.
func nrgbaAt(img *image.RGBA) color.NRGBA {
	c := colorAt(img)
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}
