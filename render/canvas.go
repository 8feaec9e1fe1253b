// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"image"
	"sync"
)

// Frame describes the content of a surface.
type Frame struct {
	Page     int // 1-based, 0 when the surface holds nothing
	Viewport Viewport
}

// Surface is one raster buffer.
type Surface struct {
	img   *image.RGBA
	frame Frame
}

// Resize reallocates the backing image when its dimensions differ from
// width x height and reports whether it did.
func (s *Surface) Resize(width, height int) bool {
	if s.img != nil && s.img.Rect.Dx() == width && s.img.Rect.Dy() == height {
		return false
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return true
}

// Image returns the backing image, nil before the first Resize.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// BufferPair holds the visible surface and the standby surface that renders
// are written to. Only the pipeline mutates it.
type BufferPair struct {
	mu       sync.RWMutex
	surfaces [2]*Surface
	phase    bool // false: surfaces[0] visible
	swaps    int
}

// NewBufferPair creates an empty pair.
func NewBufferPair() *BufferPair {
	return &BufferPair{surfaces: [2]*Surface{{}, {}}}
}

func (b *BufferPair) index(visible bool) int {
	if b.phase == visible {
		return 1
	}
	return 0
}

// Standby returns the surface that is not visible.
func (b *BufferPair) Standby() *Surface {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.surfaces[b.index(false)]
}

// Swap makes the standby surface visible.
func (b *BufferPair) Swap() {
	b.mu.Lock()
	b.phase = !b.phase
	b.swaps++
	b.mu.Unlock()
}

// Swaps returns the number of swaps since creation.
func (b *BufferPair) Swaps() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.swaps
}

// Visible returns the frame on the visible surface.
func (b *BufferPair) Visible() Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.surfaces[b.index(true)].frame
}

// Snapshot copies the visible surface. The image is nil when nothing has
// been rendered.
func (b *BufferPair) Snapshot() (Frame, *image.RGBA) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.surfaces[b.index(true)]
	if s.img == nil || s.frame.Page == 0 {
		return s.frame, nil
	}
	img := image.NewRGBA(s.img.Rect)
	copy(img.Pix, s.img.Pix)
	return s.frame, img
}

// Clear drops the content of both surfaces.
func (b *BufferPair) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.surfaces {
		s.img = nil
		s.frame = Frame{}
	}
}
