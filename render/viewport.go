// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"math"
)

// Size is a container size in CSS pixels.
type Size struct {
	Width  float64
	Height float64
}

// Empty reports whether s has no area.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Viewport maps page points to device pixels. Width and Height are the
// scaled page dimensions.
type Viewport struct {
	Width            float64
	Height           float64
	Scale            float64
	DevicePixelRatio float64
}

// Pixels returns the backing surface dimensions for v.
func (v Viewport) Pixels() (int, int) {
	w := int(math.Floor(v.Width))
	h := int(math.Floor(v.Height))
	return max(w, 1), max(h, 1)
}

// NormalizeDPR truncates a device pixel ratio to a whole number of at
// least one.
func NormalizeDPR(dpr float64) float64 {
	if math.IsNaN(dpr) || dpr < 1 {
		return 1
	}
	return math.Floor(dpr)
}

func pageViewport(pageWidth, pageHeight, scale, dpr float64) Viewport {
	return Viewport{
		Width:            pageWidth * scale,
		Height:           pageHeight * scale,
		Scale:            scale,
		DevicePixelRatio: dpr,
	}
}

// FitViewport scales a page to fit container. The intrinsic viewport is
// taken at 1/dpr so the result fills the container in device pixels.
func FitViewport(pageWidth, pageHeight float64, container Size, dpr float64) (Viewport, error) {
	if pageWidth <= 0 || pageHeight <= 0 {
		return Viewport{}, fmt.Errorf("invalid page size %gx%g", pageWidth, pageHeight)
	}
	if container.Empty() {
		return Viewport{}, fmt.Errorf("invalid container size %gx%g", container.Width, container.Height)
	}
	dpr = NormalizeDPR(dpr)

	intrinsic := pageViewport(pageWidth, pageHeight, 1/dpr, dpr)
	scale := math.Min(container.Height/intrinsic.Height, container.Width/intrinsic.Width)
	return pageViewport(pageWidth, pageHeight, scale, dpr), nil
}
