// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"

	"github.com/buke/docrepl/document"
)

// Rasterizer paints a page into dst at vp. Implementations return
// ErrRenderCancelled once ctx is done.
type Rasterizer interface {
	Rasterize(ctx context.Context, page *document.Page, vp Viewport, dst *image.RGBA) error
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, page *document.Page, vp Viewport, dst *image.RGBA) error

func (f RasterizerFunc) Rasterize(ctx context.Context, page *document.Page, vp Viewport, dst *image.RGBA) error {
	return f(ctx, page, vp, dst)
}

// VectorRasterizer paints fills with anti-aliased paths and text with the
// document font set.
type VectorRasterizer struct {
	fonts *document.Fonts
}

// NewVectorRasterizer creates a rasterizer. A nil fonts uses a private set.
func NewVectorRasterizer(fonts *document.Fonts) *VectorRasterizer {
	if fonts == nil {
		fonts = document.NewFonts()
	}
	return &VectorRasterizer{fonts: fonts}
}

func (r *VectorRasterizer) Rasterize(ctx context.Context, page *document.Page, vp Viewport, dst *image.RGBA) error {
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	bounds := dst.Bounds()
	scale := float32(vp.Scale)
	for i, op := range page.Ops {
		if ctx.Err() != nil {
			return ErrRenderCancelled
		}
		switch op.Kind {
		case document.OpFill:
			if op.Color.A == 0 || op.W <= 0 || op.H <= 0 {
				continue
			}
			z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
			x0, y0 := float32(op.X)*scale, float32(op.Y)*scale
			x1, y1 := float32(op.X+op.W)*scale, float32(op.Y+op.H)*scale
			z.MoveTo(x0, y0)
			z.LineTo(x1, y0)
			z.LineTo(x1, y1)
			z.LineTo(x0, y1)
			z.ClosePath()
			z.DrawOp = draw.Over
			z.Draw(dst, bounds, image.NewUniform(op.Color.NRGBA()), image.Point{})

		case document.OpText:
			if op.Text == "" {
				continue
			}
			// Center the em box in the line box.
			y := op.Y + (op.H-op.FontSize)/2
			c := color.Color(op.Color.NRGBA())
			if err := r.fonts.Draw(dst, op.X*vp.Scale, y*vp.Scale, op.Text, op.FontSize*vp.Scale, c); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}

		default:
			return fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}
