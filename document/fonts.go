// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// maxFaces bounds the per-size face cache of a Fonts instance.
const maxFaces = 64

var regularFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Fonts measures and draws text with the built-in regular face. Faces are
// cached per size; a Fonts value is safe for concurrent use.
type Fonts struct {
	mu    sync.Mutex
	faces map[float64]font.Face
}

// NewFonts creates an empty font cache.
func NewFonts() *Fonts {
	return &Fonts{faces: make(map[float64]font.Face)}
}

// face returns a cached face for size. Callers hold f.mu.
func (f *Fonts) face(size float64) (font.Face, error) {
	// Quarter-point buckets keep the cache small under fractional scales.
	size = math.Max(1, math.Round(size*4)/4)
	if face, ok := f.faces[size]; ok {
		return face, nil
	}
	parsed, err := regularFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %.2fpt face: %w", size, err)
	}
	if len(f.faces) >= maxFaces {
		for key, old := range f.faces {
			old.Close()
			delete(f.faces, key)
		}
	}
	f.faces[size] = face
	return face, nil
}

// Measure returns the advance width of text at size, in points.
func (f *Fonts) Measure(text string, size float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	face, err := f.face(size)
	if err != nil {
		return 0, err
	}
	return fromFixed(font.MeasureString(face, text)), nil
}

// Draw renders one line of text whose line box starts at (x, y).
func (f *Fonts) Draw(dst draw.Image, x, y float64, text string, size float64, c color.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	face, err := f.face(size)
	if err != nil {
		return err
	}
	ascent := fromFixed(face.Metrics().Ascent)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(x), Y: toFixed(y + ascent)},
	}
	d.DrawString(text)
	return nil
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
