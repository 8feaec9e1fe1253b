// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"

	"github.com/klauspost/compress/zstd"
)

// ContentType is the media type of an encoded artifact.
const ContentType = "application/vnd.docrepl.document"

// magic prefixes every encoded artifact; the last byte is the format revision.
var magic = []byte{'D', 'R', 'D', 'C', 1}

// ErrInvalidArtifact is returned when bytes do not hold an encoded document.
var ErrInvalidArtifact = errors.New("invalid document artifact")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// OpKind identifies a draw operation.
type OpKind string

const (
	OpFill OpKind = "fill" // Solid rectangle
	OpText OpKind = "text" // Single line of text, Y is the top of the line box
)

// Color is a non-premultiplied RGBA color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// NRGBA converts the color for use with image/draw.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Op is a single draw operation in page coordinates (points).
type Op struct {
	Kind     OpKind  `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w,omitempty"`
	H        float64 `json:"h,omitempty"`
	Color    Color   `json:"color"`
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
}

// Page is one page of a document.
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Ops    []Op    `json:"ops"`
}

// Document is a decoded artifact.
type Document struct {
	Producer string `json:"producer"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Pages    []Page `json:"pages"`
}

// Encode serializes doc into an artifact.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	out := make([]byte, 0, len(magic)+len(body)/2)
	out = append(out, magic...)
	return encoder.EncodeAll(body, out), nil
}

// Decode parses an artifact produced by Encode.
func Decode(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, ErrInvalidArtifact
	}
	body, err := decoder.DecodeAll(data[len(magic):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	doc := &Document{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return doc, nil
}
