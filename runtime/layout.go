// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"math"
	"strings"

	"github.com/buke/docrepl/document"
)

// layouter computes a simplified flexbox layout. Content that does not fit
// on a page is clipped rather than broken onto a new page.
type layouter struct {
	fonts    *document.Fonts
	features Features
}

// frame is a sized element. x and y locate its border box relative to the
// content box of its parent.
type frame struct {
	n        *node
	st       *style
	x, y     float64
	w, h     float64
	children []*frame
	lines    []line
}

type line struct {
	text  string
	width float64
}

func (f *frame) outerWidth() float64  { return f.w + f.st.margin.horizontal() }
func (f *frame) outerHeight() float64 { return f.h + f.st.margin.vertical() }

func (f *frame) insetsH() float64 { return f.st.padding.horizontal() + f.st.border.horizontal() }
func (f *frame) insetsV() float64 { return f.st.padding.vertical() + f.st.border.vertical() }

func (l *layouter) page(n *node) (*document.Page, *document.LayoutNode, error) {
	width, height, err := pageSize(n.Props)
	if err != nil {
		return nil, nil, err
	}
	st, err := parseStyle(n.Style, nil, l.features)
	if err != nil {
		return nil, nil, err
	}
	f := &frame{n: n, st: st, w: width, h: height}
	if _, _, err := l.arrange(f, math.Max(0, width-f.insetsH()), math.Max(0, height-f.insetsV()), true); err != nil {
		return nil, nil, err
	}

	page := &document.Page{Width: width, Height: height}
	layout := l.place(f, 0, 0, page)
	return page, layout, nil
}

// build sizes n. fill is the outer width the element should occupy when it
// has no explicit width, or a negative value to shrink to fit availW.
func (l *layouter) build(n *node, parent *style, availW, availH, fill float64) (*frame, error) {
	raw := n.Style
	if n.Type == typeString {
		raw = nil
	}
	st, err := parseStyle(raw, parent, l.features)
	if err != nil {
		return nil, err
	}
	f := &frame{n: n, st: st}

	outerAvail := math.Max(0, availW-st.margin.horizontal())
	w, fixedW := st.width.resolve(availW)
	if !fixedW && fill >= 0 {
		w, fixedW = math.Max(0, fill-st.margin.horizontal()), true
	}
	explicitH, fixedH := st.height.resolve(availH)

	if n.isTextual() {
		text := n.textContent()
		if !fixedW {
			natural, err := l.naturalWidth(text, st.fontSize)
			if err != nil {
				return nil, err
			}
			w = math.Min(natural+f.insetsH(), outerAvail)
		}
		f.lines, err = l.wrap(text, st.fontSize, math.Max(0, w-f.insetsH()))
		if err != nil {
			return nil, err
		}
		f.w = w
		f.h = float64(len(f.lines))*st.lineHeightPoints() + f.insetsV()
		if fixedH {
			f.h = explicitH
		}
		return f, nil
	}

	innerH := -1.0
	if fixedH {
		innerH = math.Max(0, explicitH-f.insetsV())
	}
	if !fixedW {
		contentW, _, err := l.arrange(f, math.Max(0, outerAvail-f.insetsH()), innerH, false)
		if err != nil {
			return nil, err
		}
		w = math.Min(contentW+f.insetsH(), outerAvail)
	}
	f.w = w
	_, contentH, err := l.arrange(f, math.Max(0, w-f.insetsH()), innerH, true)
	if err != nil {
		return nil, err
	}
	f.h = contentH + f.insetsV()
	if fixedH {
		f.h = explicitH
	}
	return f, nil
}

// arrange sizes and positions the children of f inside a content box of
// innerW by innerH, where a negative innerH means the height follows the
// content. It returns the size the children occupy.
func (l *layouter) arrange(f *frame, innerW, innerH float64, final bool) (float64, float64, error) {
	if f.st.direction == "row" || f.st.direction == "row-reverse" {
		return l.arrangeRow(f, innerW, innerH, final)
	}
	return l.arrangeColumn(f, innerW, innerH, final)
}

func (l *layouter) arrangeColumn(f *frame, innerW, innerH float64, final bool) (float64, float64, error) {
	gap := f.st.mainGap()
	f.children = f.children[:0]
	var contentW, used, grow float64
	for i, child := range f.n.Children {
		fill := -1.0
		if final && l.crossAlign(f.st, child) == "stretch" {
			fill = innerW
		}
		cf, err := l.build(child, f.st, innerW, innerH, fill)
		if err != nil {
			return 0, 0, err
		}
		f.children = append(f.children, cf)
		contentW = math.Max(contentW, cf.outerWidth())
		used += cf.outerHeight()
		if i > 0 {
			used += gap
		}
		grow += cf.st.grow
	}

	if innerH >= 0 && grow > 0 && used < innerH {
		free := innerH - used
		for _, cf := range f.children {
			if cf.st.grow > 0 {
				cf.h += free * cf.st.grow / grow
			}
		}
		used = innerH
	}

	main := used
	if innerH >= 0 {
		main = innerH
	}
	offset, spacing := justify(f.st.justify, main-used, len(f.children))
	pos := offset
	for _, cf := range f.children {
		cf.y = pos + cf.st.margin[0]
		cf.x = crossOffset(l.alignFor(f.st, cf), innerW, cf.outerWidth()) + cf.st.margin[3]
		pos += cf.outerHeight() + gap + spacing
	}
	if f.st.direction == "column-reverse" {
		for _, cf := range f.children {
			cf.y = main - cf.y - cf.h
		}
	}
	return contentW, used, nil
}

func (l *layouter) arrangeRow(f *frame, innerW, innerH float64, final bool) (float64, float64, error) {
	gap := f.st.mainGap()
	f.children = f.children[:0]
	var used, grow float64
	for i, child := range f.n.Children {
		cf, err := l.build(child, f.st, innerW, innerH, -1)
		if err != nil {
			return 0, 0, err
		}
		f.children = append(f.children, cf)
		used += cf.outerWidth()
		if i > 0 {
			used += gap
		}
		grow += cf.st.grow
	}

	if final && grow > 0 && used < innerW {
		free := innerW - used
		for i, cf := range f.children {
			if cf.st.grow <= 0 {
				continue
			}
			grown, err := l.build(cf.n, f.st, innerW, innerH, cf.outerWidth()+free*cf.st.grow/grow)
			if err != nil {
				return 0, 0, err
			}
			f.children[i] = grown
		}
		used = innerW
	}

	cross := innerH
	if cross < 0 {
		cross = 0
		for _, cf := range f.children {
			cross = math.Max(cross, cf.outerHeight())
		}
	}
	for _, cf := range f.children {
		if _, fixed := cf.st.height.resolve(innerH); !fixed && l.alignFor(f.st, cf) == "stretch" {
			cf.h = math.Max(cf.h, cross-cf.st.margin.vertical())
		}
	}

	main := used
	if final {
		main = innerW
	}
	offset, spacing := justify(f.st.justify, main-used, len(f.children))
	pos := offset
	for _, cf := range f.children {
		cf.x = pos + cf.st.margin[3]
		cf.y = crossOffset(l.alignFor(f.st, cf), cross, cf.outerHeight()) + cf.st.margin[0]
		pos += cf.outerWidth() + gap + spacing
	}
	if f.st.direction == "row-reverse" {
		for _, cf := range f.children {
			cf.x = main - cf.x - cf.w
		}
	}
	return used, cross, nil
}

// crossAlign reads alignSelf from the unparsed child so stretching can be
// decided before the child is built.
func (l *layouter) crossAlign(parent *style, child *node) string {
	if v, ok := child.Style["alignSelf"].(string); ok && v != "auto" {
		return v
	}
	return parent.align
}

func (l *layouter) alignFor(parent *style, f *frame) string {
	if f.st.alignSelf != "" && f.st.alignSelf != "auto" {
		return f.st.alignSelf
	}
	return parent.align
}

func crossOffset(align string, space, size float64) float64 {
	switch align {
	case "center":
		return math.Max(0, space-size) / 2
	case "flex-end":
		return math.Max(0, space-size)
	}
	return 0
}

// justify returns the leading offset and the extra spacing between items.
func justify(mode string, free float64, count int) (float64, float64) {
	if free <= 0 || count == 0 {
		return 0, 0
	}
	switch mode {
	case "center":
		return free / 2, 0
	case "flex-end":
		return free, 0
	case "space-between":
		if count == 1 {
			return 0, 0
		}
		return 0, free / float64(count-1)
	case "space-around":
		return free / float64(count) / 2, free / float64(count)
	case "space-evenly":
		return free / float64(count+1), free / float64(count+1)
	}
	return 0, 0
}

func (l *layouter) naturalWidth(text string, size float64) (float64, error) {
	var widest float64
	for _, paragraph := range strings.Split(text, "\n") {
		w, err := l.fonts.Measure(strings.Join(strings.Fields(paragraph), " "), size)
		if err != nil {
			return 0, err
		}
		widest = math.Max(widest, w)
	}
	return widest, nil
}

// wrap breaks text into lines no wider than width. A word longer than the
// width keeps a line of its own.
func (l *layouter) wrap(text string, size, width float64) ([]line, error) {
	var lines []line
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			if len(text) > 0 {
				lines = append(lines, line{})
			}
			continue
		}
		current := words[0]
		currentW, err := l.fonts.Measure(current, size)
		if err != nil {
			return nil, err
		}
		for _, word := range words[1:] {
			candidate := current + " " + word
			w, err := l.fonts.Measure(candidate, size)
			if err != nil {
				return nil, err
			}
			if w <= width {
				current, currentW = candidate, w
				continue
			}
			lines = append(lines, line{text: current, width: currentW})
			current = word
			if currentW, err = l.fonts.Measure(word, size); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line{text: current, width: currentW})
	}
	return lines, nil
}

// place emits the drawing operations of f at the absolute position (x, y)
// and returns its layout node.
func (l *layouter) place(f *frame, x, y float64, page *document.Page) *document.LayoutNode {
	st := f.st
	out := &document.LayoutNode{
		Type:  f.n.Type,
		Style: f.n.Style,
		Box: document.Box{
			Top:    y,
			Left:   x,
			Width:  f.w,
			Height: f.h,

			PaddingTop:    st.padding[0],
			PaddingRight:  st.padding[1],
			PaddingBottom: st.padding[2],
			PaddingLeft:   st.padding[3],

			MarginTop:    st.margin[0],
			MarginRight:  st.margin[1],
			MarginBottom: st.margin[2],
			MarginLeft:   st.margin[3],

			BorderTopWidth:    st.border[0],
			BorderRightWidth:  st.border[1],
			BorderBottomWidth: st.border[2],
			BorderLeftWidth:   st.border[3],
		},
	}
	if f.n.Type == typeString {
		out.Type = "TEXT_INSTANCE"
		out.Value = f.n.Text
	} else if f.n.isTextual() {
		out.Value = f.n.textContent()
	}

	if st.background != nil && st.background.A > 0 {
		page.Ops = append(page.Ops, fill(x, y, f.w, f.h, *st.background))
	}
	l.borders(f, x, y, page)

	contentX := x + st.border[3] + st.padding[3]
	contentY := y + st.border[0] + st.padding[0]
	innerW := math.Max(0, f.w-f.insetsH())
	lh := st.lineHeightPoints()
	for i, ln := range f.lines {
		if ln.text == "" {
			continue
		}
		lx := contentX
		switch st.textAlign {
		case "center":
			lx += (innerW - ln.width) / 2
		case "right":
			lx += innerW - ln.width
		}
		// The glyph box is centered inside the line box.
		ly := contentY + float64(i)*lh + (lh-st.fontSize*lineHeightRatio)/2
		page.Ops = append(page.Ops, document.Op{
			Kind:     document.OpText,
			X:        lx,
			Y:        ly,
			W:        ln.width,
			H:        lh,
			Color:    st.color,
			Text:     ln.text,
			FontSize: st.fontSize,
		})
	}

	for _, child := range f.children {
		out.Children = append(out.Children, l.place(child, contentX+child.x, contentY+child.y, page))
	}
	return out
}

func (l *layouter) borders(f *frame, x, y float64, page *document.Page) {
	b, c := f.st.border, f.st.borderColor
	if c.A == 0 {
		return
	}
	if b[0] > 0 {
		page.Ops = append(page.Ops, fill(x, y, f.w, b[0], c))
	}
	if b[2] > 0 {
		page.Ops = append(page.Ops, fill(x, y+f.h-b[2], f.w, b[2], c))
	}
	if b[3] > 0 {
		page.Ops = append(page.Ops, fill(x, y, b[3], f.h, c))
	}
	if b[1] > 0 {
		page.Ops = append(page.Ops, fill(x+f.w-b[1], y, b[1], f.h, c))
	}
}

func fill(x, y, w, h float64, c document.Color) document.Op {
	return document.Op{Kind: document.OpFill, X: x, Y: y, W: w, H: h, Color: c}
}

