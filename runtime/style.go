// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/buke/docrepl/document"
)

// pageSizes are in points, portrait.
var pageSizes = map[string][2]float64{
	"A3":     {841.89, 1190.55},
	"A4":     {595.28, 841.89},
	"A5":     {419.53, 595.28},
	"A6":     {297.64, 419.53},
	"LETTER": {612, 792},
	"LEGAL":  {612, 1008},
}

const (
	defaultFontSize = 12.0
	lineHeightRatio = 1.2
)

// length is a resolved style dimension.
type length struct {
	value   float64
	percent bool
	set     bool
}

func (l length) resolve(base float64) (float64, bool) {
	if !l.set {
		return 0, false
	}
	if l.percent {
		if base < 0 {
			return 0, false
		}
		return base * l.value / 100, true
	}
	return l.value, true
}

// edges holds top, right, bottom, left values.
type edges [4]float64

func (e edges) horizontal() float64 { return e[1] + e[3] }
func (e edges) vertical() float64   { return e[0] + e[2] }

type style struct {
	width, height length

	direction  string
	grow       float64
	justify    string
	align      string
	alignSelf  string
	gap        float64
	rowGap     float64
	columnGap  float64
	padding    edges
	margin     edges
	border     edges
	textAlign  string
	fontSize   float64
	lineHeight float64

	background  *document.Color
	borderColor document.Color
	color       document.Color
}

func parseStyle(raw map[string]any, parent *style, features Features) (*style, error) {
	s := &style{
		direction:   "column",
		justify:     "flex-start",
		align:       "stretch",
		fontSize:    defaultFontSize,
		color:       document.Color{A: 255},
		borderColor: document.Color{A: 255},
	}
	if parent != nil {
		// Text properties inherit.
		s.fontSize = parent.fontSize
		s.color = parent.color
		s.textAlign = parent.textAlign
		s.lineHeight = parent.lineHeight
	}

	var err error
	for key, value := range raw {
		switch key {
		case "width":
			s.width, err = parseLength(value)
		case "height":
			s.height, err = parseLength(value)
		case "flexDirection":
			s.direction = fmt.Sprint(value)
		case "flexGrow":
			s.grow, err = parseNumber(value)
		case "flex":
			s.grow, err = parseNumber(value)
		case "justifyContent":
			s.justify = fmt.Sprint(value)
		case "alignItems":
			s.align = fmt.Sprint(value)
		case "alignSelf":
			s.alignSelf = fmt.Sprint(value)
		case "gap":
			if features.Gap {
				s.gap, err = parsePoints(value)
			}
		case "rowGap":
			if features.Gap {
				s.rowGap, err = parsePoints(value)
			}
		case "columnGap":
			if features.Gap {
				s.columnGap, err = parsePoints(value)
			}
		case "textAlign":
			s.textAlign = fmt.Sprint(value)
		case "fontSize":
			s.fontSize, err = parsePoints(value)
		case "lineHeight":
			s.lineHeight, err = parseNumber(value)
		case "backgroundColor":
			var c document.Color
			c, err = parseColor(value)
			s.background = &c
		case "color":
			s.color, err = parseColor(value)
		case "borderColor":
			s.borderColor, err = parseColor(value)
		case "border":
			err = s.parseBorderShorthand(value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid style %s: %w", key, err)
		}
	}

	if err := parseEdges(raw, "padding", &s.padding); err != nil {
		return nil, err
	}
	if err := parseEdges(raw, "margin", &s.margin); err != nil {
		return nil, err
	}
	if err := parseBorderWidths(raw, &s.border); err != nil {
		return nil, err
	}
	if s.fontSize <= 0 {
		s.fontSize = defaultFontSize
	}
	return s, nil
}

func (s *style) lineHeightPoints() float64 {
	switch {
	case s.lineHeight <= 0:
		return s.fontSize * lineHeightRatio
	case s.lineHeight <= 4:
		return s.fontSize * s.lineHeight
	default:
		return s.lineHeight
	}
}

func (s *style) mainGap() float64 {
	if s.direction == "row" {
		if s.columnGap > 0 {
			return s.columnGap
		}
	} else if s.rowGap > 0 {
		return s.rowGap
	}
	return s.gap
}

func (s *style) parseBorderShorthand(value any) error {
	str, ok := value.(string)
	if !ok {
		w, err := parsePoints(value)
		if err != nil {
			return err
		}
		s.border = edges{w, w, w, w}
		return nil
	}
	for _, token := range strings.Fields(str) {
		switch token {
		case "solid", "dashed", "dotted", "none":
			continue
		}
		if w, err := parsePoints(token); err == nil {
			s.border = edges{w, w, w, w}
			continue
		}
		c, err := parseColor(token)
		if err != nil {
			return err
		}
		s.borderColor = c
	}
	return nil
}

// parseEdges reads `prefix`, `prefixHorizontal`, `prefixVertical` and the
// per-side properties, later entries overriding earlier ones.
func parseEdges(raw map[string]any, prefix string, out *edges) error {
	if v, ok := raw[prefix]; ok {
		parsed, err := parseShorthand(v)
		if err != nil {
			return fmt.Errorf("invalid style %s: %w", prefix, err)
		}
		*out = parsed
	}
	pairs := []struct {
		suffix string
		sides  []int
	}{
		{"Vertical", []int{0, 2}},
		{"Horizontal", []int{1, 3}},
		{"Top", []int{0}},
		{"Right", []int{1}},
		{"Bottom", []int{2}},
		{"Left", []int{3}},
	}
	for _, p := range pairs {
		v, ok := raw[prefix+p.suffix]
		if !ok {
			continue
		}
		w, err := parsePoints(v)
		if err != nil {
			return fmt.Errorf("invalid style %s%s: %w", prefix, p.suffix, err)
		}
		for _, side := range p.sides {
			out[side] = w
		}
	}
	return nil
}

func parseBorderWidths(raw map[string]any, out *edges) error {
	if v, ok := raw["borderWidth"]; ok {
		w, err := parsePoints(v)
		if err != nil {
			return fmt.Errorf("invalid style borderWidth: %w", err)
		}
		*out = edges{w, w, w, w}
	}
	for i, side := range []string{"Top", "Right", "Bottom", "Left"} {
		v, ok := raw["border"+side+"Width"]
		if !ok {
			continue
		}
		w, err := parsePoints(v)
		if err != nil {
			return fmt.Errorf("invalid style border%sWidth: %w", side, err)
		}
		out[i] = w
	}
	return nil
}

// parseShorthand accepts a number or a CSS-like list of one to four lengths.
func parseShorthand(value any) (edges, error) {
	str, ok := value.(string)
	if !ok {
		w, err := parsePoints(value)
		return edges{w, w, w, w}, err
	}
	fields := strings.Fields(str)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		w, err := parsePoints(f)
		if err != nil {
			return edges{}, err
		}
		vals[i] = w
	}
	switch len(vals) {
	case 1:
		return edges{vals[0], vals[0], vals[0], vals[0]}, nil
	case 2:
		return edges{vals[0], vals[1], vals[0], vals[1]}, nil
	case 3:
		return edges{vals[0], vals[1], vals[2], vals[1]}, nil
	case 4:
		return edges{vals[0], vals[1], vals[2], vals[3]}, nil
	}
	return edges{}, fmt.Errorf("expected 1 to 4 values, got %d", len(vals))
}

func parseNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("unexpected value %v", value)
}

// parsePoints converts a unit-bearing length to points. Percentages are not
// accepted here.
func parsePoints(value any) (float64, error) {
	l, err := parseLength(value)
	if err != nil {
		return 0, err
	}
	if l.percent {
		return 0, fmt.Errorf("percentage not allowed")
	}
	return l.value, nil
}

var unitScale = map[string]float64{
	"":   1,
	"pt": 1,
	"px": 1,
	"in": 72,
	"mm": 72 / 25.4,
	"cm": 72 / 2.54,
}

func parseLength(value any) (length, error) {
	switch v := value.(type) {
	case float64:
		return length{value: v, set: true}, nil
	case string:
		str := strings.TrimSpace(v)
		if str == "auto" || str == "" {
			return length{}, nil
		}
		if strings.HasSuffix(str, "%") {
			n, err := strconv.ParseFloat(strings.TrimSuffix(str, "%"), 64)
			if err != nil {
				return length{}, err
			}
			return length{value: n, percent: true, set: true}, nil
		}
		i := len(str)
		for i > 0 && (str[i-1] < '0' || str[i-1] > '9') && str[i-1] != '.' {
			i--
		}
		scale, ok := unitScale[str[i:]]
		if !ok {
			return length{}, fmt.Errorf("unknown unit in %q", str)
		}
		n, err := strconv.ParseFloat(str[:i], 64)
		if err != nil {
			return length{}, err
		}
		return length{value: n * scale, set: true}, nil
	}
	return length{}, fmt.Errorf("unexpected value %v", value)
}

var namedColors = map[string]document.Color{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"purple":      {128, 0, 128, 255},
	"pink":        {255, 192, 203, 255},
	"brown":       {165, 42, 42, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"silver":      {192, 192, 192, 255},
	"wheat":       {245, 222, 179, 255},
	"navy":        {0, 0, 128, 255},
	"teal":        {0, 128, 128, 255},
	"maroon":      {128, 0, 0, 255},
	"olive":       {128, 128, 0, 255},
	"lime":        {0, 255, 0, 255},
	"aqua":        {0, 255, 255, 255},
	"cyan":        {0, 255, 255, 255},
	"fuchsia":     {255, 0, 255, 255},
	"magenta":     {255, 0, 255, 255},
	"transparent": {0, 0, 0, 0},
}

func parseColor(value any) (document.Color, error) {
	str, ok := value.(string)
	if !ok {
		return document.Color{}, fmt.Errorf("color must be a string, got %v", value)
	}
	str = strings.ToLower(strings.TrimSpace(str))
	if c, ok := namedColors[str]; ok {
		return c, nil
	}
	if strings.HasPrefix(str, "#") {
		return parseHexColor(str[1:])
	}
	if strings.HasPrefix(str, "rgb") {
		return parseRGBColor(str)
	}
	return document.Color{}, fmt.Errorf("unknown color %q", str)
}

func parseHexColor(hex string) (document.Color, error) {
	if len(hex) == 3 || len(hex) == 4 {
		expanded := make([]byte, 0, len(hex)*2)
		for i := 0; i < len(hex); i++ {
			expanded = append(expanded, hex[i], hex[i])
		}
		hex = string(expanded)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return document.Color{}, fmt.Errorf("invalid hex color #%s", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return document.Color{}, fmt.Errorf("invalid hex color #%s", hex)
	}
	return document.Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseRGBColor(str string) (document.Color, error) {
	start, end := strings.IndexByte(str, '('), strings.LastIndexByte(str, ')')
	if start < 0 || end < start {
		return document.Color{}, fmt.Errorf("invalid color %q", str)
	}
	parts := strings.Split(str[start+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return document.Color{}, fmt.Errorf("invalid color %q", str)
	}
	var channels [4]float64
	channels[3] = 1
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return document.Color{}, fmt.Errorf("invalid color %q", str)
		}
		channels[i] = n
	}
	clamp := func(v float64) uint8 { return uint8(math.Max(0, math.Min(255, math.Round(v)))) }
	return document.Color{
		R: clamp(channels[0]),
		G: clamp(channels[1]),
		B: clamp(channels[2]),
		A: clamp(channels[3] * 255),
	}, nil
}

// pageSize resolves the `size` and `orientation` props of a Page.
func pageSize(props map[string]any) (float64, float64, error) {
	w, h := pageSizes["A4"][0], pageSizes["A4"][1]
	switch v := props["size"].(type) {
	case nil:
	case string:
		size, ok := pageSizes[strings.ToUpper(v)]
		if !ok {
			return 0, 0, fmt.Errorf("unknown page size %q", v)
		}
		w, h = size[0], size[1]
	case []any:
		if len(v) != 2 {
			return 0, 0, fmt.Errorf("page size must have two dimensions")
		}
		var err error
		if w, err = parsePoints(v[0]); err != nil {
			return 0, 0, err
		}
		if h, err = parsePoints(v[1]); err != nil {
			return 0, 0, err
		}
	case map[string]any:
		var err error
		if w, err = parsePoints(v["width"]); err != nil {
			return 0, 0, err
		}
		if h, err = parsePoints(v["height"]); err != nil {
			return 0, 0, err
		}
	default:
		return 0, 0, fmt.Errorf("invalid page size %v", v)
	}
	if props["orientation"] == "landscape" && h > w {
		w, h = h, w
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("page size must be positive")
	}
	return w, h, nil
}
