// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buke/docrepl/document"
)

func TestParseLength(t *testing.T) {
	tests := []struct {
		in      any
		want    float64
		percent bool
		set     bool
	}{
		{12.0, 12, false, true},
		{"12pt", 12, false, true},
		{"1in", 72, false, true},
		{"25.4mm", 72, false, true},
		{"50%", 50, true, true},
		{"auto", 0, false, false},
	}
	for _, tt := range tests {
		l, err := parseLength(tt.in)
		require.NoError(t, err, tt.in)
		require.InDelta(t, tt.want, l.value, 0.0001, tt.in)
		require.Equal(t, tt.percent, l.percent, tt.in)
		require.Equal(t, tt.set, l.set, tt.in)
	}

	_, err := parseLength("3furlongs")
	require.Error(t, err)
}

func TestParseColor(t *testing.T) {
	tests := map[string]document.Color{
		"black":              {0, 0, 0, 255},
		"#fff":               {255, 255, 255, 255},
		"#00ff0080":          {0, 255, 0, 128},
		"rgb(1, 2, 3)":       {1, 2, 3, 255},
		"rgba(10,20,30,0.5)": {10, 20, 30, 128},
		"  Transparent  ":    {0, 0, 0, 0},
	}
	for in, want := range tests {
		c, err := parseColor(in)
		require.NoError(t, err, in)
		require.Equal(t, want, c, in)
	}

	for _, bad := range []any{"#12", "hsl(1,2,3)", 42.0} {
		_, err := parseColor(bad)
		require.Error(t, err, bad)
	}
}

func TestParseEdges(t *testing.T) {
	var e edges
	require.NoError(t, parseEdges(map[string]any{
		"padding":           "1 2 3",
		"paddingHorizontal": 5.0,
		"paddingTop":        9.0,
	}, "padding", &e))
	require.Equal(t, edges{9, 5, 3, 5}, e)
}

func TestPageSize(t *testing.T) {
	w, h, err := pageSize(map[string]any{"size": "letter", "orientation": "landscape"})
	require.NoError(t, err)
	require.Equal(t, 792.0, w)
	require.Equal(t, 612.0, h)

	w, h, err = pageSize(map[string]any{"size": []any{200.0, "2in"}})
	require.NoError(t, err)
	require.Equal(t, 200.0, w)
	require.Equal(t, 144.0, h)

	_, _, err = pageSize(map[string]any{"size": []any{0.0, 10.0}})
	require.Error(t, err)
}
