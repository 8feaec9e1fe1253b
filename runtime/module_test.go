// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buke/docrepl/document"
)

const onePage = `{
	"type": "DOCUMENT",
	"props": {"title": "Hello"},
	"style": {},
	"children": [{
		"type": "PAGE",
		"props": {"size": "A4"},
		"style": {"padding": 30},
		"children": [{
			"type": "TEXT",
			"props": {},
			"style": {"fontSize": 24, "color": "#ff0000"},
			"children": ["Hello world"]
		}]
	}]
}`

func TestVersions(t *testing.T) {
	versions := Versions()
	require.Len(t, versions, len(releases))
	require.Equal(t, "3.0.2", Latest())
	require.Equal(t, Latest(), versions[0])
	require.Len(t, Loaders(), len(versions))
}

func TestLoad(t *testing.T) {
	m, err := Load(context.Background(), "3.0.0")
	require.NoError(t, err)
	require.Equal(t, "3.0.0", m.Version())
	require.True(t, m.DebuggingSupported())
	require.True(t, strings.HasPrefix(m.Prelude(), `var meta = {"debug":true,"gap":true,"version":"3.0.0"};`))
	require.Contains(t, m.Capabilities(), "pdf")

	_, err = Load(context.Background(), "0.1.0")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, "3.0.0")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRender_OnePage(t *testing.T) {
	m, err := Load(context.Background(), "3.0.0")
	require.NoError(t, err)

	data, layout, err := m.Render(context.Background(), []byte(onePage))
	require.NoError(t, err)

	doc, err := document.Decode(data)
	require.NoError(t, err)
	require.Equal(t, "Hello", doc.Title)
	require.Equal(t, "docrepl/3.0.0", doc.Producer)
	require.Len(t, doc.Pages, 1)
	require.InDelta(t, 595.28, doc.Pages[0].Width, 0.001)

	var texts []document.Op
	for _, op := range doc.Pages[0].Ops {
		if op.Kind == document.OpText {
			texts = append(texts, op)
		}
	}
	require.Len(t, texts, 1)
	require.Equal(t, "Hello world", texts[0].Text)
	require.Equal(t, document.Color{R: 255, A: 255}, texts[0].Color)
	require.InDelta(t, 30, texts[0].X, 0.001)

	require.NotNil(t, layout)
	require.Equal(t, "DOCUMENT", layout.Type)
	require.Len(t, layout.Children, 1)
	page := layout.Children[0]
	require.Equal(t, "PAGE", page.Type)
	require.InDelta(t, 30, page.Box.PaddingTop, 0.001)
	require.Len(t, page.Children, 1)
	require.Equal(t, "Hello world", page.Children[0].Value)
	require.InDelta(t, 595.28-60, page.Children[0].Box.Width, 0.001)
}

func TestRender_NoDebugLayout(t *testing.T) {
	m, err := Load(context.Background(), "2.0.21")
	require.NoError(t, err)
	require.False(t, m.DebuggingSupported())

	data, layout, err := m.Render(context.Background(), []byte(onePage))
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Nil(t, layout)
}

func TestRender_Gap(t *testing.T) {
	tree := `{"type":"DOCUMENT","props":{},"style":{},"children":[{
		"type":"PAGE","props":{},"style":{"gap":20},"children":[
			{"type":"VIEW","props":{},"style":{"height":10},"children":[]},
			{"type":"VIEW","props":{},"style":{"height":10},"children":[]}
		]}]}`

	secondTop := func(version string) float64 {
		m, err := Load(context.Background(), version)
		require.NoError(t, err)
		l := &layouter{fonts: m.fonts, features: m.Features()}
		root := &node{}
		require.NoError(t, root.UnmarshalJSON([]byte(tree)))
		_, layout, err := l.page(root.Children[0])
		require.NoError(t, err)
		return layout.Children[1].Box.Top
	}

	require.InDelta(t, 30, secondTop("3.0.0"), 0.001)
	require.InDelta(t, 10, secondTop("2.0.21"), 0.001)
}

func TestRender_InvalidTree(t *testing.T) {
	m, err := Load(context.Background(), "3.0.0")
	require.NoError(t, err)

	tests := []struct {
		name string
		tree string
	}{
		{"not json", `{`},
		{"view root", `{"type":"VIEW","props":{},"style":{},"children":[]}`},
		{"text in document", `{"type":"DOCUMENT","props":{},"style":{},"children":["loose"]}`},
		{"bad page size", `{"type":"DOCUMENT","props":{},"style":{},"children":[{"type":"PAGE","props":{"size":"B9"},"style":{},"children":[]}]}`},
		{"bad color", `{"type":"DOCUMENT","props":{},"style":{},"children":[{"type":"PAGE","props":{},"style":{"color":"nope"},"children":[]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.Render(context.Background(), []byte(tt.tree))
			require.Error(t, err)
		})
	}
}
