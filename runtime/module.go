// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package runtime holds the pinned document runtime releases. Each release
// pairs a JavaScript capability set, evaluated inside a sandboxed realm, with
// the Go backend that lays out the resolved element tree and produces the
// document artifact.
package runtime

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/buke/docrepl/document"
)

//go:embed modules/*.js
var modulesFS embed.FS

// Features toggles behavior that differs between releases.
type Features struct {
	Gap   bool // `gap`, `rowGap` and `columnGap` styles are honored
	Debug bool // Render returns a layout tree
}

type release struct {
	version  string
	major    string
	features Features
}

// releases is ordered newest first.
var releases = []release{
	{"3.0.2", "v3", Features{Gap: true, Debug: true}},
	{"3.0.1", "v3", Features{Gap: true, Debug: true}},
	{"3.0.0", "v3", Features{Gap: true, Debug: true}},
	{"2.3.0", "v2", Features{Gap: true}},
	{"2.2.0", "v2", Features{Gap: true}},
	{"2.1.2", "v2", Features{Gap: true}},
	{"2.1.1", "v2", Features{Gap: true}},
	{"2.1.0", "v2", Features{Gap: true}},
	{"2.0.21", "v2", Features{}},
	{"1.6.17", "v1", Features{}},
}

// Loader builds the module of a single release.
type Loader func(ctx context.Context) (*Module, error)

// Versions returns the supported releases, newest first.
func Versions() []string {
	out := make([]string, len(releases))
	for i, r := range releases {
		out[i] = r.version
	}
	return out
}

// Latest returns the newest supported release.
func Latest() string {
	return releases[0].version
}

// Loaders returns a loader per supported release.
func Loaders() map[string]Loader {
	out := make(map[string]Loader, len(releases))
	for _, r := range releases {
		out[r.version] = func(ctx context.Context) (*Module, error) {
			return load(ctx, r)
		}
	}
	return out
}

// Load builds the module for version.
func Load(ctx context.Context, version string) (*Module, error) {
	for _, r := range releases {
		if r.version == version {
			return load(ctx, r)
		}
	}
	return nil, fmt.Errorf("unknown runtime release %q", version)
}

func load(ctx context.Context, r release) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	core, err := modulesFS.ReadFile("modules/core.js")
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime core: %w", err)
	}
	exports, err := modulesFS.ReadFile("modules/" + r.major + ".js")
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime %s: %w", r.version, err)
	}
	meta, err := json.Marshal(map[string]any{
		"version": r.version,
		"gap":     r.features.Gap,
		"debug":   r.features.Debug,
	})
	if err != nil {
		return nil, err
	}

	var prelude strings.Builder
	prelude.WriteString("var meta = ")
	prelude.Write(meta)
	prelude.WriteString(";\n")
	prelude.Write(core)
	prelude.WriteString("\n")
	prelude.Write(exports)

	return &Module{
		version:  r.version,
		features: r.features,
		prelude:  prelude.String(),
		fonts:    document.NewFonts(),
	}, nil
}

// Module is a loaded runtime release.
type Module struct {
	version  string
	features Features
	prelude  string
	fonts    *document.Fonts
}

// Version returns the release identifier.
func (m *Module) Version() string {
	return m.version
}

// Features returns the release's feature set.
func (m *Module) Features() Features {
	return m.features
}

// DebuggingSupported reports whether Render produces a layout tree.
func (m *Module) DebuggingSupported() bool {
	return m.features.Debug
}

// Prelude returns the body of the capability factory. It runs as the body of
// a function whose single parameter is the sandbox's Fragment marker and
// returns the capability object; keys starting with "__" are internal.
func (m *Module) Prelude() string {
	return m.prelude
}

// Capabilities lists the names the prelude exports to user code.
func (m *Module) Capabilities() []string {
	names := []string{"version", "Document", "Page", "View", "Text", "Link", "Note", "StyleSheet", "Font", "pdf"}
	sort.Strings(names)
	return names
}

// Render lays out a resolved element tree and encodes it as an artifact. The
// layout tree is nil when the release does not support debugging.
func (m *Module) Render(ctx context.Context, tree []byte) ([]byte, *document.LayoutNode, error) {
	root := &node{}
	if err := json.Unmarshal(tree, root); err != nil {
		return nil, nil, fmt.Errorf("failed to parse element tree: %w", err)
	}
	if root.Type != typeDocument {
		return nil, nil, fmt.Errorf("root element must be a Document, got %q", root.Type)
	}

	doc := &document.Document{
		Producer: "docrepl/" + m.version,
		Title:    root.stringProp("title"),
		Author:   root.stringProp("author"),
	}
	debugTree := &document.LayoutNode{Type: typeDocument, Style: root.Style}

	l := &layouter{fonts: m.fonts, features: m.features}
	for _, child := range root.Children {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if child.Type != typePage {
			return nil, nil, fmt.Errorf("Document children must be Page elements, got %q", child.describe())
		}
		page, layout, err := l.page(child)
		if err != nil {
			return nil, nil, err
		}
		doc.Pages = append(doc.Pages, *page)
		debugTree.Children = append(debugTree.Children, layout)
	}

	data, err := document.Encode(doc)
	if err != nil {
		return nil, nil, err
	}
	if !m.features.Debug {
		return data, nil, nil
	}
	return data, debugTree, nil
}
