// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/buke/docrepl/document"
)

// mockEngine is a simple mock implementation of JsEngine for testing.
type mockEngine struct {
	mu          sync.Mutex
	scripts     []*JsScript // Scripts passed to Evaluate
	closeCalled bool        // Whether Close was called

	evaluateFunc func(ctx context.Context, script *JsScript) (string, error) // Custom Evaluate behavior (if set)
	closeFunc    func() error                                               // Custom Close behavior (if set)
}

// Evaluate mocks evaluating a script. By default it resolves with a
// one-page document tree.
func (m *mockEngine) Evaluate(ctx context.Context, script *JsScript) (string, error) {
	m.mu.Lock()
	m.scripts = append(m.scripts, script)
	m.mu.Unlock()
	if m.evaluateFunc != nil {
		return m.evaluateFunc(ctx, script)
	}
	return onePageTree, nil
}

// Close mocks closing the JavaScript engine.
func (m *mockEngine) Close() error {
	m.mu.Lock()
	m.closeCalled = true
	m.mu.Unlock()
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockEngine) evaluations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scripts)
}

// mockEngineFactory returns a factory that always hands out engine.
func mockEngineFactory(engine *mockEngine) JsEngineFactory {
	return func() (JsEngine, error) {
		return engine, nil
	}
}

const onePageTree = `{"type":"DOCUMENT","props":{},"style":{},"children":[{"type":"PAGE","props":{},"style":{},"children":[]}]}`

// mockModule is a RuntimeModule whose Render echoes the tree.
type mockModule struct {
	version string
	debug   bool

	renderFunc func(ctx context.Context, tree []byte) ([]byte, *document.LayoutNode, error)
}

func (m *mockModule) Version() string          { return m.version }
func (m *mockModule) DebuggingSupported() bool { return m.debug }
func (m *mockModule) Prelude() string          { return `return { version: "` + m.version + `" };` }

func (m *mockModule) Render(ctx context.Context, tree []byte) ([]byte, *document.LayoutNode, error) {
	if m.renderFunc != nil {
		return m.renderFunc(ctx, tree)
	}
	var layout *document.LayoutNode
	if m.debug {
		layout = &document.LayoutNode{
			Type:     "DOCUMENT",
			Children: []*document.LayoutNode{{Type: "PAGE"}},
		}
	}
	return append([]byte(nil), tree...), layout, nil
}

// countingLoaders builds loaders for versions that count their calls. A
// version listed in failing fails to load.
type countingLoaders struct {
	calls   sync.Map // version to *int32
	failing map[string]bool
	gate    chan struct{} // when set, loads block until it is closed
}

func (c *countingLoaders) loaders(versions ...string) map[string]ModuleLoader {
	out := make(map[string]ModuleLoader, len(versions))
	for _, v := range versions {
		out[v] = func(ctx context.Context) (RuntimeModule, error) {
			counter, _ := c.calls.LoadOrStore(v, new(int32))
			atomic.AddInt32(counter.(*int32), 1)
			if c.gate != nil {
				<-c.gate
			}
			if c.failing[v] {
				return nil, errors.New("network error")
			}
			return &mockModule{version: v, debug: v >= "3"}, nil
		}
	}
	return out
}

func (c *countingLoaders) count(version string) int32 {
	counter, ok := c.calls.Load(version)
	if !ok {
		return 0
	}
	return atomic.LoadInt32(counter.(*int32))
}
