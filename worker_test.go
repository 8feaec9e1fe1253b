// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serveTestWorker starts a worker over a pipe and returns the host channel.
func serveTestWorker(t *testing.T, engine *mockEngine, opts ...Option) (*Worker, *Channel) {
	t.Helper()
	c := &countingLoaders{}
	opts = append([]Option{
		WithJsEngine(mockEngineFactory(engine)),
		WithLoaders([]string{"3.0.0", "2.0.21"}, c.loaders("3.0.0", "2.0.21")),
	}, opts...)
	cfg, err := newConfig(opts)
	require.NoError(t, err)
	w, err := newWorker(cfg, "test")
	require.NoError(t, err)

	host, port := NewPipe()
	served := make(chan error, 1)
	go func() { served <- w.Serve(context.Background(), port) }()

	channel := NewChannel(host, nil)
	t.Cleanup(func() {
		channel.Close()
		require.NoError(t, <-served)
		w.Close()
	})
	return w, channel
}

func TestWorker_Methods(t *testing.T) {
	w, c := serveTestWorker(t, &mockEngine{})
	ctx := context.Background()

	_, err := c.Call(ctx, MethodVersion)
	require.ErrorIs(t, err, ErrNoRuntimeLoaded)

	raw, err := c.Call(ctx, MethodInit, "3.0.0")
	require.NoError(t, err)
	require.JSONEq(t, `true`, string(raw))

	raw, err = c.Call(ctx, MethodVersion)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":"3.0.0","isDebuggingSupported":true}`, string(raw))

	raw, err = c.Call(ctx, MethodEvaluate, EvaluateRequest{Code: "render(<Document />)"})
	require.NoError(t, err)
	result := &EvaluateResult{}
	require.NoError(t, json.Unmarshal(raw, result))
	require.Contains(t, result.URL, "blob:")
	require.NotNil(t, result.Layout)

	_, err = c.Call(ctx, MethodInit, "0.0.1")
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	// An empty version selects the preferred release.
	_, err = c.Call(ctx, MethodInit, "")
	require.NoError(t, err)
	require.Equal(t, "3.0.0", w.registry.Active().Version())

	require.Equal(t, uint32(6), w.getCallCount())
	require.False(t, w.busy())
}

func TestWorker_UnknownMethodEchoes(t *testing.T) {
	_, c := serveTestWorker(t, &mockEngine{})
	ctx := context.Background()

	raw, err := c.Call(ctx, "ping", map[string]int{"n": 1}, "ignored")
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(raw))

	raw, err = c.Call(ctx, "ping")
	require.NoError(t, err)
	require.JSONEq(t, `null`, string(raw))
}

func TestWorker_InvalidArguments(t *testing.T) {
	_, c := serveTestWorker(t, &mockEngine{})

	_, err := c.Call(context.Background(), MethodInit, 42)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, KindInternal, remote.Kind)
	require.Contains(t, remote.Message, "invalid argument")
}

func TestWorker_PanicRecovered(t *testing.T) {
	engine := &mockEngine{
		evaluateFunc: func(ctx context.Context, script *JsScript) (string, error) {
			return onePageTree, nil
		},
	}
	w, c := serveTestWorker(t, engine)
	ctx := context.Background()
	require.NoError(t, w.registry.Load(ctx, "3.0.0"))

	// A nil sandbox makes the evaluate handler panic.
	w.sandbox = nil
	_, err := c.Call(ctx, MethodEvaluate, EvaluateRequest{Code: "1"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Message, "panic in worker test")

	// The worker keeps serving.
	raw, err := c.Call(ctx, MethodVersion)
	require.NoError(t, err)
	require.Contains(t, string(raw), "3.0.0")
}

func TestWorker_ConcurrentDispatch(t *testing.T) {
	release := make(chan struct{})
	engine := &mockEngine{
		evaluateFunc: func(ctx context.Context, script *JsScript) (string, error) {
			select {
			case <-release:
				return onePageTree, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	w, c := serveTestWorker(t, engine)
	ctx := context.Background()
	require.NoError(t, w.registry.Load(ctx, "3.0.0"))

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, MethodEvaluate, EvaluateRequest{Code: "render(<Document />)"})
		done <- err
	}()
	require.Eventually(t, w.busy, time.Second, time.Millisecond)

	// A slow evaluation does not hold up other methods.
	raw, err := c.Call(ctx, MethodVersion)
	require.NoError(t, err)
	require.Contains(t, string(raw), "3.0.0")

	close(release)
	require.NoError(t, <-done)
}

func TestWorker_RetireEndsServe(t *testing.T) {
	cfg, err := newConfig([]Option{WithJsEngine(mockEngineFactory(&mockEngine{}))})
	require.NoError(t, err)
	w, err := newWorker(cfg, "retired")
	require.NoError(t, err)

	w.retire()
	_, port := NewPipe()
	require.NoError(t, w.Serve(context.Background(), port))
}
