// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/buke/docrepl"
)

const twoPages = `render(
  <Document>
    <Page size="A4" style={{ backgroundColor: "#0000ff" }} />
    <Page size="A4" style={{ backgroundColor: "#00ff00" }} />
  </Document>
)`

// syncBuffer is a bytes.Buffer safe for the watch goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeSource(t *testing.T, dir, code string) string {
	t.Helper()
	path := filepath.Join(dir, "snippet.jsx")
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

func testOptions(t *testing.T, file string) options {
	opts, err := parseFlags([]string{
		"-file", file,
		"-width", "200",
		"-height", "300",
		"-out", filepath.Join(t.TempDir(), "out"),
	}, io.Discard)
	require.NoError(t, err)
	return opts
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-file", "a.jsx"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, 1, opts.page)
	require.Equal(t, 20*time.Second, opts.timeout)
	require.Equal(t, "goja", opts.engine)
	require.Equal(t, ".", opts.outDir)

	_, err = parseFlags(nil, io.Discard)
	require.ErrorContains(t, err, "-file is required")

	_, err = parseFlags([]string{"-file", "a.jsx", "-width", "0"}, io.Discard)
	require.ErrorContains(t, err, "invalid container")

	_, err = parseFlags([]string{"-file", "a.jsx", "-timeout", "0s"}, io.Discard)
	require.ErrorContains(t, err, "timeout must be positive")

	_, err = parseFlags([]string{"-nope"}, io.Discard)
	require.Error(t, err)
}

func TestRun_Once(t *testing.T) {
	opts := testOptions(t, writeSource(t, t.TempDir(), twoPages))
	opts.page = 5
	var out syncBuffer

	require.NoError(t, run(context.Background(), opts, zaptest.NewLogger(t), &out))
	require.Contains(t, out.String(), "page 2/2 ")

	f, err := os.Open(filepath.Join(opts.outDir, "snippet.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	// A4 is width-bound in a 200x300 container.
	require.InDelta(t, 200, img.Bounds().Dx(), 1)
	r, g, b, _ := img.At(100, 100).RGBA()
	require.Equal(t, [3]uint32{0, 0xffff, 0}, [3]uint32{r, g, b})
}

func TestRun_EvaluationError(t *testing.T) {
	opts := testOptions(t, writeSource(t, t.TempDir(), `render(<Document>`))
	err := run(context.Background(), opts, zaptest.NewLogger(t), io.Discard)
	var evalErr *docrepl.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	require.NoFileExists(t, filepath.Join(opts.outDir, "snippet.png"))
}

func TestRun_UnsupportedVersion(t *testing.T) {
	opts := testOptions(t, writeSource(t, t.TempDir(), twoPages))
	opts.version = "0.1.0"
	err := run(context.Background(), opts, zaptest.NewLogger(t), io.Discard)
	require.ErrorIs(t, err, docrepl.ErrUnsupportedVersion)
}

func TestREPL_KeepsPreviousOutputOnError(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, twoPages)
	opts := testOptions(t, file)
	var out syncBuffer

	r, err := newREPL(opts, zaptest.NewLogger(t), &out)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()
	require.NoError(t, r.session.Init(ctx, ""))

	path, err := r.evaluate(ctx)
	require.NoError(t, err)
	first := r.current
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	writeSource(t, dir, `throw new Error("broken")`)
	_, err = r.evaluate(ctx)
	require.ErrorContains(t, err, "broken")
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, first, r.current)

	writeSource(t, dir, twoPages)
	_, err = r.evaluate(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, r.current)
	_, err = r.session.Store().Get(first)
	require.Error(t, err, "previous document is revoked")
}

func TestRun_Watch(t *testing.T) {
	dir := t.TempDir()
	file := writeSource(t, dir, twoPages)
	opts := testOptions(t, file)
	opts.watch = true
	var out syncBuffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, opts, zaptest.NewLogger(t), &out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching")
	}, 10*time.Second, 10*time.Millisecond)

	writeSource(t, dir, `render(<Document><Page size="A4" /></Document>)`)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "page 1/1")
	}, 10*time.Second, 10*time.Millisecond)

	writeSource(t, dir, `render(<Document>`)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "error:")
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}
