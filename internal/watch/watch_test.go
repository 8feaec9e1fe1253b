// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snippet.jsx")
	require.NoError(t, os.WriteFile(path, []byte("render(<Document />)"), 0o644))

	fw, err := NewFileWatcher(path, 30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- fw.Watch(ctx, func() { changes <- struct{}{} })
	}()

	// Writes to other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.jsx"), []byte("x"), 0o644))
	select {
	case <-changes:
		t.Fatal("change reported for another file")
	case <-time.After(150 * time.Millisecond):
	}

	// A burst of writes is reported once.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("render(<Document><Page /></Document>)"), 0o644))
	}
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}

	// Replacing the file by rename counts as a change.
	tmp := filepath.Join(dir, ".snippet.jsx.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("render(<Document />)"), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement not reported")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNewFileWatcher_MissingDirectory(t *testing.T) {
	_, err := NewFileWatcher(filepath.Join(t.TempDir(), "missing", "a.jsx"), 0, nil)
	require.ErrorContains(t, err, "failed to watch")
}
