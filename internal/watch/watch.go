// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package watch reports changes to a single source file. Editors often
// replace files instead of writing them in place, so the parent directory is
// watched and events are filtered by name.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher calls back after a watched file settles.
type FileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *zap.Logger
}

// NewFileWatcher watches path. A zero debounce uses DefaultDebounce.
func NewFileWatcher(path string, debounce time.Duration, logger *zap.Logger) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}
	return &FileWatcher{
		path:     abs,
		watcher:  watcher,
		debounce: NewDebouncer(debounce),
		logger:   logger,
	}, nil
}

// Watch calls onChange after each burst of writes to the file until ctx is
// done. Callbacks never overlap.
func (fw *FileWatcher) Watch(ctx context.Context, onChange func()) error {
	defer fw.debounce.Stop()

	var mu sync.Mutex
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() == nil {
			onChange()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !fw.relevant(event) {
				continue
			}
			fw.logger.Debug("File event detected",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			fw.debounce.Trigger(fire)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name, err := filepath.Abs(event.Name)
	return err == nil && name == fw.path
}

// Close releases the underlying watcher.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

// Debouncer collapses rapid triggers into one call after a quiet period.
type Debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules fn, replacing any call still pending.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels the pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
