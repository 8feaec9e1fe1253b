// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/document"
	"github.com/buke/docrepl/metrics"
	"github.com/buke/docrepl/runtime"
)

// RuntimeModule is a loaded runtime release.
type RuntimeModule interface {
	Version() string
	DebuggingSupported() bool

	// Prelude is the body of the capability factory evaluated in each realm.
	Prelude() string

	// Render lays out a serialized element tree and returns the artifact
	// bytes and, when debugging is supported, the layout tree.
	Render(ctx context.Context, tree []byte) ([]byte, *document.LayoutNode, error)
}

// ModuleLoader fetches the module of one version.
type ModuleLoader func(ctx context.Context) (RuntimeModule, error)

// DefaultLoaders returns the built-in releases in preference order together
// with their loaders.
func DefaultLoaders() ([]string, map[string]ModuleLoader) {
	loaders := make(map[string]ModuleLoader)
	for version, load := range runtime.Loaders() {
		loaders[version] = func(ctx context.Context) (RuntimeModule, error) {
			m, err := load(ctx)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return runtime.Versions(), loaders
}

// ModuleState is the load state of one version.
type ModuleState int

const (
	StateUnloaded ModuleState = iota // Never requested
	StateLoading                     // A fetch is in flight
	StateLoaded                      // Module available
	StateFailed                      // Last fetch failed
)

// String returns the string representation of a ModuleState.
func (s ModuleState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type moduleEntry struct {
	state  ModuleState
	module RuntimeModule
	err    error
	done   chan struct{} // closed when the fetch settles
}

// Registry loads runtime modules at most once per load cycle and tracks the
// active one.
type Registry struct {
	versions []string
	loaders  map[string]ModuleLoader
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*moduleEntry
	active  RuntimeModule
}

// NewRegistry creates a registry for versions, listed in preference order.
// Every version needs a loader.
func NewRegistry(versions []string, loaders map[string]ModuleLoader, logger *zap.Logger, m *metrics.Metrics) (*Registry, error) {
	if len(versions) == 0 {
		return nil, fmt.Errorf("at least one runtime version must be provided")
	}
	for _, v := range versions {
		if loaders[v] == nil {
			return nil, fmt.Errorf("no loader for runtime version %q", v)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		versions: append([]string(nil), versions...),
		loaders:  loaders,
		logger:   logger,
		metrics:  m,
		entries:  make(map[string]*moduleEntry),
	}, nil
}

// Versions returns the supported versions in preference order.
func (r *Registry) Versions() []string {
	return append([]string(nil), r.versions...)
}

// Default returns the preferred version.
func (r *Registry) Default() string {
	return r.versions[0]
}

// Active returns the active module, or nil before the first successful load.
func (r *Registry) Active() RuntimeModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// State reports the load state of version.
func (r *Registry) State(version string) ModuleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[version]; ok {
		return e.state
	}
	return StateUnloaded
}

// Load makes version the active module, fetching it if needed. Concurrent
// calls for the same version share a single fetch. A failed load leaves the
// previously active module in place.
func (r *Registry) Load(ctx context.Context, version string) error {
	loader, ok := r.loaders[version]
	if !ok {
		return &UnsupportedVersionError{Version: version}
	}

	r.mu.Lock()
	e := r.entries[version]
	switch {
	case e != nil && e.state == StateLoaded:
		r.activate(e.module)
		r.mu.Unlock()
		return nil
	case e != nil && e.state == StateLoading:
		r.mu.Unlock()
		return r.wait(ctx, e)
	}

	e = &moduleEntry{state: StateLoading, done: make(chan struct{})}
	r.entries[version] = e
	r.mu.Unlock()

	// The fetch outlives a cancelled caller so waiters still get an outcome.
	go r.fetch(context.WithoutCancel(ctx), version, loader, e)
	return r.wait(ctx, e)
}

func (r *Registry) wait(ctx context.Context, e *moduleEntry) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) fetch(ctx context.Context, version string, loader ModuleLoader, e *moduleEntry) {
	start := time.Now()
	module, err := func() (m RuntimeModule, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in loader: %v", rec)
			}
		}()
		return loader(ctx)
	}()
	if err == nil && module == nil {
		err = fmt.Errorf("loader returned no module")
	}
	r.metrics.RecordModuleLoad(version, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		e.state = StateFailed
		e.err = fmt.Errorf("failed to load runtime %s: %w", version, err)
		r.logger.Warn("Runtime module load failed",
			zap.String("version", version),
			zap.Error(err))
	} else {
		e.state = StateLoaded
		e.module = module
		r.activate(module)
		r.logger.Debug("Runtime module loaded",
			zap.String("version", version),
			zap.Duration("elapsed", time.Since(start)))
	}
	close(e.done)
}

// activate is called with r.mu held.
func (r *Registry) activate(m RuntimeModule) {
	r.active = m
	r.metrics.SetActiveVersion(m.Version())
}
