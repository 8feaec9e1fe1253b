// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/artifact"
	"github.com/buke/docrepl/metrics"
)

// config is shared by sessions, pools and the workers they create.
type config struct {
	engineFactory  JsEngineFactory
	versions       []string
	loaders        map[string]ModuleLoader
	store          *artifact.Store
	defaultTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Metrics
	reporter       FatalReporter

	maxWorkers uint32        // Maximum number of attached workers
	workerTTL  time.Duration // Idle time after which a worker is retired
}

// Option configures a Session or a Pool.
type Option func(*config)

func newConfig(opts []Option) (*config, error) {
	versions, loaders := DefaultLoaders()
	cfg := &config{
		versions:       versions,
		loaders:        loaders,
		defaultTimeout: DefaultTimeout,
		logger:         zap.NewNop(),
		maxWorkers:     64,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// JavaScript engine factory is required
	if cfg.engineFactory == nil {
		return nil, fmt.Errorf("JavaScript engine factory must be provided")
	}
	if cfg.store == nil {
		cfg.store = artifact.NewStore(artifact.DefaultCapacity)
	}
	if cfg.reporter == nil {
		cfg.reporter = NewLogReporter(cfg.logger)
	}
	return cfg, nil
}

// WithJsEngine configures the JavaScript engine factory.
func WithJsEngine(engineFactory JsEngineFactory) Option {
	return func(cfg *config) {
		cfg.engineFactory = engineFactory
	}
}

// WithLogger configures the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithLoaders replaces the built-in releases. versions lists the supported
// versions in preference order.
func WithLoaders(versions []string, loaders map[string]ModuleLoader) Option {
	return func(cfg *config) {
		cfg.versions = versions
		cfg.loaders = loaders
	}
}

// WithStore sets the artifact store evaluations publish to.
func WithStore(store *artifact.Store) Option {
	return func(cfg *config) {
		cfg.store = store
	}
}

// WithDefaultTimeout bounds evaluations that carry no timeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.defaultTimeout = timeout
		}
	}
}

// WithMetrics records module loads, evaluations and frames.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithReporter receives fatal evaluation errors.
func WithReporter(reporter FatalReporter) Option {
	return func(cfg *config) {
		cfg.reporter = reporter
	}
}

func WithMaxWorkers(n uint32) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxWorkers = n
		}
	}
}

func WithWorkerTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		if ttl > 0 {
			cfg.workerTTL = ttl
		}
	}
}
