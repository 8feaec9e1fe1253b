// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/artifact"
	"github.com/buke/docrepl/document"
	"github.com/buke/docrepl/metrics"
)

// DefaultTimeout bounds an evaluation when the caller gives no timeout.
const DefaultTimeout = 20 * time.Second

// EvaluateResult is the outcome of a successful evaluation.
type EvaluateResult struct {
	URL     string               `json:"url"`
	Layout  *document.LayoutNode `json:"layout,omitempty"`
	Elapsed time.Duration        `json:"elapsed"`
}

// Sandbox evaluates snippets against the registry's active module.
type Sandbox struct {
	registry       *Registry
	engine         JsEngine
	store          *artifact.Store
	defaultTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewSandbox creates a sandbox that evaluates with engine and publishes
// artifacts to store.
func NewSandbox(registry *Registry, engine JsEngine, store *artifact.Store, logger *zap.Logger, m *metrics.Metrics) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{
		registry:       registry,
		engine:         engine,
		store:          store,
		defaultTimeout: DefaultTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// Evaluate runs code in a fresh realm and renders the element passed to
// render(). The active module is captured when the call starts; a version
// switch during the evaluation does not affect it.
func (s *Sandbox) Evaluate(ctx context.Context, code string, opts EvaluateOptions, timeout time.Duration) (*EvaluateResult, error) {
	module := s.registry.Active()
	if module == nil {
		s.metrics.RecordEvaluation("", "no_runtime", 0)
		return nil, ErrNoRuntimeLoaded
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	start := time.Now()
	result, err := s.evaluate(ctx, module, code, opts, timeout)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	s.metrics.RecordEvaluation(module.Version(), outcome, elapsed)
	if err != nil {
		s.logger.Debug("Evaluation failed",
			zap.String("version", module.Version()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	result.Elapsed = elapsed
	return result, nil
}

func (s *Sandbox) evaluate(ctx context.Context, module RuntimeModule, code string, opts EvaluateOptions, timeout time.Duration) (*EvaluateResult, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, &TimeoutError{Timeout: timeout})
	defer cancel()

	compiled, err := transform(code, opts.Modules)
	if err != nil {
		return nil, err
	}
	script, err := compartmentScript(module.Prelude(), compiled, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build script: %w", err)
	}

	type outcome struct {
		tree string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic in engine: %v", r)}
			}
		}()
		tree, err := s.engine.Evaluate(ctx, script)
		done <- outcome{tree: tree, err: err}
	}()

	var tree string
	select {
	case out := <-done:
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		if out.err != nil {
			return nil, out.err
		}
		tree = out.tree
	case <-ctx.Done():
		// The engine was asked to interrupt; the realm may still be unwinding.
		return nil, context.Cause(ctx)
	}

	data, layout, err := module.Render(ctx, []byte(tree))
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &EvaluationError{Message: err.Error()}
	}

	url := s.store.Put(data, document.ContentType)
	if !module.DebuggingSupported() {
		layout = nil
	}
	return &EvaluateResult{URL: url, Layout: layout}, nil
}
