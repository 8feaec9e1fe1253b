//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tommie/v8go"

	"github.com/buke/docrepl"
)

var (
	// Make these functions variables so they can be mocked in tests.
	v8NewIsolate = v8go.NewIsolate
	v8NewContext = v8go.NewContext
)

// DefaultStrippedGlobals are removed from every context before user code
// runs.
var DefaultStrippedGlobals = []string{"console"}

// pollInterval paces the microtask checkpoints while a promise is pending.
const pollInterval = 2 * time.Millisecond

// Engine implements the docrepl.JsEngine interface using the V8 engine.
// Every evaluation gets its own Isolate and Context.
type Engine struct {
	// Option holds the engine-specific configurations.
	Option *EngineOption

	mu     sync.Mutex
	closed bool
	active map[*v8go.Isolate]struct{}
}

// NewFactory creates a new docrepl.JsEngineFactory for the V8 engine.
func NewFactory(opts ...docrepl.JsEngineOption) docrepl.JsEngineFactory {
	return func() (docrepl.JsEngine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates a new V8 Engine instance.
func newEngine(opts ...docrepl.JsEngineOption) (*Engine, error) {
	e := &Engine{
		Option: &EngineOption{StrippedGlobals: DefaultStrippedGlobals},
		active: make(map[*v8go.Isolate]struct{}),
	}

	// Apply user-provided options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Evaluate runs script in a fresh isolate and waits for the promise it
// evaluates to. When ctx is done the isolate's execution is terminated.
func (e *Engine) Evaluate(ctx context.Context, script *docrepl.JsScript) (string, error) {
	if script == nil {
		return "", fmt.Errorf("script cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Create a new V8 Isolate
	iso := v8NewIsolate()
	if iso == nil {
		return "", fmt.Errorf("failed to create v8 isolate")
	}
	// Create a new V8 Context
	v8ctx := v8NewContext(iso)
	if v8ctx == nil {
		iso.Dispose() // Clean up isolate if context creation fails
		return "", fmt.Errorf("failed to create v8 context")
	}
	if err := e.track(iso, true); err != nil {
		v8ctx.Close()
		iso.Dispose()
		return "", err
	}

	// TerminateExecution must not race Dispose.
	var disposeMu sync.Mutex
	disposed := false
	stop := context.AfterFunc(ctx, func() {
		disposeMu.Lock()
		defer disposeMu.Unlock()
		if !disposed {
			iso.TerminateExecution()
		}
	})
	defer func() {
		stop()
		e.track(iso, false)
		disposeMu.Lock()
		disposed = true
		disposeMu.Unlock()
		v8ctx.Close()
		iso.Dispose()
	}()

	global := v8ctx.Global()
	for _, name := range e.Option.StrippedGlobals {
		global.Delete(name)
	}

	value, err := v8ctx.RunScript(script.Content, script.FileName)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", convertError(err)
	}

	promise, err := value.AsPromise()
	if err != nil {
		return "", fmt.Errorf("script did not return a promise: %w", err)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for promise.State() == v8go.Pending {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			v8ctx.PerformMicrotaskCheckpoint()
		}
	}

	result := promise.Result()
	if promise.State() == v8go.Rejected {
		return "", evaluationError(result)
	}
	if !result.IsString() {
		return "", fmt.Errorf("promise resolved with %s, not a string", result.String())
	}
	return result.String(), nil
}

func (e *Engine) track(iso *v8go.Isolate, running bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !running {
		delete(e.active, iso)
		return nil
	}
	if e.closed {
		return docrepl.ErrClosed
	}
	e.active[iso] = struct{}{}
	return nil
}

// Close terminates running evaluations and rejects new ones.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for iso := range e.active {
		iso.TerminateExecution()
	}
	return nil
}

func convertError(err error) error {
	var jsErr *v8go.JSError
	if errors.As(err, &jsErr) {
		return &docrepl.EvaluationError{Message: jsErr.Message, Stack: jsErr.StackTrace}
	}
	return err
}

// evaluationError converts a rejection reason.
func evaluationError(reason *v8go.Value) error {
	out := &docrepl.EvaluationError{Message: reason.String()}
	if !reason.IsObject() {
		return out
	}
	obj, err := reason.AsObject()
	if err != nil {
		return out
	}
	if stack, err := obj.Get("stack"); err == nil && !stack.IsNullOrUndefined() {
		out.Stack = stack.String()
	}
	return out
}
