// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/buke/quickjs-go"

	"github.com/buke/docrepl"
)

// DefaultStrippedGlobals are removed from every context before user code
// runs. QuickJS contexts install the os timers on the global object.
var DefaultStrippedGlobals = []string{
	"console",
	"setTimeout",
	"clearTimeout",
}

// Global slots used to hand the completion value to settleScript.
const (
	targetSlot  = "__docrepl_target"
	outcomeSlot = "__docrepl_outcome"
)

// settleScript attaches handlers to the completion value and records how it
// settles. Handlers run when the job queue is drained.
const settleScript = `(function () {
  var target = globalThis.` + targetSlot + `;
  delete globalThis.` + targetSlot + `;
  var outcome = globalThis.` + outcomeSlot + ` = { state: "pending" };
  var reject = function (reason) {
    outcome.state = "rejected";
    outcome.message = String(reason);
    outcome.stack = reason && reason.stack ? String(reason.stack) : "";
  };
  try {
    target.then(function (value) {
      if (typeof value === "string") {
        outcome.state = "fulfilled";
        outcome.value = value;
      } else {
        outcome.state = "invalid";
        outcome.message = String(value);
      }
    }, reject);
  } catch (e) {
    reject(e);
  }
})();`

// Engine implements the docrepl.JsEngine interface using QuickJS.
// Every evaluation gets its own runtime and context.
type Engine struct {
	Option *EngineOption // Engine configuration options.

	closed  atomic.Bool
	closing chan struct{}

	mu     sync.Mutex
	active int
}

// NewFactory returns a docrepl.JsEngineFactory for creating QuickJS engines.
// The factory is configured with the provided options.
func NewFactory(opts ...docrepl.JsEngineOption) docrepl.JsEngineFactory {
	return func() (docrepl.JsEngine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates a new QuickJS engine instance.
func newEngine(opts ...docrepl.JsEngineOption) (*Engine, error) {
	e := &Engine{
		Option: &EngineOption{
			GCThreshold:     -1,
			StrippedGlobals: DefaultStrippedGlobals,
		},
		closing: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return e, nil
}

// Evaluate runs script in a fresh runtime and drains its job queue until the
// promise it evaluates to settles. When ctx is done the runtime is
// interrupted.
func (e *Engine) Evaluate(ctx context.Context, script *docrepl.JsScript) (string, error) {
	if script == nil {
		return "", fmt.Errorf("script cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.closed.Load() {
		return "", docrepl.ErrClosed
	}

	e.track(1)
	defer e.track(-1)

	// NewRuntime locks the calling goroutine to its thread.
	rt := quickjs.NewRuntime(e.runtimeOptions()...)
	defer runtime.UnlockOSThread()
	defer rt.Close()
	rt.SetInterruptHandler(func() int {
		if ctx.Err() != nil || e.closed.Load() {
			return 1
		}
		return 0
	})

	qctx := rt.NewContext()
	defer qctx.Close()
	e.prepare(qctx)

	value := qctx.Eval(script.Content, quickjs.EvalFileName(script.FileName))
	if value.IsException() {
		value.Free()
		err := qctx.Exception()
		if cause := e.interrupted(ctx); cause != nil {
			return "", cause
		}
		return "", convertError(err)
	}
	if value.IsUndefined() || value.IsNull() {
		value.Free()
		return "", fmt.Errorf("script did not return a promise-like object")
	}
	then := value.Get("then")
	thenable := then.IsFunction()
	then.Free()
	if !thenable {
		value.Free()
		return "", fmt.Errorf("script did not return a promise (missing .then method)")
	}

	// Set takes ownership of value.
	qctx.Globals().Set(targetSlot, value)
	res := qctx.Eval(settleScript, quickjs.EvalFileName("settle.js"))
	failed := res.IsException()
	res.Free()
	if failed {
		return "", fmt.Errorf("failed to attach settle handlers: %w", qctx.Exception())
	}
	qctx.Loop()

	if cause := e.interrupted(ctx); cause != nil {
		return "", cause
	}

	outcome := qctx.Globals().Get(outcomeSlot)
	defer outcome.Free()
	switch field(outcome, "state") {
	case "fulfilled":
		return field(outcome, "value"), nil
	case "rejected":
		return "", &docrepl.EvaluationError{
			Message: field(outcome, "message"),
			Stack:   field(outcome, "stack"),
		}
	case "invalid":
		return "", fmt.Errorf("promise resolved with %s, not a string", field(outcome, "message"))
	}

	// Without timers nothing is left to settle the promise.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-e.closing:
		return "", docrepl.ErrClosed
	}
}

func (e *Engine) runtimeOptions() []quickjs.Option {
	opts := []quickjs.Option{
		quickjs.WithGCThreshold(e.Option.GCThreshold),
	}
	if e.Option.MemoryLimit > 0 {
		opts = append(opts, quickjs.WithMemoryLimit(e.Option.MemoryLimit))
	}
	if e.Option.MaxStackSize > 0 {
		opts = append(opts, quickjs.WithMaxStackSize(e.Option.MaxStackSize))
	}
	return opts
}

func (e *Engine) prepare(qctx *quickjs.Context) {
	global := qctx.Globals()
	for _, name := range e.Option.StrippedGlobals {
		global.Delete(name)
	}
}

// interrupted reports why the runtime was stopped, if it was.
func (e *Engine) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.closed.Load() {
		return docrepl.ErrClosed
	}
	return nil
}

func (e *Engine) track(delta int) {
	e.mu.Lock()
	e.active += delta
	e.mu.Unlock()
}

// Close interrupts running evaluations and rejects new ones.
func (e *Engine) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closing)
	}
	return nil
}

func field(obj *quickjs.Value, name string) string {
	v := obj.Get(name)
	defer v.Free()
	if v.IsUndefined() || v.IsNull() {
		return ""
	}
	return v.ToString()
}

func convertError(err error) error {
	var jsErr *quickjs.Error
	if errors.As(err, &jsErr) {
		return &docrepl.EvaluationError{
			Message: jsErr.Error(),
			Stack:   jsErr.Stack,
		}
	}
	if err == nil {
		return &docrepl.EvaluationError{Message: "uncaught exception"}
	}
	return &docrepl.EvaluationError{Message: err.Error()}
}
