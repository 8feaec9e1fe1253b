// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/buke/docrepl"
)

// DefaultStrippedGlobals are removed from every realm before user code runs.
var DefaultStrippedGlobals = []string{
	"console",
	"require",
	"process",
	"setTimeout",
	"clearTimeout",
	"setInterval",
	"clearInterval",
	"setImmediate",
	"clearImmediate",
}

// Engine implements the docrepl.JsEngine interface using the Goja JS engine.
// Every evaluation gets its own event loop and runtime.
type Engine struct {
	Option *EngineOption // Engine configuration options.

	mu     sync.Mutex
	closed bool
	active map[*goja.Runtime]struct{}
}

// NewFactory returns a docrepl.JsEngineFactory for creating Goja engines.
// The factory is configured with the provided options.
func NewFactory(opts ...docrepl.JsEngineOption) docrepl.JsEngineFactory {
	return func() (docrepl.JsEngine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates a new Goja engine instance.
func newEngine(opts ...docrepl.JsEngineOption) (*Engine, error) {
	e := &Engine{
		Option: &EngineOption{
			StrippedGlobals: DefaultStrippedGlobals,
		},
		active: make(map[*goja.Runtime]struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return e, nil
}

// Evaluate runs script in a fresh runtime and waits for the promise it
// evaluates to. When ctx is done the runtime is interrupted.
func (e *Engine) Evaluate(ctx context.Context, script *docrepl.JsScript) (string, error) {
	if script == nil {
		return "", fmt.Errorf("script cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", docrepl.ErrClosed
	}
	e.mu.Unlock()

	// The eventloop creates its own internal goja.Runtime
	loop := eventloop.NewEventLoop()
	loop.Start()
	defer loop.Stop()

	type outcome struct {
		value string
		err   error
	}
	done := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}
	started := make(chan *goja.Runtime, 1)

	loop.RunOnLoop(func(vm *goja.Runtime) {
		started <- vm
		e.prepare(vm)

		value, err := vm.RunScript(script.FileName, script.Content)
		if err != nil {
			settle(outcome{err: convertError(err)})
			return
		}

		// Check for null or undefined BEFORE calling ToObject to prevent a panic.
		if goja.IsUndefined(value) || goja.IsNull(value) {
			settle(outcome{err: fmt.Errorf("script did not return a promise-like object")})
			return
		}
		promiseObj := value.ToObject(vm)
		then, ok := goja.AssertFunction(promiseObj.Get("then"))
		if !ok {
			settle(outcome{err: fmt.Errorf("script did not return a promise (missing .then method)")})
			return
		}

		onSuccess := func(call goja.FunctionCall) goja.Value {
			result, ok := call.Argument(0).Export().(string)
			if !ok {
				settle(outcome{err: fmt.Errorf("promise resolved with %s, not a string", call.Argument(0).String())})
			} else {
				settle(outcome{value: result})
			}
			return goja.Undefined()
		}
		onError := func(call goja.FunctionCall) goja.Value {
			settle(outcome{err: evaluationError(call.Argument(0))})
			return goja.Undefined()
		}

		if _, err := then(promiseObj, vm.ToValue(onSuccess), vm.ToValue(onError)); err != nil {
			settle(outcome{err: convertError(err)})
		}
	})

	vm := <-started
	e.track(vm, true)
	defer e.track(vm, false)

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		// Without timers a pending promise can only be waited out; an
		// interrupted runtime unwinds before the loop stops.
		vm.Interrupt(ctx.Err())
		return "", ctx.Err()
	}
}

func (e *Engine) prepare(vm *goja.Runtime) {
	if e.Option.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.Option.MaxCallStackSize)
	}
	global := vm.GlobalObject()
	for _, name := range e.Option.StrippedGlobals {
		global.Delete(name)
	}
}

func (e *Engine) track(vm *goja.Runtime, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if running {
		e.active[vm] = struct{}{}
	} else {
		delete(e.active, vm)
	}
}

// Close interrupts running evaluations and rejects new ones.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for vm := range e.active {
		vm.Interrupt(docrepl.ErrClosed)
	}
	return nil
}

func convertError(err error) error {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &docrepl.EvaluationError{
			Message: exception.Value().String(),
			Stack:   exception.String(),
		}
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &docrepl.EvaluationError{
			Message: "RangeError: Maximum call stack size exceeded",
			Stack:   overflow.Error(),
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("evaluation interrupted: %v", interrupted.Value())
	}
	return err
}

// evaluationError converts a rejection reason.
func evaluationError(reason goja.Value) error {
	out := &docrepl.EvaluationError{Message: reason.String()}
	if obj, ok := reason.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && !goja.IsNull(stack) {
			out.Stack = stack.String()
		}
	}
	return out
}
