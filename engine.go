// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import "context"

// JsScript is a program evaluated by a JsEngine.
type JsScript struct {
	Content  string // Script content
	FileName string // Script file name for stack traces
}

// JsEngine evaluates scripts, each one inside a fresh realm that shares no
// state with earlier evaluations.
type JsEngine interface {
	// Evaluate runs script and waits for its completion value, which must be
	// a promise settling with a string. A rejection or uncaught exception is
	// returned as *EvaluationError. When ctx is done the realm is interrupted
	// and ctx.Err() is returned.
	Evaluate(ctx context.Context, script *JsScript) (string, error)

	// Close releases the engine's resources.
	Close() error
}

// JsEngineFactory creates JsEngine instances.
type JsEngineFactory func() (JsEngine, error)

// JsEngineOption is a function that configures a JavaScript engine
type JsEngineOption func(JsEngine) error
