// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"github.com/buke/docrepl"
)

// EngineOption holds configuration for a Goja engine instance.
type EngineOption struct {
	MaxCallStackSize int
	StrippedGlobals  []string
}

// WithMaxCallStackSize sets the maximum call stack size of each runtime.
// A value of 0 or less means no limit.
func WithMaxCallStackSize(size int) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		e := engine.(*Engine)
		e.Option.MaxCallStackSize = size
		return nil
	}
}

// WithStrippedGlobals replaces the list of globals deleted from each runtime
// before user code runs.
func WithStrippedGlobals(names ...string) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		e := engine.(*Engine)
		e.Option.StrippedGlobals = append([]string(nil), names...)
		return nil
	}
}
