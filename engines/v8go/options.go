//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"github.com/buke/docrepl"
)

// EngineOption holds specific configurations for the V8 engine.
type EngineOption struct {
	StrippedGlobals []string
}

// WithStrippedGlobals replaces the list of globals deleted from each context
// before user code runs.
func WithStrippedGlobals(names ...string) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		e := engine.(*Engine)
		e.Option.StrippedGlobals = append([]string(nil), names...)
		return nil
	}
}
