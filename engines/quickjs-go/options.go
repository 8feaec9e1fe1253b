// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"fmt"

	"github.com/buke/docrepl"
)

// EngineOption holds configuration for a QuickJS engine instance. It is
// applied to the runtime created for each evaluation.
type EngineOption struct {
	MemoryLimit     uint64 // Memory limit in bytes (0 = no limit)
	GCThreshold     int64  // GC threshold in bytes (-1 = disable, 0 = default)
	MaxStackSize    uint64 // Stack size in bytes (0 = default)
	StrippedGlobals []string
}

// WithMemoryLimit sets the memory limit of each runtime in bytes.
// If limit is 0, there is no memory limit.
func WithMemoryLimit(limit uint64) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		if e, ok := engine.(*Engine); ok {
			e.Option.MemoryLimit = limit
			return nil
		}
		return fmt.Errorf("invalid engine type for WithMemoryLimit")
	}
}

// WithGCThreshold sets the garbage collection threshold of each runtime.
// Use -1 to disable automatic GC, 0 for default, or a positive value for a custom threshold.
func WithGCThreshold(threshold int64) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		if e, ok := engine.(*Engine); ok {
			if threshold < -1 {
				return fmt.Errorf("invalid GC threshold: %d", threshold)
			}
			e.Option.GCThreshold = threshold
			return nil
		}
		return fmt.Errorf("invalid engine type for WithGCThreshold")
	}
}

// WithMaxStackSize sets the stack size of each runtime in bytes.
// If size is 0, the default stack size is used.
func WithMaxStackSize(size uint64) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		if e, ok := engine.(*Engine); ok {
			e.Option.MaxStackSize = size
			return nil
		}
		return fmt.Errorf("invalid engine type for WithMaxStackSize")
	}
}

// WithStrippedGlobals replaces the list of globals deleted from each context
// before user code runs.
func WithStrippedGlobals(names ...string) docrepl.JsEngineOption {
	return func(engine docrepl.JsEngine) error {
		if e, ok := engine.(*Engine); ok {
			e.Option.StrippedGlobals = append([]string(nil), names...)
			return nil
		}
		return fmt.Errorf("invalid engine type for WithStrippedGlobals")
	}
}
