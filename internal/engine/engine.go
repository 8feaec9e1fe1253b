// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package engine selects a realm engine by name for the binaries.
package engine

import (
	"fmt"

	"github.com/buke/docrepl"
	gojaengine "github.com/buke/docrepl/engines/goja"
	quickjsengine "github.com/buke/docrepl/engines/quickjs-go"
)

// Engine names accepted by Factory.
const (
	Goja    = "goja"
	QuickJS = "quickjs"
	V8      = "v8"
)

// Factory returns the factory of the named engine. maxCallStack only
// applies to goja.
func Factory(name string, maxCallStack int) (docrepl.JsEngineFactory, error) {
	switch name {
	case Goja:
		return gojaengine.NewFactory(gojaengine.WithMaxCallStackSize(maxCallStack)), nil
	case QuickJS:
		return quickjsengine.NewFactory(), nil
	case V8:
		return v8Factory()
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}
