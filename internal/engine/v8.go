//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/buke/docrepl"
	v8engine "github.com/buke/docrepl/engines/v8go"
)

func v8Factory() (docrepl.JsEngineFactory, error) {
	return v8engine.NewFactory(), nil
}
