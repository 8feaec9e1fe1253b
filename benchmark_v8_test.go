//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl_test

import (
	"testing"

	v8engine "github.com/buke/docrepl/engines/v8go"
)

func BenchmarkSession_V8(b *testing.B) {
	benchmarkSession(b, v8engine.NewFactory())
}
