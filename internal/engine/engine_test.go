// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buke/docrepl"
)

func TestFactory(t *testing.T) {
	for _, name := range []string{Goja, QuickJS} {
		t.Run(name, func(t *testing.T) {
			factory, err := Factory(name, 64)
			require.NoError(t, err)
			e, err := factory()
			require.NoError(t, err)
			defer e.Close()

			out, err := e.Evaluate(context.Background(), &docrepl.JsScript{FileName: "factory.js", Content: `Promise.resolve("ok")`})
			require.NoError(t, err)
			require.Equal(t, "ok", out)
		})
	}

	_, err := Factory("rhino", 0)
	require.ErrorContains(t, err, `unknown engine "rhino"`)
}
