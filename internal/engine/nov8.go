//go:build windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"

	"github.com/buke/docrepl"
)

func v8Factory() (docrepl.JsEngineFactory, error) {
	return nil, errors.New("v8 engine is not available on windows")
}
