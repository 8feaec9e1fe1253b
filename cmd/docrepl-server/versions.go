// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"slices"

	"github.com/buke/docrepl"
)

// preferVersion moves version to the front of versions so that an init
// without a version selects it.
func preferVersion(versions []string, version string) ([]string, error) {
	if version == "" {
		return versions, nil
	}
	i := slices.Index(versions, version)
	if i < 0 {
		return nil, &docrepl.UnsupportedVersionError{Version: version}
	}
	out := make([]string, 0, len(versions))
	out = append(out, version)
	out = append(out, versions[:i]...)
	return append(out, versions[i+1:]...), nil
}
