// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package document defines the artifact exchanged between a runtime module,
// which produces it, and the render pipeline, which rasterizes it.
//
// An artifact is a list of pages, each holding absolute draw operations in
// points. Artifacts are encoded as a short magic header followed by a
// zstd-compressed JSON body. The package also carries the layout tree used by
// debugging views and the font set shared by text measurement and drawing.
package document
