// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FatalReporter receives errors that leave the worker in an unknown state.
type FatalReporter interface {
	ReportFatal(err error, code string)
}

// FatalReporterFunc adapts a function to FatalReporter.
type FatalReporterFunc func(err error, code string)

func (f FatalReporterFunc) ReportFatal(err error, code string) {
	f(err, code)
}

type logReporter struct {
	logger *zap.Logger
}

// NewLogReporter logs fatal errors with a compact form of the snippet.
func NewLogReporter(logger *zap.Logger) FatalReporter {
	return &logReporter{logger: logger}
}

func (r *logReporter) ReportFatal(err error, code string) {
	sum := sha256.Sum256([]byte(code))
	r.logger.Error("Fatal evaluation error",
		zap.Error(err),
		zap.Int("codeSize", len(code)),
		zap.String("codeHash", hex.EncodeToString(sum[:8])),
		zap.String("snippet", compactSnippet(code, 240)))
}

// compactSnippet collapses whitespace and truncates to max bytes.
func compactSnippet(code string, max int) string {
	compact := strings.Join(strings.Fields(code), " ")
	if len(compact) <= max {
		return compact
	}
	for max > 0 && !utf8.RuneStart(compact[max]) {
		max--
	}
	return compact[:max] + "..."
}
