// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedVersion is matched by every *UnsupportedVersionError.
	ErrUnsupportedVersion = errors.New("unsupported runtime version")

	// ErrNoRuntimeLoaded is returned by evaluations made before any module
	// has been loaded.
	ErrNoRuntimeLoaded = errors.New("no runtime module loaded")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("evaluation timed out")

	// ErrClosed is returned by calls on a closed session, channel or pool.
	ErrClosed = errors.New("closed")
)

// UnsupportedVersionError reports a version outside the supported set.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported runtime version %q", e.Version)
}

func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// EvaluationError carries an exception raised by user code, or a failure to
// transform or render it.
type EvaluationError struct {
	Message string
	Stack   string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

// TimeoutError is fatal: the realm that exceeded Timeout may still be
// running when it is returned.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation did not finish within %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Fatal reports whether err must be surfaced as fatal to the host.
func Fatal(err error) bool {
	return errors.Is(err, ErrTimeout)
}
