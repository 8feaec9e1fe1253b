// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Methods exposed across the boundary.
const (
	MethodInit     = "init"
	MethodVersion  = "version"
	MethodEvaluate = "evaluate"
)

// Request is a call frame sent to a worker.
type Request struct {
	Key    string            `json:"key"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// Response settles the request with the same key. Exactly one of Result and
// Error is meaningful.
type Response struct {
	Key    string          `json:"key"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// Remote error kinds.
const (
	KindUnsupportedVersion = "UnsupportedVersion"
	KindNoRuntimeLoaded    = "NoRuntimeLoaded"
	KindEvaluation         = "Evaluation"
	KindTimeout            = "Timeout"
	KindInternal           = "Internal"
)

// RemoteError is the serialized form of an error crossing the boundary.
type RemoteError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Version string `json:"version,omitempty"`
	Timeout int64  `json:"timeoutMs,omitempty"`
}

func (e *RemoteError) Error() string {
	return e.Kind + ": " + e.Message
}

// VersionInfo is the result of the version method.
type VersionInfo struct {
	Version              string `json:"version"`
	IsDebuggingSupported bool   `json:"isDebuggingSupported"`
}

// EvaluateRequest is the argument of the evaluate method.
type EvaluateRequest struct {
	Code    string          `json:"code"`
	Options EvaluateOptions `json:"options"`
	Timeout int64           `json:"timeout,omitempty"` // milliseconds, 0 for the default
}

// EvaluateOptions tunes how a snippet is transformed.
type EvaluateOptions struct {
	Modules bool `json:"modules"` // snippet uses import/export
}

// toRemoteError serializes err for the wire.
func toRemoteError(err error) *RemoteError {
	var (
		unsupported *UnsupportedVersionError
		evaluation  *EvaluationError
		timeout     *TimeoutError
	)
	switch {
	case errors.As(err, &unsupported):
		return &RemoteError{Kind: KindUnsupportedVersion, Message: err.Error(), Version: unsupported.Version}
	case errors.Is(err, ErrNoRuntimeLoaded):
		return &RemoteError{Kind: KindNoRuntimeLoaded, Message: err.Error()}
	case errors.As(err, &evaluation):
		return &RemoteError{Kind: KindEvaluation, Message: evaluation.Message, Stack: evaluation.Stack}
	case errors.As(err, &timeout):
		return &RemoteError{Kind: KindTimeout, Message: err.Error(), Timeout: timeout.Timeout.Milliseconds()}
	}
	return &RemoteError{Kind: KindInternal, Message: err.Error()}
}

// toError rebuilds the typed error a RemoteError was made from.
func (e *RemoteError) toError() error {
	switch e.Kind {
	case KindUnsupportedVersion:
		return &UnsupportedVersionError{Version: e.Version}
	case KindNoRuntimeLoaded:
		return ErrNoRuntimeLoaded
	case KindEvaluation:
		return &EvaluationError{Message: e.Message, Stack: e.Stack}
	case KindTimeout:
		return &TimeoutError{Timeout: time.Duration(e.Timeout) * time.Millisecond}
	}
	return e
}

func marshalArgs(args ...any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}
