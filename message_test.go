// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToRemoteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *RemoteError
	}{
		{
			name: "Unsupported",
			err:  fmt.Errorf("init: %w", &UnsupportedVersionError{Version: "0.1.0"}),
			want: &RemoteError{Kind: KindUnsupportedVersion, Message: `init: unsupported runtime version "0.1.0"`, Version: "0.1.0"},
		},
		{
			name: "NoRuntime",
			err:  ErrNoRuntimeLoaded,
			want: &RemoteError{Kind: KindNoRuntimeLoaded, Message: "no runtime module loaded"},
		},
		{
			name: "Evaluation",
			err:  &EvaluationError{Message: "ReferenceError: x is not defined", Stack: "at snippet.jsx:1:1"},
			want: &RemoteError{Kind: KindEvaluation, Message: "ReferenceError: x is not defined", Stack: "at snippet.jsx:1:1"},
		},
		{
			name: "Timeout",
			err:  &TimeoutError{Timeout: 1500 * time.Millisecond},
			want: &RemoteError{Kind: KindTimeout, Message: "evaluation did not finish within 1.5s", Timeout: 1500},
		},
		{
			name: "Internal",
			err:  errors.New("disk on fire"),
			want: &RemoteError{Kind: KindInternal, Message: "disk on fire"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, toRemoteError(tt.err))
		})
	}
}

func TestRemoteError_Wire(t *testing.T) {
	resp := &Response{Key: "k", Error: &RemoteError{Kind: KindTimeout, Message: "slow", Timeout: 20}}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{"key":"k","error":{"kind":"Timeout","message":"slow","timeoutMs":20}}`, string(data))

	// Unknown kinds stay remote errors.
	remote := &RemoteError{Kind: "Mystery", Message: "?"}
	require.Same(t, remote, remote.toError())
	require.EqualError(t, remote, "Mystery: ?")
}

func TestMarshalArgs(t *testing.T) {
	args, err := marshalArgs("3.0.0", EvaluateRequest{Code: "1", Timeout: 5})
	require.NoError(t, err)
	require.Len(t, args, 2)
	require.JSONEq(t, `"3.0.0"`, string(args[0]))
	require.JSONEq(t, `{"code":"1","options":{"modules":false},"timeout":5}`, string(args[1]))

	_, err = marshalArgs(make(chan int))
	require.ErrorContains(t, err, "failed to encode argument 0")
}
