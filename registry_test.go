// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, c *countingLoaders, versions ...string) *Registry {
	t.Helper()
	r, err := NewRegistry(versions, c.loaders(versions...), nil, nil)
	require.NoError(t, err)
	return r
}

func TestNewRegistry(t *testing.T) {
	_, err := NewRegistry(nil, nil, nil, nil)
	require.Error(t, err)

	_, err = NewRegistry([]string{"1.0.0"}, map[string]ModuleLoader{}, nil, nil)
	require.ErrorContains(t, err, "no loader")

	versions, loaders := DefaultLoaders()
	r, err := NewRegistry(versions, loaders, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "3.0.2", r.Default())
	require.Len(t, r.Versions(), 10)
}

func TestRegistry_Load(t *testing.T) {
	c := &countingLoaders{}
	r := newTestRegistry(t, c, "3.0.0", "2.0.21")
	ctx := context.Background()

	require.Nil(t, r.Active())
	require.Equal(t, StateUnloaded, r.State("3.0.0"))

	require.NoError(t, r.Load(ctx, "3.0.0"))
	require.Equal(t, StateLoaded, r.State("3.0.0"))
	require.Equal(t, "3.0.0", r.Active().Version())

	require.NoError(t, r.Load(ctx, "2.0.21"))
	require.Equal(t, "2.0.21", r.Active().Version())

	// Switching back re-activates the cached module without a fetch.
	require.NoError(t, r.Load(ctx, "3.0.0"))
	require.Equal(t, "3.0.0", r.Active().Version())
	require.Equal(t, int32(1), c.count("3.0.0"))
}

func TestRegistry_Load_Unsupported(t *testing.T) {
	r := newTestRegistry(t, &countingLoaders{}, "3.0.0")

	err := r.Load(context.Background(), "9.9.9")
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	var unsupported *UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "9.9.9", unsupported.Version)
	require.Equal(t, StateUnloaded, r.State("9.9.9"))
}

func TestRegistry_Load_FailureKeepsActive(t *testing.T) {
	c := &countingLoaders{failing: map[string]bool{"2.0.21": true}}
	r := newTestRegistry(t, c, "3.0.0", "2.0.21")
	ctx := context.Background()

	require.NoError(t, r.Load(ctx, "3.0.0"))
	err := r.Load(ctx, "2.0.21")
	require.ErrorContains(t, err, "network error")
	require.Equal(t, StateFailed, r.State("2.0.21"))
	require.Equal(t, "3.0.0", r.Active().Version())

	// A failed version is fetched again on the next request.
	c.failing["2.0.21"] = false
	require.NoError(t, r.Load(ctx, "2.0.21"))
	require.Equal(t, int32(2), c.count("2.0.21"))
	require.Equal(t, "2.0.21", r.Active().Version())
}

func TestRegistry_Load_Panic(t *testing.T) {
	r, err := NewRegistry([]string{"1.0.0"}, map[string]ModuleLoader{
		"1.0.0": func(ctx context.Context) (RuntimeModule, error) { panic("bad loader") },
	}, nil, nil)
	require.NoError(t, err)

	err = r.Load(context.Background(), "1.0.0")
	require.ErrorContains(t, err, "bad loader")
	require.Equal(t, StateFailed, r.State("1.0.0"))
}

func TestRegistry_Load_CallerCancelled(t *testing.T) {
	c := &countingLoaders{gate: make(chan struct{})}
	r := newTestRegistry(t, c, "3.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Load(ctx, "3.0.0") }()

	require.Eventually(t, func() bool { return r.State("3.0.0") == StateLoading }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The fetch itself completes for everyone else.
	close(c.gate)
	require.NoError(t, r.Load(context.Background(), "3.0.0"))
	require.Equal(t, int32(1), c.count("3.0.0"))
}

// For any number of concurrent loads of the same version, the loader runs
// exactly once and every caller observes the same outcome.
func TestRegistry_SingleFetch_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("concurrent loads share one fetch", prop.ForAll(
		func(callers int, fail bool) bool {
			c := &countingLoaders{
				failing: map[string]bool{"3.0.0": fail},
				gate:    make(chan struct{}),
			}
			r, err := NewRegistry([]string{"3.0.0"}, c.loaders("3.0.0"), nil, nil)
			if err != nil {
				return false
			}

			var wg sync.WaitGroup
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = r.Load(context.Background(), "3.0.0")
				}(i)
			}
			// Let every caller reach the in-flight load before it settles.
			time.Sleep(time.Millisecond)
			close(c.gate)
			wg.Wait()

			if c.count("3.0.0") != 1 && !fail {
				return false
			}
			for _, err := range errs {
				if (err != nil) != fail {
					return false
				}
			}
			if fail {
				return r.State("3.0.0") == StateFailed && r.Active() == nil
			}
			return r.State("3.0.0") == StateLoaded && r.Active().Version() == "3.0.0"
		},
		gen.IntRange(1, 32),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestModuleState_String(t *testing.T) {
	require.Equal(t, "unloaded", StateUnloaded.String())
	require.Equal(t, "loading", StateLoading.String())
	require.Equal(t, "loaded", StateLoaded.String())
	require.Equal(t, "failed", StateFailed.String())
	require.Equal(t, "unknown", ModuleState(42).String())
}
