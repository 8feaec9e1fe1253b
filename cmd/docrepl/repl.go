// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl"
	"github.com/buke/docrepl/internal/engine"
	"github.com/buke/docrepl/internal/watch"
	"github.com/buke/docrepl/render"
)

type options struct {
	file     string
	version  string
	modules  bool
	page     int
	width    float64
	height   float64
	dpr      float64
	outDir   string
	watch    bool
	timeout  time.Duration
	engine   string
	logLevel string
}

// repl evaluates one file into a session and keeps a controller showing
// the requested page of the latest document.
type repl struct {
	opts    options
	session *docrepl.Session
	ctrl    *render.Controller
	logger  *zap.Logger
	out     io.Writer

	pagesCount atomic.Int64
	current    string // blob URL on display
}

func newREPL(opts options, logger *zap.Logger, out io.Writer) (*repl, error) {
	factory, err := engine.Factory(opts.engine, 0)
	if err != nil {
		return nil, err
	}
	session, err := docrepl.NewSession(
		docrepl.WithJsEngine(factory),
		docrepl.WithLogger(logger),
		docrepl.WithDefaultTimeout(opts.timeout),
	)
	if err != nil {
		return nil, err
	}

	r := &repl{opts: opts, session: session, logger: logger, out: out}
	r.ctrl = render.NewController(session.Store(),
		render.WithDevicePixelRatio(opts.dpr),
		render.WithLogger(logger),
		render.WithNavigator(render.PageNavigatorFunc(func(n int) {
			r.pagesCount.Store(int64(n))
		})),
	)
	r.ctrl.Resize(render.Size{Width: opts.width, Height: opts.height})
	r.ctrl.SetPage(opts.page)
	return r, nil
}

func (r *repl) Close() error {
	r.ctrl.Close()
	return r.session.Close()
}

// outputPath is the PNG written for the source file.
func (r *repl) outputPath() string {
	base := filepath.Base(r.opts.file)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(r.opts.outDir, base+".png")
}

// evaluate runs the file once and writes the visible page. A failed
// evaluation leaves the previous document and image in place.
func (r *repl) evaluate(ctx context.Context) (string, error) {
	code, err := os.ReadFile(r.opts.file)
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	result, err := r.session.Evaluate(ctx, docrepl.EvaluateRequest{
		Code:    string(code),
		Options: docrepl.EvaluateOptions{Modules: r.opts.modules},
		Timeout: r.opts.timeout.Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	r.ctrl.SetDocument(result.URL)
	if err := r.ctrl.Settle(ctx); err != nil {
		return "", err
	}
	if r.current != "" {
		r.session.Store().Revoke(r.current)
	}
	r.current = result.URL

	view := r.ctrl.Snapshot()
	if view.Err != nil {
		return "", view.Err
	}

	path := r.outputPath()
	if err := r.writePNG(path); err != nil {
		return "", err
	}
	width, height := view.Frame.Viewport.Pixels()
	fmt.Fprintf(r.out, "page %d/%d %dx%d -> %s (%s)\n",
		view.Page, r.pagesCount.Load(), width, height, path, result.Elapsed.Round(time.Millisecond))
	return path, nil
}

func (r *repl) writePNG(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docrepl-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := r.ctrl.EncodePNG(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// run evaluates once and, when watching, again after every save until ctx
// is done. Errors after the first evaluation are printed, not returned.
func run(ctx context.Context, opts options, logger *zap.Logger, out io.Writer) error {
	r, err := newREPL(opts, logger, out)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.session.Init(ctx, opts.version); err != nil {
		return err
	}
	if _, err := r.evaluate(ctx); err != nil {
		if !opts.watch {
			return err
		}
		fmt.Fprintln(out, "error:", err)
	}
	if !opts.watch {
		return nil
	}

	fw, err := watch.NewFileWatcher(opts.file, watch.DefaultDebounce, logger)
	if err != nil {
		return err
	}
	defer fw.Close()
	fmt.Fprintf(out, "watching %s\n", opts.file)
	return fw.Watch(ctx, func() {
		if _, err := r.evaluate(ctx); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	})
}
