// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Command docrepl evaluates a document snippet and writes the selected page
// as a PNG image. With -watch it re-evaluates on every save.
//
//	docrepl -file invoice.jsx -page 2 -width 800 -height 1100 -out build -watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buke/docrepl/internal/logging"
)

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: opts.logLevel, Development: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "docrepl:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("docrepl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.file, "file", "", "snippet to evaluate (required)")
	fs.StringVar(&opts.version, "version", "", "runtime version, the newest when empty")
	fs.BoolVar(&opts.modules, "modules", false, "snippet uses import/export")
	fs.IntVar(&opts.page, "page", 1, "page to render, clamped to the document")
	fs.Float64Var(&opts.width, "width", 800, "container width in CSS pixels")
	fs.Float64Var(&opts.height, "height", 1100, "container height in CSS pixels")
	fs.Float64Var(&opts.dpr, "dpr", 1, "device pixel ratio")
	fs.StringVar(&opts.outDir, "out", ".", "output directory")
	fs.BoolVar(&opts.watch, "watch", false, "re-evaluate whenever the file changes")
	fs.DurationVar(&opts.timeout, "timeout", 20*time.Second, "evaluation timeout")
	fs.StringVar(&opts.engine, "engine", "goja", "realm engine: goja, quickjs or v8")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.file == "" {
		fs.Usage()
		return options{}, errors.New("-file is required")
	}
	if opts.width <= 0 || opts.height <= 0 {
		return options{}, fmt.Errorf("invalid container %gx%g", opts.width, opts.height)
	}
	if opts.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be positive, got %s", opts.timeout)
	}
	return opts, nil
}
