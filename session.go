// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/artifact"
)

// Session is a host connected to a private worker over an in-process pipe.
// Every call crosses the boundary as JSON frames.
type Session struct {
	cfg     *config
	worker  *Worker
	channel *Channel

	cancel context.CancelFunc
	served chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session and starts its worker.
func NewSession(opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	worker, err := newWorker(cfg, "session")
	if err != nil {
		return nil, err
	}

	hostPort, workerPort := NewPipe()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		worker:  worker,
		channel: NewChannel(hostPort, cfg.logger),
		cancel:  cancel,
		served:  make(chan struct{}),
	}
	go func() {
		defer close(s.served)
		if err := worker.Serve(ctx, workerPort); err != nil && ctx.Err() == nil {
			cfg.logger.Warn("Worker stopped", zap.Error(err))
		}
	}()
	return s, nil
}

// Store returns the artifact store evaluation results are published to.
func (s *Session) Store() *artifact.Store {
	return s.cfg.store
}

// Versions returns the supported versions in preference order.
func (s *Session) Versions() []string {
	return append([]string(nil), s.cfg.versions...)
}

// Init loads version and makes it active. An empty version selects the
// preferred one.
func (s *Session) Init(ctx context.Context, version string) error {
	_, err := s.channel.Call(ctx, MethodInit, version)
	return err
}

// Version reports the active version.
func (s *Session) Version(ctx context.Context) (*VersionInfo, error) {
	raw, err := s.channel.Call(ctx, MethodVersion)
	if err != nil {
		return nil, err
	}
	info := &VersionInfo{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("failed to decode version: %w", err)
	}
	return info, nil
}

// Evaluate runs a snippet. Layout nodes in the result carry debug ids and
// Elapsed covers the whole round trip. Fatal errors are also handed to the
// session's FatalReporter.
func (s *Session) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	start := time.Now()
	raw, err := s.channel.Call(ctx, MethodEvaluate, req)
	if err != nil {
		if Fatal(err) {
			s.cfg.reporter.ReportFatal(err, req.Code)
		}
		return nil, err
	}

	result := &EvaluateResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if result.Layout != nil {
		result.Layout.AssignIDs()
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// Call invokes an arbitrary method on the worker.
func (s *Session) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return s.channel.Call(ctx, method, args...)
}

// Close stops the worker and releases its engine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.channel.Close()
		<-s.served
		s.closeErr = s.worker.Close()
	})
	return s.closeErr
}
