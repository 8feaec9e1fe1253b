// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/metrics"
)

// Worker is the boundary side of a channel. It owns a registry, a sandbox
// and the engine they evaluate with, and answers requests read from a port.
type Worker struct {
	name     string
	registry *Registry
	sandbox  *Sandbox
	engine   JsEngine
	logger   *zap.Logger
	metrics  *metrics.Metrics

	lastUsedNano int64  // Timestamp of last finished call (atomic, nanoseconds)
	callCount    uint32 // Number of calls answered (atomic)
	inflight     int32  // Calls being handled (atomic)

	mu      sync.Mutex
	port    Port // Port being served, nil when idle
	retired bool
}

// newWorker creates a worker with its own engine and registry.
func newWorker(cfg *config, name string) (*Worker, error) {
	engine, err := cfg.engineFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create JS engine: %w", err)
	}
	registry, err := NewRegistry(cfg.versions, cfg.loaders, cfg.logger, cfg.metrics)
	if err != nil {
		engine.Close()
		return nil, err
	}
	sandbox := NewSandbox(registry, engine, cfg.store, cfg.logger, cfg.metrics)
	if cfg.defaultTimeout > 0 {
		sandbox.defaultTimeout = cfg.defaultTimeout
	}
	return &Worker{
		name:         name,
		registry:     registry,
		sandbox:      sandbox,
		engine:       engine,
		logger:       cfg.logger.With(zap.String("worker", name)),
		metrics:      cfg.metrics,
		lastUsedNano: time.Now().UnixNano(),
	}, nil
}

// getCallCount returns the number of calls answered by this worker.
func (w *Worker) getCallCount() uint32 {
	return atomic.LoadUint32(&w.callCount)
}

// getLastUsed returns the time the last call finished.
func (w *Worker) getLastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&w.lastUsedNano))
}

func (w *Worker) busy() bool {
	return atomic.LoadInt32(&w.inflight) > 0
}

// Serve answers requests from port until it is closed or ctx is done.
// Requests are handled concurrently; replies go out as each one completes.
// Calls still running when Serve returns are cancelled.
func (w *Worker) Serve(ctx context.Context, port Port) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		w.setPort(nil)
	}()
	w.setPort(port)

	var sendMu sync.Mutex
	for {
		frame, err := port.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		w.metrics.RecordFrame("in")

		req := &Request{}
		if err := json.Unmarshal(frame, req); err != nil {
			w.logger.Warn("Dropping malformed request", zap.Error(err))
			continue
		}

		wg.Add(1)
		atomic.AddInt32(&w.inflight, 1)
		go func() {
			defer wg.Done()
			resp := w.handle(ctx, req)
			data, err := json.Marshal(resp)
			if err != nil {
				data, _ = json.Marshal(&Response{Key: req.Key, Error: toRemoteError(err)})
			}
			sendMu.Lock()
			err = port.Send(ctx, data)
			sendMu.Unlock()
			if err != nil {
				w.logger.Debug("Failed to send response",
					zap.String("method", req.Method),
					zap.Error(err))
				return
			}
			w.metrics.RecordFrame("out")
		}()
	}
}

// handle executes a single request.
func (w *Worker) handle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Request handler panic",
				zap.String("method", req.Method),
				zap.Any("error", r))
			resp = &Response{
				Key:   req.Key,
				Error: toRemoteError(fmt.Errorf("panic in worker %s: %v", w.name, r)),
			}
		}
		// Update worker statistics atomically
		atomic.StoreInt64(&w.lastUsedNano, time.Now().UnixNano())
		atomic.AddUint32(&w.callCount, 1)
		atomic.AddInt32(&w.inflight, -1)
	}()

	result, err := w.dispatch(ctx, req)
	if err != nil {
		return &Response{Key: req.Key, Error: toRemoteError(err)}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return &Response{Key: req.Key, Error: toRemoteError(fmt.Errorf("failed to encode result: %w", err))}
	}
	return &Response{Key: req.Key, Result: data}
}

func (w *Worker) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case MethodInit:
		var version string
		if err := decodeArg(req.Args, 0, &version); err != nil {
			return nil, err
		}
		if version == "" {
			version = w.registry.Default()
		}
		if err := w.registry.Load(ctx, version); err != nil {
			return nil, err
		}
		return true, nil

	case MethodVersion:
		module := w.registry.Active()
		if module == nil {
			return nil, ErrNoRuntimeLoaded
		}
		return &VersionInfo{
			Version:              module.Version(),
			IsDebuggingSupported: module.DebuggingSupported(),
		}, nil

	case MethodEvaluate:
		var er EvaluateRequest
		if err := decodeArg(req.Args, 0, &er); err != nil {
			return nil, err
		}
		timeout := time.Duration(er.Timeout) * time.Millisecond
		return w.sandbox.Evaluate(ctx, er.Code, er.Options, timeout)

	default:
		// Unknown methods echo their first argument.
		if len(req.Args) == 0 {
			return nil, nil
		}
		return req.Args[0], nil
	}
}

func decodeArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return nil
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return fmt.Errorf("invalid argument %d: %w", i, err)
	}
	return nil
}

func (w *Worker) setPort(port Port) {
	w.mu.Lock()
	w.port = port
	retired := w.retired
	w.mu.Unlock()
	if port != nil && retired {
		port.Close()
	}
}

// retire closes the port being served, which ends Serve. A port handed to
// Serve afterwards is closed immediately.
func (w *Worker) retire() {
	w.mu.Lock()
	w.retired = true
	port := w.port
	w.mu.Unlock()
	if port != nil {
		port.Close()
	}
}

// Close releases the worker's engine.
func (w *Worker) Close() error {
	if w.engine == nil {
		return nil
	}
	err := w.engine.Close()
	if err != nil {
		w.logger.Error("Failed to close JS engine", zap.Error(err))
	}
	return err
}
