// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/buke/docrepl/artifact"
)

// ErrPoolFull is returned by Attach when maxWorkers are already attached.
var ErrPoolFull = errors.New("worker pool is full")

// Pool serves many remote hosts, one worker per attached port. All workers
// publish to the same artifact store.
type Pool struct {
	cfg *config

	workers       sync.Map // worker ID to *Worker
	workerCount   uint32   // Atomic: current number of attached workers
	workerIDCount uint32   // Counter for generating unique worker IDs (atomic)

	stopCleanup chan struct{}
	wg          sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool. With a worker TTL, idle workers are retired by a
// background goroutine.
func NewPool(opts ...Option) (*Pool, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:         cfg,
		stopCleanup: make(chan struct{}),
	}
	if cfg.workerTTL > 0 {
		p.wg.Add(1)
		go p.retireWorkers()
	}
	p.cfg.logger.Debug("Worker pool started",
		zap.Uint32("maxWorkers", cfg.maxWorkers),
		zap.Duration("workerTTL", cfg.workerTTL),
		zap.Duration("defaultTimeout", cfg.defaultTimeout))
	return p, nil
}

// Store returns the shared artifact store.
func (p *Pool) Store() *artifact.Store {
	return p.cfg.store
}

// Versions returns the supported versions in preference order.
func (p *Pool) Versions() []string {
	return append([]string(nil), p.cfg.versions...)
}

// Len returns the number of attached workers.
func (p *Pool) Len() int {
	return int(atomic.LoadUint32(&p.workerCount))
}

// Attach serves port with a new worker until the port closes, ctx is done,
// the worker is retired or the pool is closed.
func (p *Pool) Attach(ctx context.Context, port Port) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	newCount := atomic.AddUint32(&p.workerCount, 1)
	if newCount > p.cfg.maxWorkers {
		atomic.AddUint32(&p.workerCount, ^uint32(0)) // -1
		return ErrPoolFull
	}

	id := atomic.AddUint32(&p.workerIDCount, 1)
	w, err := newWorker(p.cfg, "worker-"+strconv.FormatUint(uint64(id), 10))
	if err != nil {
		atomic.AddUint32(&p.workerCount, ^uint32(0)) // -1
		return fmt.Errorf("worker initialization failed: %w", err)
	}

	p.workers.Store(id, w)
	p.cfg.metrics.WorkerAttached(1)
	defer func() {
		p.workers.Delete(id)
		atomic.AddUint32(&p.workerCount, ^uint32(0)) // -1
		p.cfg.metrics.WorkerAttached(-1)
		w.Close()
	}()

	// Close may have ranged over the workers before w was stored.
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	p.cfg.logger.Debug("Worker attached", zap.String("worker", w.name))
	err = w.Serve(ctx, port)
	p.cfg.logger.Debug("Worker detached",
		zap.String("worker", w.name),
		zap.Uint32("calls", w.getCallCount()))
	return err
}

// Close retires every worker and waits for them to detach.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCleanup)
	p.workers.Range(func(_, value any) bool {
		value.(*Worker).retire()
		return true
	})
	p.wg.Wait()
	return nil
}

// retireWorkers runs the background cleanup of idle workers.
func (p *Pool) retireWorkers() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.workerTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performCleanup(time.Now())
		case <-p.stopCleanup:
			return
		}
	}
}

// shouldRetire reports whether w has been idle for longer than the TTL.
func (p *Pool) shouldRetire(w *Worker, now time.Time) bool {
	return !w.busy() && now.Sub(w.getLastUsed()) > p.cfg.workerTTL
}

func (p *Pool) performCleanup(now time.Time) {
	p.workers.Range(func(_, value any) bool {
		w := value.(*Worker)
		if p.shouldRetire(w, now) {
			p.cfg.logger.Debug("Retiring idle worker",
				zap.String("worker", w.name),
				zap.Duration("idleTime", now.Sub(w.getLastUsed())))
			w.retire()
		}
		return true
	})
}
