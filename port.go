// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	"context"
	"io"
	"sync"
)

// Port carries whole frames between a host and a worker. Send and Recv may
// be called concurrently with each other; each is called by one goroutine at
// a time.
type Port interface {
	Send(ctx context.Context, frame []byte) error
	// Recv returns io.EOF once the port or its peer is closed.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

type pipe struct {
	closed chan struct{}
	once   sync.Once
}

type pipeEnd struct {
	p   *pipe
	in  <-chan []byte
	out chan<- []byte
}

// NewPipe returns two connected in-process ports. Frames are copied on send,
// so the ends share nothing but bytes.
func NewPipe() (Port, Port) {
	p := &pipe{closed: make(chan struct{})}
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	return &pipeEnd{p: p, in: ba, out: ab}, &pipeEnd{p: p, in: ab, out: ba}
}

func (e *pipeEnd) Send(ctx context.Context, frame []byte) error {
	data := append([]byte(nil), frame...)
	select {
	case <-e.p.closed:
		return ErrClosed
	default:
	}
	select {
	case e.out <- data:
		return nil
	case <-e.p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-e.in:
		return frame, nil
	case <-e.p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *pipeEnd) Close() error {
	e.p.once.Do(func() { close(e.p.closed) })
	return nil
}
