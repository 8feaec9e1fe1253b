// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/buke/docrepl"
)

const writeWait = 10 * time.Second

// wsPort carries boundary frames over a WebSocket connection, one text
// message per frame.
type wsPort struct {
	conn    *websocket.Conn
	limiter *rate.Limiter // nil when frames are not limited

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSPort(conn *websocket.Conn, limiter *rate.Limiter) *wsPort {
	return &wsPort{conn: conn, limiter: limiter}
}

func (p *wsPort) Send(ctx context.Context, frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	p.conn.SetWriteDeadline(deadline)
	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			return docrepl.ErrClosed
		}
		return err
	}
	return nil
}

// Recv blocks for the next frame. Incoming frames are throttled by the
// limiter; a peer that exceeds it waits instead of being dropped.
func (p *wsPort) Recv(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		p.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isClosed(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return frame, nil
	}
}

// Close may be called while Send or Recv are blocked.
func (p *wsPort) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = p.conn.Close()
	})
	return err
}

// closeWith ends the connection with a close code before any frame was
// exchanged.
func (p *wsPort) closeWith(code int, text string) {
	p.closeOnce.Do(func() {
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(time.Second))
		p.conn.Close()
	})
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
