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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Channel is the host side of the boundary. Each call gets a fresh key and
// is settled by the response carrying the same key, in any order.
type Channel struct {
	port   Port
	logger *zap.Logger

	sendMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Response
	err     error

	done chan struct{}
}

// NewChannel starts reading responses from port.
func NewChannel(port Port, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{
		port:    port,
		logger:  logger,
		pending: make(map[string]chan *Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call invokes method with args and waits for its result. Typed errors
// raised by the worker are rebuilt on this side.
func (c *Channel) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	encoded, err := marshalArgs(args...)
	if err != nil {
		return nil, err
	}
	req := &Request{Key: uuid.NewString(), Method: method, Args: encoded}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	reply := make(chan *Response, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.pending[req.Key] = reply
	c.mu.Unlock()

	c.sendMu.Lock()
	err = c.port.Send(ctx, frame)
	c.sendMu.Unlock()
	if err != nil {
		c.forget(req.Key)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case resp := <-reply:
		if resp.Error != nil {
			return nil, resp.Error.toError()
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.forget(req.Key)
		return nil, ctx.Err()
	case <-c.done:
		// The reply may have raced the shutdown.
		select {
		case resp := <-reply:
			if resp.Error != nil {
				return nil, resp.Error.toError()
			}
			return resp.Result, nil
		default:
		}
		return nil, c.closeErr()
	}
}

// Pending returns the number of calls waiting for a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close closes the port and waits for the read loop to exit.
func (c *Channel) Close() error {
	err := c.port.Close()
	<-c.done
	return err
}

func (c *Channel) forget(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Channel) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) readLoop() {
	defer close(c.done)
	for {
		frame, err := c.port.Recv(context.Background())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("Channel receive failed", zap.Error(err))
			}
			c.mu.Lock()
			c.err = ErrClosed
			c.pending = make(map[string]chan *Response)
			c.mu.Unlock()
			return
		}

		resp := &Response{}
		if err := json.Unmarshal(frame, resp); err != nil {
			c.logger.Warn("Dropping malformed response", zap.Error(err))
			continue
		}

		c.mu.Lock()
		reply, ok := c.pending[resp.Key]
		delete(c.pending, resp.Key)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Dropping response without pending call", zap.String("key", resp.Key))
			continue
		}
		reply <- resp
	}
}
