// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package artifact keeps produced documents addressable by blob URL for the
// lifetime of a process. Nothing is persisted.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
)

// Scheme prefixes every URL handed out by a Store.
const Scheme = "blob:"

// DefaultCapacity is the number of blobs a Store keeps before evicting the
// least recently used one.
const DefaultCapacity = 64

// ErrNotFound is returned for unknown, revoked or evicted URLs.
var ErrNotFound = errors.New("artifact not found")

// Blob is an immutable stored artifact.
type Blob struct {
	ID          string
	Data        []byte
	ContentType string
	Created     time.Time
}

// URL returns the blob URL of b.
func (b *Blob) URL() string {
	return Scheme + b.ID
}

// Store is an in-memory, bounded blob registry. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	blobs *lru.Cache
}

// NewStore creates a store holding at most capacity blobs. A capacity of zero
// or less uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{blobs: lru.New(capacity)}
}

// Put stores data and returns its blob URL.
func (s *Store) Put(data []byte, contentType string) string {
	blob := &Blob{
		ID:          uuid.NewString(),
		Data:        data,
		ContentType: contentType,
		Created:     time.Now(),
	}
	s.mu.Lock()
	s.blobs.Add(blob.ID, blob)
	s.mu.Unlock()
	return blob.URL()
}

// Get returns the blob for url, which may be a full blob URL or a bare id.
func (s *Store) Get(url string) (*Blob, error) {
	id := ID(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.blobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return value.(*Blob), nil
}

// Fetch returns the bytes stored under url.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := s.Get(url)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// Revoke drops url from the store. It reports whether the blob existed.
func (s *Store) Revoke(url string) bool {
	id := ID(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs.Get(id); !ok {
		return false
	}
	s.blobs.Remove(id)
	return true
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs.Len()
}

// ID strips the blob scheme from url.
func ID(url string) string {
	return strings.TrimPrefix(url, Scheme)
}
