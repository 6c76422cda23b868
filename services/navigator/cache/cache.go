// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache stores fetched fragment responses keyed by absolute URL.
//
// The cache is deliberately unbounded: per-entry TTL is the only eviction
// policy, and expired entries are removed lazily on lookup. Preload results
// are stored under the identifier-free absolute URL so that a later
// navigation to the same URL reuses them.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/driftline/fragnav/services/navigator/response"
)

// Store is the lookup interface shared by the in-memory cache and the
// Badger-backed persistent cache.
type Store interface {
	// Get returns a copy of the cached response for key, or false on a
	// miss. An expired entry behaves as a miss and is removed.
	Get(ctx context.Context, key string) (*response.Response, bool)

	// Set stores value under key for ttl. A ttl <= 0 disables caching:
	// nothing is stored and any prior entry is left untouched.
	Set(ctx context.Context, key string, value *response.Response, ttl time.Duration)

	// Remove deletes the entry for key if present.
	Remove(key string)

	// Close releases any resources held by the store.
	Close() error
}

type entry struct {
	value     *response.Response
	expiresAt time.Time
}

// Memory is the default in-process Store.
//
// Thread Safety: safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable for tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (*response.Response, bool) {
	start := time.Now()

	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
		recordEviction(ctx)
	}
	m.mu.Unlock()

	recordLookup(ctx, time.Since(start), ok)
	if !ok {
		return nil, false
	}
	return e.value.Clone(), true
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key string, value *response.Response, ttl time.Duration) {
	if ttl <= 0 || value == nil {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{
		value:     value.Clone(),
		expiresAt: m.now().Add(ttl),
	}
	m.mu.Unlock()
}

// Remove implements Store.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Close implements Store. The in-memory cache holds no resources.
func (m *Memory) Close() error { return nil }

// Len returns the number of live entries, counting expired ones that have
// not yet been looked up. Exposed for tests and diagnostics.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// SetClock overrides the time source. Test hook.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}
