// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bus is the fire-and-forget notification channel between the
// navigation engine and the embedding application. Delivery is best
// effort: zero subscribers is fine and no ordering is promised across
// distinct notification names.
package bus

import (
	"sync"
)

// Publisher is the side the engine sees.
type Publisher interface {
	Publish(name string, args ...any)
}

// Handler receives a published notification.
type Handler func(name string, args ...any)

// Bus is an in-process Publisher with named subscriptions.
//
// Thread Safety: safe for concurrent use. Handlers run synchronously on
// the publishing goroutine; long-running handlers should offload.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers h for notifications published under name.
// The returned func removes the subscription; calling it twice is safe.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[name] == nil {
		b.subs[name] = make(map[int]Handler)
	}
	b.subs[name][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[name]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, name)
			}
		}
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(name string, args ...any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[name]))
	for _, h := range b.subs[name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(name, args...)
	}
}

// Nop is a Publisher that discards everything. Useful as a default.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string, ...any) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Nop{}
)
