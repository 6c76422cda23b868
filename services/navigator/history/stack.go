// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/driftline/fragnav/pkg/validation"
)

// PopEvent is delivered on every back/forward transition of the stack.
type PopEvent struct {
	URL   string
	State *Record
}

// Stack abstracts the browser history API. Implementations must reject
// cross-origin URLs with ErrSecurity and oversized state with ErrQuota.
type Stack interface {
	// Location returns the URL of the current entry.
	Location() string

	// Referrer returns the document referrer as of the initial load.
	Referrer() string

	// State returns the current entry's state record, or nil.
	State() *Record

	// PushState appends a new entry and makes it current.
	PushState(state *Record, title, url string) error

	// ReplaceState replaces the current entry in place.
	ReplaceState(state *Record, title, url string) error

	// Back moves one entry backwards, delivering a PopEvent. No-op at
	// the oldest entry.
	Back()

	// SetPopHandler installs the pop listener; nil removes it.
	SetPopHandler(func(PopEvent))
}

// DefaultStateQuota bounds the serialized size of one state record, in
// bytes. Matches the order of magnitude browsers enforce per entry.
const DefaultStateQuota = 64 * 1024

type stackEntry struct {
	url   string
	state *Record
}

// MemoryStack is an in-process Stack used by tests and the headless CLI
// driver. Pop events fire synchronously from Back/Forward.
//
// Thread Safety: safe for concurrent use, though pop handlers run on the
// calling goroutine.
type MemoryStack struct {
	mu         sync.Mutex
	referrer   string
	quota      int
	entries    []stackEntry
	index      int
	popHandler func(PopEvent)
}

// NewMemoryStack creates a stack whose initial entry is location.
func NewMemoryStack(location, referrer string) *MemoryStack {
	return &MemoryStack{
		referrer: referrer,
		quota:    DefaultStateQuota,
		entries:  []stackEntry{{url: location}},
	}
}

// SetQuota overrides the per-entry state budget. Test hook.
func (m *MemoryStack) SetQuota(bytes int) {
	m.mu.Lock()
	m.quota = bytes
	m.mu.Unlock()
}

// Location implements Stack.
func (m *MemoryStack) Location() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.index].url
}

// Referrer implements Stack.
func (m *MemoryStack) Referrer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.referrer
}

// State implements Stack.
func (m *MemoryStack) State() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.index].state.Clone()
}

// PushState implements Stack. Entries ahead of the current position are
// discarded, as a browser does.
func (m *MemoryStack) PushState(state *Record, title, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, err := m.checkLocked(state, url)
	if err != nil {
		return err
	}
	m.entries = append(m.entries[:m.index+1], stackEntry{url: resolved, state: state.Clone()})
	m.index = len(m.entries) - 1
	return nil
}

// ReplaceState implements Stack.
func (m *MemoryStack) ReplaceState(state *Record, title, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, err := m.checkLocked(state, url)
	if err != nil {
		return err
	}
	m.entries[m.index] = stackEntry{url: resolved, state: state.Clone()}
	return nil
}

// checkLocked enforces the same-origin and quota rules and resolves url
// against the current location.
func (m *MemoryStack) checkLocked(state *Record, url string) (string, error) {
	current := m.entries[m.index].url
	if url == "" {
		url = current
	}
	if !validation.SameOrigin(current, url) {
		return "", fmt.Errorf("%w: %s", ErrSecurity, url)
	}
	if state != nil && m.quota > 0 {
		encoded, err := json.Marshal(state)
		if err != nil {
			return "", fmt.Errorf("history: encode state: %w", err)
		}
		if len(encoded) > m.quota {
			return "", fmt.Errorf("%w: %d bytes", ErrQuota, len(encoded))
		}
	}
	resolved, err := validation.AbsoluteURL(current, url)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Back implements Stack.
func (m *MemoryStack) Back() {
	m.move(-1)
}

// Forward moves one entry forwards, delivering a PopEvent. Simulates the
// user pressing the forward button.
func (m *MemoryStack) Forward() {
	m.move(+1)
}

func (m *MemoryStack) move(delta int) {
	m.mu.Lock()
	next := m.index + delta
	if next < 0 || next >= len(m.entries) {
		m.mu.Unlock()
		return
	}
	m.index = next
	entry := m.entries[next]
	handler := m.popHandler
	m.mu.Unlock()

	if handler != nil {
		handler(PopEvent{URL: entry.url, State: entry.state.Clone()})
	}
}

// SetPopHandler implements Stack.
func (m *MemoryStack) SetPopHandler(h func(PopEvent)) {
	m.mu.Lock()
	m.popHandler = h
	m.mu.Unlock()
}

// Depth returns the number of entries. Test helper.
func (m *MemoryStack) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Stack = (*MemoryStack)(nil)
