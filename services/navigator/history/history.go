// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history keeps the browser history stack consistent with
// in-page navigation state.
//
// Every committed entry carries a timestamped Record. On a pop, comparing
// the popped record's timestamp against the tracked one classifies the
// transition as back or forward, and a pop back onto the tracked URL is
// recognized as a return to the first recorded entry and silently
// re-committed instead of being dispatched.
package history

import (
	"log/slog"
	"sync"
	"time"
)

// Callback is invoked with the target URL and its record whenever the
// synchronizer dispatches a navigation (pop-driven or doCallback commits).
type Callback func(url string, record *Record)

// Synchronizer wraps a Stack and owns all history session state.
//
// Thread Safety: safe for concurrent use. The callback runs without the
// internal lock held, so it may re-enter Add/Replace.
type Synchronizer struct {
	mu     sync.Mutex
	stack  Stack
	logger *slog.Logger
	now    func() time.Time
	state  SessionState
}

// New creates a Synchronizer over a Stack. The synchronizer is inert
// until Init.
func New(stack Stack, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		stack:  stack,
		logger: logger.With(slog.String("component", "history")),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Synchronizer) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Init activates the synchronizer.
//
// Captures the current location as the initial record, installs the pop
// listener, and re-commits the current URL carrying the document referrer
// so a later back navigation can recover it. Commit failures are routed
// to errCb, not returned. No-op when already active.
func (s *Synchronizer) Init(cb Callback, errCb func(error)) {
	s.mu.Lock()
	if s.state.initialized {
		s.mu.Unlock()
		return
	}
	s.state = SessionState{
		initialized:   true,
		callback:      cb,
		errorCallback: errCb,
	}
	referrer := s.stack.Referrer()
	s.mu.Unlock()

	s.stack.SetPopHandler(s.handlePop)

	if err := s.Replace("", &Record{Referer: referrer}, false, false); err != nil {
		s.logger.Warn("initial history commit failed", "error", err)
		if errCb != nil {
			errCb(err)
		}
	}
}

// Dispose deactivates the synchronizer and clears all session state.
// Idempotent.
func (s *Synchronizer) Dispose() {
	s.mu.Lock()
	active := s.state.initialized
	s.state = SessionState{}
	s.mu.Unlock()
	if active {
		s.stack.SetPopHandler(nil)
	}
}

// Add pushes a new history entry for url carrying record.
//
// No-op when url is empty and record is nil. An empty url resolves to the
// current location. The record is stamped with the commit time, the
// tracked url/timestamp advance, and with doCallback the registered
// callback fires synchronously after the commit.
func (s *Synchronizer) Add(url string, record *Record, doCallback bool) error {
	return s.commit(false, url, record, doCallback, false)
}

// Replace rewrites the current history entry.
//
// Same contract as Add; additionally retainState reuses the existing
// entry's state object when no explicit record is given.
func (s *Synchronizer) Replace(url string, record *Record, doCallback, retainState bool) error {
	return s.commit(true, url, record, doCallback, retainState)
}

// RemoveCurrentEntry discards the current entry by navigating back while
// swallowing the resulting pop.
func (s *Synchronizer) RemoveCurrentEntry() {
	s.mu.Lock()
	if !s.state.initialized {
		s.mu.Unlock()
		return
	}
	s.state.ignoreNextPop = true
	s.mu.Unlock()

	s.stack.Back()
}

// LastURL returns the tracked current URL.
func (s *Synchronizer) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.lastURL
}

func (s *Synchronizer) commit(replace bool, url string, record *Record, doCallback, retainState bool) error {
	if url == "" && record == nil && !retainState {
		return nil
	}

	s.mu.Lock()
	if !s.state.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	now := s.now().UnixMilli()
	s.mu.Unlock()

	if url == "" {
		url = s.stack.Location()
	}
	if replace && retainState && record == nil {
		record = s.stack.State()
	}
	if record == nil {
		record = &Record{}
	}
	record.URL = url
	record.Timestamp = now

	var err error
	if replace {
		err = s.stack.ReplaceState(record, "", url)
	} else {
		err = s.stack.PushState(record, "", url)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state.lastURL = url
	s.state.lastTimestamp = record.Timestamp
	cb := s.state.callback
	s.mu.Unlock()

	s.logger.Debug("history committed",
		"url", url,
		"replace", replace,
		"timestamp", record.Timestamp,
	)

	if doCallback && cb != nil {
		cb(url, record)
	}
	return nil
}

// handlePop classifies every back/forward transition.
func (s *Synchronizer) handlePop(ev PopEvent) {
	s.mu.Lock()
	if !s.state.initialized {
		s.mu.Unlock()
		return
	}
	if s.state.ignoreNextPop {
		s.state.ignoreNextPop = false
		s.mu.Unlock()
		return
	}
	// Entries without state cover the synthetic initial pop some
	// environments emit.
	if ev.State == nil {
		s.mu.Unlock()
		return
	}

	record := ev.State
	url := ev.URL
	if url == "" {
		url = record.URL
	}

	if url == s.state.lastURL {
		// Return to the very first recorded entry: normalize its
		// timestamp in place, no dispatch.
		record.Timestamp = s.now().UnixMilli()
		s.state.lastTimestamp = record.Timestamp
		s.mu.Unlock()

		if err := s.stack.ReplaceState(record, "", url); err != nil {
			s.logger.Warn("return-to-origin recommit failed", "url", url, "error", err)
		}
		return
	}

	record.Back = record.Timestamp < s.state.lastTimestamp
	record.Current = s.state.lastURL
	s.state.lastURL = url
	s.state.lastTimestamp = record.Timestamp
	cb := s.state.callback
	s.mu.Unlock()

	s.logger.Debug("history pop dispatched",
		"url", url,
		"back", record.Back,
		"from", record.Current,
	)

	if cb != nil {
		cb(url, record)
	}
}
