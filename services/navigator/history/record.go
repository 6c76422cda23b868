// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

// Record is the state object persisted on each history entry.
//
// Timestamp is the commit time in unix milliseconds; comparing a popped
// record's timestamp against the currently tracked one is what
// distinguishes back from forward navigation. Back and Current are only
// populated on records delivered through the pop callback.
type Record struct {
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Referer   string `json:"referer,omitempty"`

	// Back is true iff the record's timestamp is strictly older than the
	// previously tracked timestamp.
	Back bool `json:"back,omitempty"`

	// Current is the URL that was tracked before this pop.
	Current string `json:"current,omitempty"`
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// SessionState carries the synchronizer's process-wide scalars. It is an
// owned value inside Synchronizer, never a package global.
type SessionState struct {
	initialized   bool
	lastURL       string
	lastTimestamp int64
	callback      Callback
	errorCallback func(error)

	// ignoreNextPop is set immediately before a programmatic history
	// removal so the resulting pop is not reinterpreted as user
	// navigation.
	ignoreNextPop bool
}
