// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import "errors"

var (
	// ErrSecurity is returned when a history commit targets a URL on a
	// different origin than the current location.
	ErrSecurity = errors.New("history: cross-origin entry rejected")

	// ErrQuota is returned when a state record exceeds the storage
	// budget of a history entry.
	ErrQuota = errors.New("history: state record exceeds entry quota")

	// ErrNotInitialized is returned by operations that require Init.
	ErrNotInitialized = errors.New("history: synchronizer not initialized")
)
