// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigator

import "errors"

// ErrTooManyRedirects is reported when a fragment redirect chain exceeds
// the configured limit. Navigation falls back to a hard redirect instead;
// loads deliver it to their error callback.
var ErrTooManyRedirects = errors.New("navigator: redirect limit exceeded")

// Event topics published on the bus during the navigation lifecycle.
// "received" fires when a fragment response arrives, "processed" after the
// response has been fully applied to the document.
const (
	EventNavigateRequested = "navigate.requested"
	EventNavigateReceived  = "navigate.received"
	EventNavigateProcessed = "navigate.processed"
	EventNavigateError     = "navigate.error"

	EventLoadReceived  = "load.received"
	EventLoadProcessed = "load.processed"

	EventPreloadReceived = "preload.received"
)
