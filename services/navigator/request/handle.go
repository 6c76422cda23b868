// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle identifies one live network request. Cancel aborts the fetch and
// guarantees neither completion callback fires afterwards. Cache hits
// complete synchronously and have no handle.
type Handle struct {
	id      string
	cancel  context.CancelFunc
	settled atomic.Bool
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{id: uuid.NewString(), cancel: cancel}
}

// ID returns the request's unique id, used in logs and notifications.
func (h *Handle) ID() string { return h.id }

// Cancel aborts the request. Idempotent; safe after completion.
func (h *Handle) Cancel() {
	h.settled.Store(true)
	h.cancel()
}

// settle claims the right to deliver completion callbacks. Only the first
// caller of settle or Cancel wins.
func (h *Handle) settle() bool {
	return h.settled.CompareAndSwap(false, true)
}
