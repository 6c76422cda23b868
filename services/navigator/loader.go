// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
	"github.com/driftline/fragnav/services/navigator/transition"
)

// LoadOptions shapes one Load call. Both callbacks are optional.
type LoadOptions struct {
	OnSuccess func(url string, resp *response.Response)
	OnError   func(url string, err error)
}

// Loader fetches and applies fragment responses outside the exclusive
// navigation path. Loads run concurrently, never touch history, and
// follow fragment redirects up to the same cap as navigation.
//
// Thread Safety: safe for concurrent use.
type Loader struct {
	coord  *request.Coordinator
	proc   *transition.Processor
	logger *slog.Logger

	mu            sync.Mutex
	redirectLimit int
}

// NewLoader creates a Loader.
func NewLoader(coord *request.Coordinator, proc *transition.Processor, redirectLimit int, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		coord:         coord,
		proc:          proc,
		logger:        logger.With(slog.String("component", "loader")),
		redirectLimit: redirectLimit,
	}
}

// SetRedirectLimit adjusts the redirect chain cap. Hot-reload hook.
func (l *Loader) SetRedirectLimit(n int) {
	l.mu.Lock()
	l.redirectLimit = n
	l.mu.Unlock()
}

// Load retrieves url and applies the response to the document. The
// returned handle cancels callback delivery; it is nil when the response
// was served from cache and already delivered.
func (l *Loader) Load(ctx context.Context, url string, opts LoadOptions) (*request.Handle, error) {
	return l.load(ctx, url, opts, 0)
}

func (l *Loader) load(ctx context.Context, url string, opts LoadOptions, depth int) (*request.Handle, error) {
	return l.coord.Request(ctx, url, request.Options{
		Kind:         request.KindLoad,
		Notification: EventLoadReceived,
		OnSuccess: func(u string, resp *response.Response) {
			l.onResponse(ctx, u, resp, opts, depth)
		},
		OnError: func(u string, err error) {
			l.logger.Warn("load failed", "url", u, "error", err)
			if opts.OnError != nil {
				opts.OnError(u, err)
			}
		},
	})
}

func (l *Loader) onResponse(ctx context.Context, url string, resp *response.Response, opts LoadOptions, depth int) {
	if resp.IsRedirect() {
		l.mu.Lock()
		limit := l.redirectLimit
		l.mu.Unlock()
		if depth+1 > limit {
			err := fmt.Errorf("load of %s (limit %d): %w", url, limit, ErrTooManyRedirects)
			l.logger.Warn("load abandoned", "url", url, "error", err)
			if opts.OnError != nil {
				opts.OnError(url, err)
			}
			return
		}
		if _, err := l.load(ctx, resp.Redirect, opts, depth+1); err != nil && opts.OnError != nil {
			opts.OnError(url, err)
		}
		return
	}

	l.proc.Process(resp, false, EventLoadProcessed)
	if opts.OnSuccess != nil {
		opts.OnSuccess(url, resp)
	}
}
