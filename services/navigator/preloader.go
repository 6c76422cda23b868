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

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
	"github.com/driftline/fragnav/services/navigator/transition"
)

// Preloader warms the response cache and resource hints for likely
// navigation targets. Preloads share in-flight fetches, are rate limited
// so they never crowd out foreground traffic, and only preprocess the
// response: nothing visible changes. Fragment redirects are followed to
// the same cap as loads, so the final target is what gets cached.
//
// Thread Safety: safe for concurrent use.
type Preloader struct {
	coord   *request.Coordinator
	proc    *transition.Processor
	limiter *rate.Limiter
	logger  *slog.Logger

	mu            sync.Mutex
	redirectLimit int
}

// NewPreloader creates a Preloader issuing at most perSecond requests per
// second with the given burst.
func NewPreloader(coord *request.Coordinator, proc *transition.Processor, perSecond float64, burst int, redirectLimit int, logger *slog.Logger) *Preloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preloader{
		coord:         coord,
		proc:          proc,
		limiter:       rate.NewLimiter(preloadLimit(perSecond), burst),
		logger:        logger.With(slog.String("component", "preloader")),
		redirectLimit: redirectLimit,
	}
}

// SetRate adjusts the request rate. Hot-reload hook.
func (p *Preloader) SetRate(perSecond float64, burst int) {
	p.limiter.SetLimit(preloadLimit(perSecond))
	p.limiter.SetBurst(burst)
}

// SetRedirectLimit adjusts the redirect chain cap. Hot-reload hook.
func (p *Preloader) SetRedirectLimit(n int) {
	p.mu.Lock()
	p.redirectLimit = n
	p.mu.Unlock()
}

// preloadLimit maps the config convention (zero = unlimited) onto the
// limiter's.
func preloadLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// Preload warms the cache for every url, fanning out under the rate
// limit and waiting for all of them. Fragment redirect chains are chased
// to the configured cap so the final target lands in the cache; failures
// are collected, not fatal to the batch, and the first one is returned.
// Cancelling ctx abandons the batch.
func (p *Preloader) Preload(ctx context.Context, urls ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		url := u
		g.Go(func() error {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
			return p.preloadOne(ctx, url, 0)
		})
	}
	return g.Wait()
}

func (p *Preloader) preloadOne(ctx context.Context, url string, depth int) error {
	done := make(chan error, 1)
	_, err := p.coord.Request(ctx, url, request.Options{
		Kind:         request.KindPreload,
		Notification: EventPreloadReceived,
		OnSuccess: func(u string, resp *response.Response) {
			if resp.IsRedirect() {
				p.mu.Lock()
				limit := p.redirectLimit
				p.mu.Unlock()
				if depth+1 > limit {
					done <- fmt.Errorf("preloading %s (limit %d): %w", u, limit, ErrTooManyRedirects)
					return
				}
				done <- p.preloadOne(ctx, resp.Redirect, depth+1)
				return
			}
			p.proc.Preprocess(resp)
			done <- nil
		},
		OnError: func(u string, err error) {
			p.logger.Debug("preload failed", "url", u, "error", err)
			done <- fmt.Errorf("preloading %s: %w", u, err)
		},
	})
	if err != nil {
		return fmt.Errorf("preloading %s: %w", url, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
