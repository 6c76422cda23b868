// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package navigator drives in-page navigation: it resolves targets,
// keeps the history stack in sync, retrieves fragment responses through
// the request coordinator and applies them through the transition
// processor, falling back to a full page load when the pipeline fails.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driftline/fragnav/pkg/validation"
	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/history"
	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
	"github.com/driftline/fragnav/services/navigator/transition"
)

// Redirector performs a hard, full-page navigation. It is the escape
// hatch when the in-page pipeline cannot complete a navigation.
type Redirector interface {
	Redirect(url string)
}

// RedirectorFunc adapts a function to the Redirector interface.
type RedirectorFunc func(url string)

func (f RedirectorFunc) Redirect(url string) { f(url) }

// Controller owns the exclusive navigation path.
//
// Description: Navigate resolves the target, pushes a history entry and
// runs the fetch/process pipeline. Back/forward pops re-enter the same
// pipeline through the history callback. At most one exclusive request
// is in flight; starting a navigation cancels the previous one.
//
// Thread Safety: safe for concurrent use.
type Controller struct {
	coord      *request.Coordinator
	hist       *history.Synchronizer
	proc       *transition.Processor
	redirector Redirector
	bus        bus.Publisher
	logger     *slog.Logger

	mu            sync.Mutex
	redirectLimit int
	handle        *request.Handle
	generation    uint64
	pendingStart  int64
	pendingRefer  string
	now           func() time.Time
}

// NewController wires the navigation path. publisher may be nil.
func NewController(
	coord *request.Coordinator,
	hist *history.Synchronizer,
	proc *transition.Processor,
	redirector Redirector,
	publisher bus.Publisher,
	redirectLimit int,
	logger *slog.Logger,
) *Controller {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		coord:         coord,
		hist:          hist,
		proc:          proc,
		redirector:    redirector,
		bus:           publisher,
		logger:        logger.With(slog.String("component", "navigator")),
		redirectLimit: redirectLimit,
		now:           time.Now,
	}
}

// SetRedirectLimit adjusts the redirect chain cap. Hot-reload hook.
func (c *Controller) SetRedirectLimit(n int) {
	c.mu.Lock()
	c.redirectLimit = n
	c.mu.Unlock()
}

// Start activates history synchronization. Pop events (back/forward
// buttons) flow into the navigation pipeline from here on.
func (c *Controller) Start() {
	c.hist.Init(c.onHistory, c.onHistoryError)
}

// Stop cancels any in-flight navigation and detaches from history.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
	c.hist.Dispose()
}

// Navigate performs an in-page navigation to url.
//
// Edge cases: an empty or same-page target (differing only in fragment)
// is a no-op. A history commit rejection (cross-origin target, oversized
// state) falls back to a hard redirect instead of failing silently.
func (c *Controller) Navigate(url string) error {
	if url == "" {
		return nil
	}
	absURL, err := c.coord.AbsoluteURL(url)
	if err != nil {
		return fmt.Errorf("resolving navigation target: %w", err)
	}

	last := c.hist.LastURL()
	if last != "" && validation.SamePage(last, absURL) {
		c.logger.Debug("same-page navigation skipped", "url", absURL)
		return nil
	}

	c.mu.Lock()
	c.pendingStart = c.now().UnixMilli()
	c.pendingRefer = last
	c.mu.Unlock()

	c.bus.Publish(EventNavigateRequested, absURL)

	// Add dispatches onHistory synchronously, which starts the fetch.
	if err := c.hist.Add(absURL, nil, true); err != nil {
		c.logger.Warn("history commit rejected, falling back to hard redirect",
			"url", absURL, "error", err)
		c.redirector.Redirect(absURL)
	}
	return nil
}

// onHistory is the single entry point for both Navigate-driven commits
// and browser back/forward pops.
func (c *Controller) onHistory(url string, record *history.Record) {
	isBack := false
	referer := ""
	if record != nil {
		isBack = record.Back
		referer = record.Current
	}
	c.mu.Lock()
	start := c.pendingStart
	if referer == "" {
		referer = c.pendingRefer
	}
	c.pendingStart = 0
	c.pendingRefer = ""
	c.mu.Unlock()
	if start == 0 {
		start = c.now().UnixMilli()
	}

	c.doNavigate(url, referer, isBack, start, 0)
}

func (c *Controller) onHistoryError(err error) {
	c.logger.Warn("history synchronization error", "error", err)
}

// doNavigate runs one hop of the navigation pipeline. depth counts
// resolved redirects for this logical navigation.
func (c *Controller) doNavigate(url, referer string, isBack bool, navStart int64, depth int) {
	kind := request.KindNavigate
	if isBack {
		kind = request.KindNavigateBack
	}

	// Cancel the previous exclusive request before issuing the next so a
	// stale response can never land after the new one's.
	c.mu.Lock()
	prev := c.handle
	c.handle = nil
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	h, err := c.coord.Request(context.Background(), url, request.Options{
		Kind:            kind,
		Notification:    EventNavigateReceived,
		NavigationStart: navStart,
		Referer:         referer,
		OnSuccess: func(u string, resp *response.Response) {
			c.onResponse(u, resp, referer, isBack, navStart, depth)
		},
		OnError: func(u string, err error) {
			c.onFailure(u, err)
		},
	})
	if err != nil {
		c.onFailure(url, err)
		return
	}

	// A fast completion (a cache-hit redirect resolves synchronously
	// inside Request) can recurse through doNavigate before this frame
	// resumes; only the newest invocation may own the handle slot.
	c.mu.Lock()
	if c.generation == gen {
		c.handle = h
	}
	c.mu.Unlock()
}

// onResponse applies a navigation response, resolving redirects first.
func (c *Controller) onResponse(url string, resp *response.Response, referer string, isBack bool, navStart int64, depth int) {
	if resp.IsRedirect() {
		c.followRedirect(url, resp.Redirect, referer, isBack, navStart, depth)
		return
	}
	c.proc.Process(resp, isBack, EventNavigateProcessed)
}

// followRedirect rewrites the current history entry to the redirect
// target and re-enters the pipeline. The chain is capped; past the cap
// the target is loaded with a hard redirect.
func (c *Controller) followRedirect(from, target, referer string, isBack bool, navStart int64, depth int) {
	c.mu.Lock()
	limit := c.redirectLimit
	c.mu.Unlock()

	absTarget, err := c.coord.AbsoluteURL(target)
	if err != nil {
		c.onFailure(from, fmt.Errorf("resolving redirect target %q: %w", target, err))
		return
	}
	if depth+1 > limit {
		c.logger.Warn("redirect limit exceeded, falling back to hard redirect",
			"url", absTarget, "depth", depth+1, "limit", limit)
		c.redirector.Redirect(absTarget)
		return
	}

	c.logger.Debug("following fragment redirect", "from", from, "to", absTarget)
	if err := c.hist.Replace(absTarget, nil, false, false); err != nil {
		c.logger.Warn("redirect history rewrite rejected", "url", absTarget, "error", err)
		c.redirector.Redirect(absTarget)
		return
	}
	c.doNavigate(absTarget, referer, isBack, navStart, depth+1)
}

// onFailure abandons the in-page pipeline for a hard load of the target.
func (c *Controller) onFailure(url string, err error) {
	c.logger.Warn("navigation failed, falling back to hard redirect",
		"url", url, "error", err)
	c.bus.Publish(EventNavigateError, url, err)
	c.redirector.Redirect(url)
}
