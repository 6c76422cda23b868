// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package request resolves a navigation URL into a fragment response,
// through the cache first and the network second.
//
// All completion paths (cache hit, fetch success, fetch error, timeout,
// decode failure) funnel into one callback shape. Network results are
// cached unconditionally under the identifier-free absolute URL, so a
// preload's result is reusable by a later navigation.
package request

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/driftline/fragnav/pkg/validation"
	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/cache"
	"github.com/driftline/fragnav/services/navigator/response"
)

// Config is the coordinator's tunable surface. Base supplies the current
// document location for resolving relative URLs; nil leaves them as-is.
type Config struct {
	IdentifierTemplate string
	Timeout            time.Duration
	CacheTTL           time.Duration
	Base               func() string
}

// Options shapes one request.
type Options struct {
	// Kind labels the request; exclusive kinds bypass fetch sharing so
	// they stay individually cancellable.
	Kind Kind

	// Notification, when non-empty, is published on the bus with
	// (url, response) after a successful retrieval.
	Notification string

	// NavigationStart is the unix-millisecond mark of the originating
	// user intent. Zero means "now".
	NavigationStart int64

	// Referer is sent in the request-marking referer header.
	Referer string

	OnSuccess func(url string, resp *response.Response)
	OnError   func(url string, err error)
}

// Coordinator owns the cache-then-network retrieval path.
//
// Thread Safety: safe for concurrent use.
type Coordinator struct {
	mu  sync.RWMutex
	cfg Config

	store   cache.Store
	fetcher Fetcher
	bus     bus.Publisher
	logger  *slog.Logger
	now     func() time.Time

	// flight dedupes concurrent identical non-exclusive fetches.
	flight singleflight.Group
}

// New creates a Coordinator. A nil publisher discards notifications.
func New(cfg Config, store cache.Store, fetcher Fetcher, publisher bus.Publisher, logger *slog.Logger) *Coordinator {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		bus:     publisher,
		logger:  logger.With(slog.String("component", "request")),
		now:     time.Now,
	}
}

// UpdateConfig swaps the tunables. Used by config hot reload; in-flight
// requests keep the settings they started with.
func (c *Coordinator) UpdateConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Base returns the configured location source, so reloads can carry it
// over unchanged.
func (c *Coordinator) Base() func() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Base
}

func (c *Coordinator) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetClock overrides the time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Coordinator) clock() func() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// AbsoluteURL resolves raw against the configured base. The result is
// the cache key for raw.
func (c *Coordinator) AbsoluteURL(raw string) (string, error) {
	base := ""
	if b := c.config().Base; b != nil {
		base = b()
	}
	return validation.AbsoluteURL(base, raw)
}

// Request retrieves the fragment response for rawURL.
//
// A cache hit completes synchronously through OnSuccess with synthesized
// timing and returns a nil handle: there is nothing to cancel. A miss
// starts a timed fetch and returns its live handle; Cancel on the handle
// guarantees neither callback fires afterwards.
//
// The returned error covers only malformed input; retrieval failures go
// to OnError.
func (c *Coordinator) Request(ctx context.Context, rawURL string, opts Options) (*Handle, error) {
	cfg := c.config()
	now := c.clock()

	absURL, err := c.AbsoluteURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.NavigationStart == 0 {
		opts.NavigationStart = now().UnixMilli()
	}

	ctx, span := startSpan(ctx, "Request", absURL, opts.Kind)
	defer span.End()

	if resp, ok := c.store.Get(ctx, absURL); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		recordRequest(ctx, opts.Kind, "cache")

		lookup := now().UnixMilli()
		merged := map[string]int64{
			response.TimingNavigationStart: opts.NavigationStart,
			response.TimingFetchStart:      lookup,
			response.TimingResponseStart:   lookup,
			response.TimingResponseEnd:     lookup,
		}
		for k, v := range resp.Timing {
			if _, fixed := merged[k]; !fixed {
				merged[k] = v
			}
		}
		resp.Timing = merged

		c.deliver(absURL, resp, opts)
		return nil, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	fetchURL := IdentifierURL(absURL, cfg.IdentifierTemplate, opts.Kind)

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(cancel)

	go c.run(fetchCtx, h, cfg, absURL, fetchURL, opts)
	return h, nil
}

// run is the asynchronous completion path for a cache miss.
func (c *Coordinator) run(ctx context.Context, h *Handle, cfg Config, absURL, fetchURL string, opts Options) {
	now := c.clock()
	fetchStart := now().UnixMilli()

	resp, err := c.retrieve(ctx, cfg, absURL, fetchURL, opts.Kind, opts.Referer)
	recordFetchLatency(ctx, opts.Kind, float64(now().UnixMilli()-fetchStart)/1000)

	if !h.settle() {
		// Cancelled while in flight; nothing may be delivered.
		recordRequest(ctx, opts.Kind, "cancelled")
		return
	}

	if err != nil {
		recordRequest(ctx, opts.Kind, "error")
		c.logger.Warn("fragment request failed",
			"request_id", h.ID(),
			"url", absURL,
			"kind", string(opts.Kind),
			"error", err,
		)
		if opts.OnError != nil {
			opts.OnError(absURL, err)
		}
		return
	}

	recordRequest(ctx, opts.Kind, "success")

	timing := map[string]int64{
		response.TimingNavigationStart: opts.NavigationStart,
		response.TimingFetchStart:      fetchStart,
	}
	for k, v := range resp.Timing {
		timing[k] = v
	}
	resp.Timing = timing

	c.deliver(absURL, resp, opts)
}

// retrieve fetches, decodes and caches one URL. Non-exclusive kinds share
// identical concurrent fetches through the flight group; the shared fetch
// runs under its own timeout, detached from any single caller.
func (c *Coordinator) retrieve(ctx context.Context, cfg Config, absURL, fetchURL string, kind Kind, referer string) (*response.Response, error) {
	if kind.Exclusive() {
		return c.fetchDecodeCache(ctx, cfg, absURL, fetchURL, kind, referer)
	}

	v, err, _ := c.flight.Do(absURL, func() (any, error) {
		sharedCtx := context.Background()
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			sharedCtx, cancel = context.WithTimeout(sharedCtx, cfg.Timeout)
			defer cancel()
		}
		return c.fetchDecodeCache(sharedCtx, cfg, absURL, fetchURL, kind, referer)
	})
	if err != nil {
		return nil, err
	}
	return v.(*response.Response).Clone(), nil
}

func (c *Coordinator) fetchDecodeCache(ctx context.Context, cfg Config, absURL, fetchURL string, kind Kind, referer string) (*response.Response, error) {
	if kind.Exclusive() && cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result, err := c.fetcher.Fetch(ctx, fetchURL, kind, referer)
	if err != nil {
		return nil, err
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", fetchURL, result.StatusCode)
	}

	resp, err := decodeBody(result)
	if err != nil {
		return nil, err
	}

	if resp.Timing == nil {
		resp.Timing = make(map[string]int64, 2)
	}
	resp.Timing[response.TimingResponseStart] = result.ResponseStart
	resp.Timing[response.TimingResponseEnd] = result.ResponseEnd

	// Cached under the identifier-free URL so preload results serve
	// later navigations. The store drops it when the TTL disables
	// caching.
	c.store.Set(ctx, absURL, resp, cfg.CacheTTL)
	return resp, nil
}

// decodeBody parses single-part or multipart bodies into one response.
func decodeBody(result *FetchResult) (*response.Response, error) {
	if result.Multipart {
		parts, err := response.DecodeMultipart(result.Body)
		if err != nil {
			return nil, err
		}
		return response.Assemble(parts), nil
	}
	return response.Decode(result.Body)
}

// deliver publishes the notification and invokes the success callback.
func (c *Coordinator) deliver(absURL string, resp *response.Response, opts Options) {
	if opts.Notification != "" {
		c.bus.Publish(opts.Notification, absURL, resp)
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(absURL, resp)
	}
}
