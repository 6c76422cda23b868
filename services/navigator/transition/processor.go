// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transition applies fragment responses to the page: style and
// title installation, attribute merges, per-region content swaps with an
// optional timed animation, and exactly-once page-level script execution.
package transition

import (
	"log/slog"
	"sync"

	"github.com/driftline/fragnav/pkg/validation"
	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/dom"
	"github.com/driftline/fragnav/services/navigator/response"
)

// Processor merges fragment responses into a Document.
//
// Description: Process applies a response in full (styles, title,
// attributes, region content, scripts); Preprocess only warms resources.
// Region swaps go through the Engine when the region opts into
// transitions and transitions are enabled, and are immediate otherwise.
//
// Thread Safety: safe for concurrent use; each Process call tracks its
// own completion state.
type Processor struct {
	doc    dom.Document
	engine *Engine
	bus    bus.Publisher
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
}

// NewProcessor wires a Processor. publisher may be nil.
func NewProcessor(doc dom.Document, engine *Engine, publisher bus.Publisher, enabled bool, logger *slog.Logger) *Processor {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		doc:     doc,
		engine:  engine,
		bus:     publisher,
		logger:  logger.With(slog.String("component", "transition")),
		enabled: enabled,
	}
}

// SetEnabled toggles animated transitions. Hot-reload hook.
func (p *Processor) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

func (p *Processor) transitionsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// completion counts outstanding regions for one Process call and runs the
// page-level tail exactly once, even if a region settles more than once.
type completion struct {
	mu        sync.Mutex
	remaining int
	finished  bool
	tail      func()
}

func (c *completion) settle() {
	c.mu.Lock()
	c.remaining--
	fire := c.remaining <= 0 && !c.finished
	if fire {
		c.finished = true
	}
	c.mu.Unlock()
	if fire {
		c.tail()
	}
}

// Process applies resp to the document. isBack reverses the animation
// direction. When every region has settled, page-level scripts run once
// and notification is published with resp. Redirect responses are not
// applied; resolving them is the caller's job.
func (p *Processor) Process(resp *response.Response, isBack bool, notification string) {
	if resp == nil || resp.IsRedirect() {
		return
	}

	if resp.CSS != "" {
		p.doc.InstallStyles(resp.CSS)
	}
	if resp.Title != "" {
		p.doc.SetTitle(resp.Title)
	}
	for id, attrs := range resp.Attr {
		el, ok := p.doc.ElementByID(id)
		if !ok {
			p.logger.Debug("attribute region missing", "region", id)
			continue
		}
		for name, value := range attrs {
			el.SetAttribute(name, value)
		}
	}

	done := &completion{
		remaining: len(resp.HTML),
		tail: func() {
			p.doc.ExecuteScripts(resp.JS, func() {
				p.bus.Publish(notification, resp)
			})
		},
	}

	animate := p.transitionsEnabled()
	for id, html := range resp.HTML {
		if err := validation.ValidateRegionID(id); err != nil {
			p.logger.Warn("skipping region with invalid id", "region", id, "error", err)
			done.settle()
			continue
		}
		el, ok := p.doc.ElementByID(id)
		if !ok {
			p.logger.Debug("content region missing", "region", id)
			done.settle()
			continue
		}
		if animate && el.TransitionAllowed() {
			p.engine.Start(el, html, isBack, done.settle)
			continue
		}
		el.SetHTML(html)
		el.ExecuteScripts(done.settle)
	}

	if len(resp.HTML) == 0 {
		done.settle()
	}
}

// Preprocess warms the resources a response references without touching
// page state: styles, region content scripts and page-level scripts.
func (p *Processor) Preprocess(resp *response.Response) {
	if resp == nil || resp.IsRedirect() {
		return
	}
	if resp.CSS != "" {
		p.doc.Prefetch(dom.ResourceStyle, resp.CSS)
	}
	for _, html := range resp.HTML {
		if html != "" {
			p.doc.Prefetch(dom.ResourceScript, html)
		}
	}
	if resp.JS != "" {
		p.doc.Prefetch(dom.ResourceScript, resp.JS)
	}
}
