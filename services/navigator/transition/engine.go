// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transition

import (
	"log/slog"
	"sync"
	"time"

	"github.com/driftline/fragnav/services/navigator/dom"
)

// Step is one phase of a region transition. Steps run strictly in order;
// only StepRemoveCurrentAndUnwrap is time-delayed.
type Step int

const (
	// StepInsertPending wraps the region's existing children in a
	// "current" wrapper and inserts a "pending" wrapper holding the new
	// content. Insertion order flips for back navigation.
	StepInsertPending Step = iota

	// StepApplyParentClass adds the region-level classes selecting the
	// forward or reverse transition styling.
	StepApplyParentClass

	// StepRemoveCurrentAndUnwrap runs after the configured duration: it
	// drops the current wrapper, removes the region-level classes and
	// splices the pending content into the region.
	StepRemoveCurrentAndUnwrap

	// StepExecuteScripts runs scripts embedded in the new content, then
	// reports completion.
	StepExecuteScripts
)

// regionState is the live transition of one region. At most one exists
// per region id; superseding it drains the remainder synchronously.
type regionState struct {
	region  dom.Element
	reverse bool
	html    string

	current dom.Wrapper
	pending dom.Wrapper

	next  Step
	timer *time.Timer
	done  func()
}

// Engine runs timed region transitions.
//
// Thread Safety: safe for concurrent use. DOM mutation happens outside
// the engine lock, on the goroutine driving the step.
type Engine struct {
	mu       sync.Mutex
	duration time.Duration
	prefix   string
	active   map[string]*regionState
	logger   *slog.Logger
}

// NewEngine creates an Engine applying classes under prefix and waiting
// duration before the unwrap step.
func NewEngine(duration time.Duration, prefix string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		duration: duration,
		prefix:   prefix,
		active:   make(map[string]*regionState),
		logger:   logger.With(slog.String("component", "transition")),
	}
}

// SetDuration adjusts the timed step for future transitions. Hot-reload
// hook; running transitions keep their scheduled delay.
func (e *Engine) SetDuration(d time.Duration) {
	e.mu.Lock()
	e.duration = d
	e.mu.Unlock()
}

func (e *Engine) classBase() string    { return e.prefix + "-transition" }
func (e *Engine) classReverse() string { return e.prefix + "-transition-reverse" }
func (e *Engine) classCurrent() string { return e.prefix + "-transition-current" }
func (e *Engine) classPending() string { return e.prefix + "-transition-pending" }

// Start begins a transition replacing region's content with html. done
// fires exactly once, after the final step. A transition already active
// on the region is drained synchronously first, including its own done.
func (e *Engine) Start(region dom.Element, html string, reverse bool, done func()) {
	id := region.ID()

	e.mu.Lock()
	old := e.active[id]
	if old != nil {
		if old.timer != nil {
			old.timer.Stop()
			old.timer = nil
		}
		delete(e.active, id)
	}
	st := &regionState{
		region:  region,
		reverse: reverse,
		html:    html,
		done:    done,
	}
	e.active[id] = st
	duration := e.duration
	e.mu.Unlock()

	if old != nil {
		e.logger.Debug("transition superseded", "region", id)
		e.drain(old)
	}

	// Immediate steps, then the timed one.
	e.step(st, StepInsertPending)
	e.step(st, StepApplyParentClass)
	st.next = StepRemoveCurrentAndUnwrap

	e.mu.Lock()
	if e.active[id] != st {
		// Superseded between the immediate steps and the schedule;
		// the superseder already drained us.
		e.mu.Unlock()
		return
	}
	st.timer = time.AfterFunc(duration, func() { e.fire(id, st) })
	e.mu.Unlock()
}

// Cancel drains the region's active transition, if any, without starting
// a new one.
func (e *Engine) Cancel(regionID string) {
	e.mu.Lock()
	st := e.active[regionID]
	if st != nil {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		delete(e.active, regionID)
	}
	e.mu.Unlock()

	if st != nil {
		e.drain(st)
	}
}

// Active reports whether a region has a live transition. Test helper.
func (e *Engine) Active(regionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[regionID]
	return ok
}

// fire is the timer callback for the delayed step.
func (e *Engine) fire(id string, st *regionState) {
	e.mu.Lock()
	if e.active[id] != st {
		// A stale timer from a superseded transition.
		e.mu.Unlock()
		return
	}
	delete(e.active, id)
	e.mu.Unlock()

	e.step(st, StepRemoveCurrentAndUnwrap)
	e.step(st, StepExecuteScripts)
}

// drain runs a dequeued transition's remaining steps synchronously,
// without timer delays. The state must already be out of the active map.
func (e *Engine) drain(st *regionState) {
	for s := st.next; s <= StepExecuteScripts; s++ {
		e.step(st, s)
	}
}

// step executes one phase and records the next.
func (e *Engine) step(st *regionState, s Step) {
	switch s {
	case StepInsertPending:
		st.current = st.region.WrapChildren(e.classCurrent())
		st.pending = st.region.InsertWrapper(e.classPending(), st.html, st.reverse)

	case StepApplyParentClass:
		st.region.AddClass(e.classBase())
		if st.reverse {
			st.region.AddClass(e.classReverse())
		}

	case StepRemoveCurrentAndUnwrap:
		st.region.RemoveWrapper(st.current)
		st.region.RemoveClass(e.classBase())
		st.region.RemoveClass(e.classReverse())
		st.region.Unwrap(st.pending)

	case StepExecuteScripts:
		st.region.ExecuteScripts(st.done)
	}
	st.next = s + 1
}
