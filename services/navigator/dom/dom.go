// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dom declares the document collaborator boundary.
//
// The navigation engine never touches a live document directly; it drives
// these interfaces. The embedding environment supplies the real
// implementation, and Fake provides an in-memory one for tests and the
// CLI driver.
package dom

// ResourceKind classifies prefetchable resources.
type ResourceKind string

const (
	ResourceStyle  ResourceKind = "style"
	ResourceScript ResourceKind = "script"
)

// Document is the minimal surface the engine needs from a live document.
type Document interface {
	// ElementByID returns the region element for id, or false if the
	// document no longer contains it.
	ElementByID(id string) (Element, bool)

	// SetTitle replaces the document title.
	SetTitle(title string)

	// InstallStyles installs page-wide style content.
	InstallStyles(css string)

	// ExecuteScripts installs and executes page-wide script content.
	// done must be invoked exactly once, possibly asynchronously.
	ExecuteScripts(js string, done func())

	// Prefetch requests background loading of resources referenced by
	// content, without installing or executing anything.
	Prefetch(kind ResourceKind, content string)
}

// Element is a document region addressed by identifier.
type Element interface {
	ID() string

	SetAttribute(name, value string)

	AddClass(name string)
	RemoveClass(name string)
	HasClass(name string) bool

	// SetHTML replaces the element's content immediately.
	SetHTML(html string)
	// HTML returns the element's current content.
	HTML() string

	// ExecuteScripts runs scripts embedded in the element's current
	// content. done must be invoked exactly once.
	ExecuteScripts(done func())

	// TransitionAllowed reports whether this region opted into animated
	// content replacement.
	TransitionAllowed() bool

	// WrapChildren moves the element's existing children into a new
	// wrapper carrying class and returns it.
	WrapChildren(class string) Wrapper

	// InsertWrapper inserts a new wrapper carrying class and holding
	// html. With prepend true the wrapper lands before the existing
	// children, otherwise after.
	InsertWrapper(class, html string, prepend bool) Wrapper

	// RemoveWrapper removes w and everything inside it.
	RemoveWrapper(w Wrapper)

	// Unwrap splices w's children directly into the element and
	// discards the wrapper itself.
	Unwrap(w Wrapper)
}

// Wrapper is an opaque handle to a transition wrapper created by
// WrapChildren or InsertWrapper.
type Wrapper interface {
	Class() string
	HTML() string
}
