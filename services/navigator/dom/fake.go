// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dom

import (
	"strings"
	"sync"
)

// Fake is an in-memory Document for tests and headless drivers.
//
// Script execution is recorded rather than performed; embedded scripts are
// any <script>...</script> bodies found in content.
//
// Thread Safety: safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	title    string
	styles   []string
	scripts  []string // executed page-level and embedded script bodies
	prefetch []string // "kind:content" records
	elements map[string]*FakeElement
}

// NewFake creates an empty fake document.
func NewFake() *Fake {
	return &Fake{elements: make(map[string]*FakeElement)}
}

// AddRegion creates a region element with initial content. transition
// marks the region as opted into animated replacement.
func (f *Fake) AddRegion(id, html string, transition bool) *FakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	el := &FakeElement{
		doc:        f,
		id:         id,
		transition: transition,
		classes:    make(map[string]bool),
		attrs:      make(map[string]string),
		nodes:      []*fakeNode{{html: html}},
	}
	f.elements[id] = el
	return el
}

// RemoveRegion drops a region, simulating a document that no longer
// contains it.
func (f *Fake) RemoveRegion(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, id)
}

// ElementByID implements Document.
func (f *Fake) ElementByID(id string) (Element, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.elements[id]
	return el, ok
}

// SetTitle implements Document.
func (f *Fake) SetTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
}

// InstallStyles implements Document.
func (f *Fake) InstallStyles(css string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styles = append(f.styles, css)
}

// ExecuteScripts implements Document. Scripts are recorded, then done
// runs synchronously.
func (f *Fake) ExecuteScripts(js string, done func()) {
	if js != "" {
		f.mu.Lock()
		f.scripts = append(f.scripts, js)
		f.mu.Unlock()
	}
	done()
}

// Prefetch implements Document.
func (f *Fake) Prefetch(kind ResourceKind, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = append(f.prefetch, string(kind)+":"+content)
}

// Title returns the current document title.
func (f *Fake) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

// Styles returns installed style contents in order.
func (f *Fake) Styles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.styles...)
}

// Scripts returns executed script bodies in order.
func (f *Fake) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// Prefetched returns prefetch records in order.
func (f *Fake) Prefetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prefetch...)
}

// fakeNode is one child of a region: either loose content or a wrapper.
type fakeNode struct {
	class   string
	html    string
	wrapper bool
}

func (n *fakeNode) Class() string { return n.class }
func (n *fakeNode) HTML() string  { return n.html }

// FakeElement is the Element implementation backing Fake.
type FakeElement struct {
	doc        *Fake
	id         string
	transition bool
	classes    map[string]bool
	attrs      map[string]string
	nodes      []*fakeNode
}

// ID implements Element.
func (e *FakeElement) ID() string { return e.id }

// SetAttribute implements Element.
func (e *FakeElement) SetAttribute(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.attrs[name] = value
}

// Attribute returns a previously set attribute value.
func (e *FakeElement) Attribute(name string) string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.attrs[name]
}

// AddClass implements Element.
func (e *FakeElement) AddClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.classes[name] = true
}

// RemoveClass implements Element.
func (e *FakeElement) RemoveClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	delete(e.classes, name)
}

// HasClass implements Element.
func (e *FakeElement) HasClass(name string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.classes[name]
}

// SetHTML implements Element.
func (e *FakeElement) SetHTML(html string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.nodes = []*fakeNode{{html: html}}
}

// HTML implements Element. Wrapper contents render in child order.
func (e *FakeElement) HTML() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var sb strings.Builder
	for _, n := range e.nodes {
		sb.WriteString(n.html)
	}
	return sb.String()
}

// ExecuteScripts implements Element. Embedded <script> bodies in the
// element's current content are recorded on the document.
func (e *FakeElement) ExecuteScripts(done func()) {
	content := e.HTML()
	e.doc.mu.Lock()
	for _, body := range extractScripts(content) {
		e.doc.scripts = append(e.doc.scripts, body)
	}
	e.doc.mu.Unlock()
	done()
}

// TransitionAllowed implements Element.
func (e *FakeElement) TransitionAllowed() bool { return e.transition }

// WrapChildren implements Element.
func (e *FakeElement) WrapChildren(class string) Wrapper {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var sb strings.Builder
	for _, n := range e.nodes {
		sb.WriteString(n.html)
	}
	w := &fakeNode{class: class, html: sb.String(), wrapper: true}
	e.nodes = []*fakeNode{w}
	return w
}

// InsertWrapper implements Element.
func (e *FakeElement) InsertWrapper(class, html string, prepend bool) Wrapper {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	w := &fakeNode{class: class, html: html, wrapper: true}
	if prepend {
		e.nodes = append([]*fakeNode{w}, e.nodes...)
	} else {
		e.nodes = append(e.nodes, w)
	}
	return w
}

// RemoveWrapper implements Element.
func (e *FakeElement) RemoveWrapper(w Wrapper) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.removeLocked(w)
}

// Unwrap implements Element.
func (e *FakeElement) Unwrap(w Wrapper) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, n := range e.nodes {
		if Wrapper(n) == w {
			e.nodes[i] = &fakeNode{html: n.html}
			return
		}
	}
}

func (e *FakeElement) removeLocked(w Wrapper) {
	for i, n := range e.nodes {
		if Wrapper(n) == w {
			e.nodes = append(e.nodes[:i], e.nodes[i+1:]...)
			return
		}
	}
}

// extractScripts returns the bodies of <script> tags in content.
func extractScripts(content string) []string {
	var out []string
	rest := content
	for {
		open := strings.Index(rest, "<script")
		if open < 0 {
			return out
		}
		start := strings.IndexByte(rest[open:], '>')
		if start < 0 {
			return out
		}
		start += open + 1
		end := strings.Index(rest[start:], "</script>")
		if end < 0 {
			return out
		}
		out = append(out, rest[start:start+end])
		rest = rest[start+end+len("</script>"):]
	}
}

var (
	_ Document = (*Fake)(nil)
	_ Element  = (*FakeElement)(nil)
)
