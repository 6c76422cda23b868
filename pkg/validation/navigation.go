// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for navigation inputs.
//
// This package contains validators for values that cross trust boundaries:
// region identifiers coming from server payloads (used in element lookup)
// and URLs coming from payloads or user intents (used in history commits
// and network requests).
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// regionIDPattern matches valid region identifiers: an HTML id attribute
// restricted to a safe subset (letter first, then letters, digits,
// hyphens, underscores, colons, dots).
var regionIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_:.\-]{0,127}$`)

// ValidateRegionID validates a region identifier from a fragment payload.
//
// Region ids are used verbatim for element lookup; rejecting malformed
// ones keeps payload-controlled strings out of selector territory.
func ValidateRegionID(id string) error {
	if id == "" {
		return fmt.Errorf("region id cannot be empty")
	}
	if !regionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid region id: %q", id)
	}
	return nil
}

// SameOrigin reports whether two absolute URLs share scheme, host and port.
//
// Relative URLs are considered same-origin with anything, matching how a
// browser resolves them against the current document before comparison.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	if ua.Host == "" || ub.Host == "" {
		return true
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}

// AbsoluteURL resolves raw against base and returns the absolute form with
// the fragment stripped. The result is the canonical cache key for a URL.
func AbsoluteURL(base, raw string) (string, error) {
	bu, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	ru, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	abs := bu.ResolveReference(ru)
	abs.Fragment = ""
	return abs.String(), nil
}

// SamePage reports whether target names the page already at current,
// ignoring any fragment component.
func SamePage(current, target string) bool {
	trim := func(s string) string {
		if i := strings.IndexByte(s, '#'); i >= 0 {
			return s[:i]
		}
		return s
	}
	return trim(current) == trim(target) || trim(target) == ""
}
