// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

// Kind labels what a request is for. The kind is substituted into the URL
// identifier template and sent in the request-marking header, so servers
// can tell navigations from background loads.
type Kind string

const (
	KindNavigate     Kind = "navigate"
	KindNavigateBack Kind = "navigate-back"
	KindLoad         Kind = "load"
	KindPreload      Kind = "preload"
)

// Exclusive reports whether requests of this kind are single-flight: a
// new one supersedes and cancels the prior.
func (k Kind) Exclusive() bool {
	return k == KindNavigate || k == KindNavigateBack
}
