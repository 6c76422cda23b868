// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package response defines the wire format for fragment navigation payloads.
//
// A fragment response is a JSON object with optional facets: page-wide CSS,
// per-region HTML, per-region attribute maps, page-wide JS, a document title,
// timing metadata, and a redirect target. Absent keys mean "no update for
// that facet". Responses may also arrive as a multipart stream of partial
// objects; see DecodeMultipart.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Timing milestone keys attached to a response after retrieval.
//
// NavigationStart is stamped by the caller when the user intent arrived;
// the remaining keys are stamped by the request coordinator. Cache hits
// synthesize FetchStart, ResponseStart and ResponseEnd from the lookup time.
const (
	TimingNavigationStart = "navigationStart"
	TimingFetchStart      = "fetchStart"
	TimingResponseStart   = "responseStart"
	TimingResponseEnd     = "responseEnd"
)

// Response is a structured partial-update payload for one navigation.
//
// Immutable after creation except for Timing, which is (re)computed on
// every retrieval, including cache hits.
type Response struct {
	// CSS is page-wide style content installed before regions update.
	CSS string `json:"css,omitempty"`

	// HTML maps region identifiers to replacement HTML content.
	HTML map[string]string `json:"html,omitempty"`

	// Attr maps region identifiers to attribute name/value maps.
	Attr map[string]map[string]string `json:"attr,omitempty"`

	// JS is page-wide script content executed after all regions settle.
	JS string `json:"js,omitempty"`

	// Title replaces the document title when non-empty.
	Title string `json:"title,omitempty"`

	// Timing holds millisecond timestamps keyed by the Timing* constants.
	Timing map[string]int64 `json:"timing,omitempty"`

	// Redirect, when non-empty, makes every other field advisory: the
	// response is not applied and the target URL is requested instead.
	Redirect string `json:"redirect,omitempty"`
}

// IsRedirect reports whether the response is a redirect response.
func (r *Response) IsRedirect() bool {
	return r != nil && r.Redirect != ""
}

// Clone returns a deep copy. Used by the cache so callers can attach
// fresh timing without mutating the stored entry.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{
		CSS:      r.CSS,
		JS:       r.JS,
		Title:    r.Title,
		Redirect: r.Redirect,
	}
	if r.HTML != nil {
		out.HTML = make(map[string]string, len(r.HTML))
		for k, v := range r.HTML {
			out.HTML[k] = v
		}
	}
	if r.Attr != nil {
		out.Attr = make(map[string]map[string]string, len(r.Attr))
		for region, attrs := range r.Attr {
			m := make(map[string]string, len(attrs))
			for k, v := range attrs {
				m[k] = v
			}
			out.Attr[region] = m
		}
	}
	if r.Timing != nil {
		out.Timing = make(map[string]int64, len(r.Timing))
		for k, v := range r.Timing {
			out.Timing[k] = v
		}
	}
	return out
}

// Extend merges another partial response into r. Later parts win per
// field; HTML and Attr merge per region. Used when assembling multipart
// responses in arrival order.
func (r *Response) Extend(part *Response) {
	if part == nil {
		return
	}
	if part.CSS != "" {
		r.CSS = part.CSS
	}
	if part.JS != "" {
		r.JS = part.JS
	}
	if part.Title != "" {
		r.Title = part.Title
	}
	if part.Redirect != "" {
		r.Redirect = part.Redirect
	}
	for region, html := range part.HTML {
		if r.HTML == nil {
			r.HTML = make(map[string]string)
		}
		r.HTML[region] = html
	}
	for region, attrs := range part.Attr {
		if r.Attr == nil {
			r.Attr = make(map[string]map[string]string)
		}
		if r.Attr[region] == nil {
			r.Attr[region] = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			r.Attr[region][k] = v
		}
	}
	for k, v := range part.Timing {
		if r.Timing == nil {
			r.Timing = make(map[string]int64)
		}
		r.Timing[k] = v
	}
}

// Decode parses a single-part JSON response body.
func Decode(body []byte) (*Response, error) {
	var resp Response
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode fragment response: %w", err)
	}
	return &resp, nil
}

// Multipart framing tokens. A multipart body is a JSON array streamed as
// "[\r\n" part ",\r\n" part ... "]\r\n" so that each delimiter-terminated
// chunk is independently parseable.
const (
	multipartBegin = "[\r\n"
	multipartDelim = ",\r\n"
	multipartEnd   = "]\r\n"
)

// DecodeMultipart parses a multipart response body into its parts.
//
// The parts parsed before the first malformed section are always returned;
// err is non-nil if any section failed to parse or the framing was
// truncated. A literal "null" part (used to avoid trailing commas) is
// skipped.
func DecodeMultipart(body []byte) (parts []*Response, err error) {
	s := body
	if !bytes.HasPrefix(s, []byte(multipartBegin)) {
		return nil, fmt.Errorf("decode multipart response: missing begin token")
	}
	s = s[len(multipartBegin):]

	terminated := false
	if idx := bytes.LastIndex(s, []byte(multipartEnd)); idx >= 0 {
		s = s[:idx]
		terminated = true
	} else if idx := bytes.LastIndexByte(s, ']'); idx >= 0 {
		// Tolerate a bare "]" close with no trailing CRLF.
		s = s[:idx]
		terminated = true
	}

	for _, raw := range bytes.Split(s, []byte(multipartDelim)) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		part, perr := Decode(raw)
		if perr != nil {
			return parts, fmt.Errorf("decode multipart response part %d: %w", len(parts)+1, perr)
		}
		parts = append(parts, part)
	}
	if !terminated {
		return parts, fmt.Errorf("decode multipart response: truncated body")
	}
	return parts, nil
}

// Assemble merges multipart parts into one response, in order.
func Assemble(parts []*Response) *Response {
	out := &Response{}
	for _, p := range parts {
		out.Extend(p)
	}
	return out
}
