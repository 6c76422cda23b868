// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request-marking headers. Servers use these (or the URL identifier) to
// decide between a fragment payload and a full HTML page.
const (
	HeaderRequest      = "X-Frag-Request"
	HeaderReferer      = "X-Frag-Referer"
	HeaderResponseType = "X-Frag-Response-Type"
)

// ResponseTypeMultipart marks a body framed as a multipart part stream.
const ResponseTypeMultipart = "multipart"

// FetchResult is what the transport hands back on completion.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Multipart  bool

	// ResponseStart/ResponseEnd are unix-millisecond marks around body
	// arrival.
	ResponseStart int64
	ResponseEnd   int64
}

// Fetcher is the HTTP transport collaborator. Timeout and cancellation
// arrive through ctx; exactly one of result or error is returned.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind Kind, referer string) (*FetchResult, error)
}

// HTTPClient is the injectable client surface, matching *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcher is the production Fetcher over net/http.
type HTTPFetcher struct {
	Client HTTPClient
}

// NewHTTPFetcher creates a fetcher over a default client. The per-request
// timeout is enforced by the coordinator through the context.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, kind Kind, referer string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fragment request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequest, string(kind))
	if referer != "" {
		req.Header.Set(HeaderReferer, referer)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	responseStart := time.Now().UnixMilli()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fragment response body: %w", err)
	}

	return &FetchResult{
		StatusCode:    resp.StatusCode,
		Body:          body,
		Multipart:     resp.Header.Get(HeaderResponseType) == ResponseTypeMultipart,
		ResponseStart: responseStart,
		ResponseEnd:   time.Now().UnixMilli(),
	}, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
