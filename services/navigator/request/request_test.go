// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/fragnav/services/navigator/cache"
	"github.com/driftline/fragnav/services/navigator/response"
)

func TestKind_Exclusive(t *testing.T) {
	assert.True(t, KindNavigate.Exclusive())
	assert.True(t, KindNavigateBack.Exclusive())
	assert.False(t, KindLoad.Exclusive())
	assert.False(t, KindPreload.Exclusive())
}

func TestIdentifierURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		template string
		kind     Kind
		want     string
	}{
		{
			name:     "query template on bare url",
			url:      "https://example.com/page",
			template: "?frag=__type__",
			kind:     KindNavigate,
			want:     "https://example.com/page?frag=navigate",
		},
		{
			name:     "query template merges with existing query",
			url:      "https://example.com/page?q=1",
			template: "?frag=__type__",
			kind:     KindLoad,
			want:     "https://example.com/page?q=1&frag=load",
		},
		{
			name:     "literal suffix template",
			url:      "https://example.com/page",
			template: ".frag",
			kind:     KindNavigate,
			want:     "https://example.com/page.frag",
		},
		{
			name:     "empty template leaves url unchanged",
			url:      "https://example.com/page",
			template: "",
			kind:     KindNavigate,
			want:     "https://example.com/page",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentifierURL(tt.url, tt.template, tt.kind))
		})
	}
}

func TestHandle_CancelBeatsSettle(t *testing.T) {
	cancelled := false
	h := newHandle(func() { cancelled = true })
	h.Cancel()
	assert.True(t, cancelled)
	assert.False(t, h.settle(), "settle after Cancel must report cancelled")
}

func TestHandle_SettleOnlyOnce(t *testing.T) {
	h := newHandle(func() {})
	assert.True(t, h.settle())
	assert.False(t, h.settle())
}

// delivery captures coordinator callbacks for assertions.
type delivery struct {
	success chan *response.Response
	failure chan error
	urls    chan string
}

func newDelivery() *delivery {
	return &delivery{
		success: make(chan *response.Response, 4),
		failure: make(chan error, 4),
		urls:    make(chan string, 4),
	}
}

func (d *delivery) options(kind Kind) Options {
	return Options{
		Kind: kind,
		OnSuccess: func(url string, resp *response.Response) {
			d.urls <- url
			d.success <- resp
		},
		OnError: func(url string, err error) {
			d.urls <- url
			d.failure <- err
		},
	}
}

func waitSuccess(t *testing.T, d *delivery) *response.Response {
	t.Helper()
	select {
	case resp := <-d.success:
		return resp
	case err := <-d.failure:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for success callback")
	}
	return nil
}

func waitFailure(t *testing.T, d *delivery) error {
	t.Helper()
	select {
	case err := <-d.failure:
		return err
	case <-d.success:
		t.Fatal("unexpected success")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
	return nil
}

func newTestCoordinator(serverURL string, timeout time.Duration) (*Coordinator, *cache.Memory) {
	store := cache.NewMemory()
	c := New(Config{
		IdentifierTemplate: "?frag=__type__",
		Timeout:            timeout,
		CacheTTL:           10 * time.Minute,
		Base:               func() string { return serverURL + "/" },
	}, store, NewHTTPFetcher(), nil, nil)
	return c, store
}

func TestCoordinator_FetchDecodesAndCaches(t *testing.T) {
	var kinds atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kinds.Store(r.Header.Get(HeaderRequest) + "|" + r.URL.Query().Get("frag") + "|" + r.Header.Get(HeaderReferer))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title": "A", "html": {"content": "<p>a</p>"}, "timing": {"backend": 7}}`))
	}))
	defer srv.Close()

	c, store := newTestCoordinator(srv.URL, 5*time.Second)
	d := newDelivery()

	opts := d.options(KindNavigate)
	opts.Referer = srv.URL + "/home"
	opts.NavigationStart = 12345
	h, err := c.Request(context.Background(), "/a", opts)
	require.NoError(t, err)
	require.NotNil(t, h, "cache miss returns a live handle")

	resp := waitSuccess(t, d)
	assert.Equal(t, "A", resp.Title)
	assert.Equal(t, srv.URL+"/a", <-d.urls, "callback gets the identifier-free URL")

	marked := kinds.Load().(string)
	assert.Equal(t, "navigate|navigate|"+srv.URL+"/home", marked,
		"request must carry the kind header, identifier query and referer header")

	assert.Equal(t, int64(12345), resp.Timing[response.TimingNavigationStart])
	assert.Contains(t, resp.Timing, response.TimingFetchStart)
	assert.Contains(t, resp.Timing, response.TimingResponseStart)
	assert.Contains(t, resp.Timing, response.TimingResponseEnd)
	assert.Equal(t, int64(7), resp.Timing["backend"], "payload timing keys survive")

	_, ok := store.Get(context.Background(), srv.URL+"/a")
	assert.True(t, ok, "response cached under the identifier-free absolute URL")
}

func TestCoordinator_CacheHitSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network hit on a cached URL")
	}))
	defer srv.Close()

	c, store := newTestCoordinator(srv.URL, 5*time.Second)
	store.Set(context.Background(), srv.URL+"/a",
		&response.Response{Title: "Cached", Timing: map[string]int64{"backend": 3}}, time.Minute)

	d := newDelivery()
	opts := d.options(KindNavigate)
	opts.NavigationStart = 500
	h, err := c.Request(context.Background(), "/a", opts)
	require.NoError(t, err)
	assert.Nil(t, h, "cache hits deliver synchronously with no handle")

	resp := waitSuccess(t, d)
	assert.Equal(t, "Cached", resp.Title)
	assert.Equal(t, int64(500), resp.Timing[response.TimingNavigationStart],
		"navigationStart is the caller's, not the lookup time")
	assert.Equal(t, resp.Timing[response.TimingFetchStart], resp.Timing[response.TimingResponseEnd],
		"synthesized network marks collapse to the lookup instant")
	assert.Equal(t, int64(3), resp.Timing["backend"])
}

func TestCoordinator_CancelPreventsCallbacks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"title": "late"}`))
	}))
	defer srv.Close()
	defer close(release)

	c, _ := newTestCoordinator(srv.URL, 5*time.Second)
	d := newDelivery()

	h, err := c.Request(context.Background(), "/slow", d.options(KindNavigate))
	require.NoError(t, err)
	require.NotNil(t, h)

	h.Cancel()

	select {
	case <-d.success:
		t.Fatal("success callback after Cancel")
	case <-d.failure:
		t.Fatal("error callback after Cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCoordinator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, store := newTestCoordinator(srv.URL, 5*time.Second)
	d := newDelivery()

	_, err := c.Request(context.Background(), "/broken", d.options(KindLoad))
	require.NoError(t, err)

	reqErr := waitFailure(t, d)
	assert.ErrorContains(t, reqErr, "status 500")

	_, ok := store.Get(context.Background(), srv.URL+"/broken")
	assert.False(t, ok, "failures are never cached")
}

func TestCoordinator_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, _ := newTestCoordinator(srv.URL, 50*time.Millisecond)
	d := newDelivery()

	_, err := c.Request(context.Background(), "/hang", d.options(KindNavigate))
	require.NoError(t, err)

	reqErr := waitFailure(t, d)
	assert.ErrorIs(t, reqErr, context.DeadlineExceeded)
}

func TestCoordinator_MultipartBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderResponseType, ResponseTypeMultipart)
		w.Write([]byte("[\r\n" +
			`{"title": "Parts"}` + ",\r\n" +
			`{"html": {"content": "<p>p</p>"}}` + "\r\n]\r\n"))
	}))
	defer srv.Close()

	c, _ := newTestCoordinator(srv.URL, 5*time.Second)
	d := newDelivery()

	_, err := c.Request(context.Background(), "/multi", d.options(KindLoad))
	require.NoError(t, err)

	resp := waitSuccess(t, d)
	assert.Equal(t, "Parts", resp.Title)
	assert.Equal(t, "<p>p</p>", resp.HTML["content"])
}

func TestCoordinator_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": `))
	}))
	defer srv.Close()

	c, store := newTestCoordinator(srv.URL, 5*time.Second)
	d := newDelivery()

	_, err := c.Request(context.Background(), "/bad", d.options(KindNavigate))
	require.NoError(t, err)

	assert.Error(t, waitFailure(t, d))
	_, ok := store.Get(context.Background(), srv.URL+"/bad")
	assert.False(t, ok, "parse failures are never cached")
}

func TestCoordinator_SharedFetchForNonExclusiveKinds(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`{"title": "Shared"}`))
	}))
	defer srv.Close()

	c, _ := newTestCoordinator(srv.URL, 5*time.Second)

	const callers = 4
	deliveries := make([]*delivery, callers)
	for i := range deliveries {
		deliveries[i] = newDelivery()
		_, err := c.Request(context.Background(), "/shared", deliveries[i].options(KindPreload))
		require.NoError(t, err)
	}

	// Give every caller time to join the in-flight fetch, then finish it.
	time.Sleep(100 * time.Millisecond)
	close(release)

	for _, d := range deliveries {
		resp := waitSuccess(t, d)
		assert.Equal(t, "Shared", resp.Title)
	}
	assert.Equal(t, int32(1), hits.Load(), "concurrent identical preloads share one fetch")
}

func TestCoordinator_InvalidURL(t *testing.T) {
	c, _ := newTestCoordinator("http://example.com", time.Second)
	_, err := c.Request(context.Background(), "http://bad url with spaces\x7f", Options{Kind: KindNavigate})
	assert.Error(t, err)
}
