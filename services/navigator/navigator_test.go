// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/config"
	"github.com/driftline/fragnav/services/navigator/dom"
	"github.com/driftline/fragnav/services/navigator/history"
	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
)

// hardRedirects records Redirector calls.
type hardRedirects struct {
	mu   sync.Mutex
	urls []string
}

func (r *hardRedirects) Redirect(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

func (r *hardRedirects) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

// fragmentSite is a minimal fragment server for controller tests.
func fragmentSite(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, "/page/"):
			name := strings.TrimPrefix(path, "/page/")
			json.NewEncoder(w).Encode(&response.Response{
				Title: "Page " + name,
				HTML:  map[string]string{"content": fmt.Sprintf("<p>%s</p>", name)},
			})
		case path == "/redirect":
			json.NewEncoder(w).Encode(&response.Response{
				Redirect: "/page/target",
				Title:    "never applied",
			})
		case path == "/redirect-loop":
			json.NewEncoder(w).Encode(&response.Response{Redirect: "/redirect-loop"})
		case path == "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
}

type testEnv struct {
	svc       *Service
	doc       *dom.Fake
	stack     *history.MemoryStack
	redirects *hardRedirects
	events    *bus.Bus
	processed chan string
}

func newTestEnv(t *testing.T, baseURL string, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.TransitionsEnabled = false
	cfg.RequestTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		doc:       dom.NewFake(),
		stack:     history.NewMemoryStack(baseURL+"/", ""),
		redirects: &hardRedirects{},
		events:    bus.New(),
		processed: make(chan string, 16),
	}
	env.doc.AddRegion("content", "<p>initial</p>", false)

	env.events.Subscribe(EventNavigateProcessed, func(_ string, args ...any) {
		if len(args) > 0 {
			if resp, ok := args[0].(*response.Response); ok {
				env.processed <- resp.Title
				return
			}
		}
		env.processed <- ""
	})

	svc, err := NewService(cfg, Deps{
		Document:   env.doc,
		Stack:      env.stack,
		Redirector: env.redirects,
		Bus:        env.events,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	env.svc = svc
	svc.Start()
	return env
}

func (e *testEnv) waitProcessed(t *testing.T) string {
	t.Helper()
	select {
	case title := <-e.processed:
		return title
	case <-time.After(5 * time.Second):
		t.Fatal("navigation never completed")
		return ""
	}
}

func TestController_Navigate(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("/page/a"))
	title := env.waitProcessed(t)

	assert.Equal(t, "Page a", title)
	assert.Equal(t, "Page a", env.doc.Title())
	el, _ := env.doc.ElementByID("content")
	assert.Equal(t, "<p>a</p>", el.HTML())

	assert.Equal(t, srv.URL+"/page/a", env.stack.Location(),
		"history entry committed before the fetch")
	assert.Equal(t, 2, env.stack.Depth())
	assert.Empty(t, env.redirects.all())
}

func TestController_SamePageSkipped(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("/page/a"))
	env.waitProcessed(t)
	depth := env.stack.Depth()

	require.NoError(t, env.svc.Controller.Navigate("/page/a#section"),
		"fragment-only difference is the same page")
	require.NoError(t, env.svc.Controller.Navigate("/page/a"))

	assert.Equal(t, depth, env.stack.Depth(), "no new history entries")
}

func TestController_NewNavigationCancelsPrevious(t *testing.T) {
	release := make(chan struct{})
	var slowHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/slow") {
			slowHits.Add(1)
			<-release
			json.NewEncoder(w).Encode(&response.Response{Title: "Slow"})
			return
		}
		json.NewEncoder(w).Encode(&response.Response{Title: "Fast"})
	}))
	defer srv.Close()
	defer close(release)

	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("/slow"))
	// Wait for the slow request to be in flight before superseding it.
	deadline := time.Now().Add(2 * time.Second)
	for slowHits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, env.svc.Controller.Navigate("/fast"))

	assert.Equal(t, "Fast", env.waitProcessed(t))
	assert.Equal(t, "Fast", env.doc.Title())

	// The superseded response must never land, even after it completes.
	select {
	case title := <-env.processed:
		t.Fatalf("cancelled navigation was processed: %q", title)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, "Fast", env.doc.Title())
}

func TestController_CachedRedirectKeepsLiveHandleCancellable(t *testing.T) {
	release := make(chan struct{})
	var slowHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/entry":
			json.NewEncoder(w).Encode(&response.Response{Redirect: "/slow"})
		case strings.HasPrefix(r.URL.Path, "/slow"):
			slowHits.Add(1)
			<-release
			json.NewEncoder(w).Encode(&response.Response{Title: "Slow"})
		default:
			json.NewEncoder(w).Encode(&response.Response{Title: "Fast"})
		}
	}))
	defer srv.Close()
	defer close(release)

	env := newTestEnv(t, srv.URL, nil)

	// Prime the cache so the next navigation resolves the redirect
	// synchronously inside the request call.
	primed := make(chan struct{})
	_, err := env.svc.Requests.Request(context.Background(), "/entry", request.Options{
		Kind:      request.KindLoad,
		OnSuccess: func(string, *response.Response) { close(primed) },
		OnError:   func(u string, err error) { t.Errorf("priming %s: %v", u, err) },
	})
	require.NoError(t, err)
	select {
	case <-primed:
	case <-time.After(5 * time.Second):
		t.Fatal("prime fetch never completed")
	}

	require.NoError(t, env.svc.Controller.Navigate("/entry"))
	deadline := time.Now().Add(2 * time.Second)
	for slowHits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.EqualValues(t, 1, slowHits.Load())

	// The redirect hop's in-flight request must be the one the next
	// navigation cancels, not a stale slot left by the outer hop.
	require.NoError(t, env.svc.Controller.Navigate("/fast"))
	assert.Equal(t, "Fast", env.waitProcessed(t))

	release <- struct{}{}
	select {
	case title := <-env.processed:
		t.Fatalf("superseded redirect target was processed: %q", title)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, "Fast", env.doc.Title())
}

func TestController_FollowsPayloadRedirect(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("/redirect"))
	title := env.waitProcessed(t)

	assert.Equal(t, "Page target", title, "the redirect target's response is applied")
	assert.NotEqual(t, "never applied", env.doc.Title(),
		"a redirect response's own fields are advisory")
	assert.Equal(t, srv.URL+"/page/target", env.stack.Location(),
		"history entry rewritten to the redirect target")
	assert.Equal(t, 2, env.stack.Depth(), "rewrite replaces, never stacks")
	assert.Empty(t, env.redirects.all())
}

func TestController_RedirectLimitFallsBackHard(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, func(cfg *config.Config) {
		cfg.RedirectLimit = 3
	})

	require.NoError(t, env.svc.Controller.Navigate("/redirect-loop"))

	deadline := time.Now().Add(5 * time.Second)
	for len(env.redirects.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	urls := env.redirects.all()
	require.Len(t, urls, 1, "a redirect loop ends in one hard redirect")
	assert.Equal(t, srv.URL+"/redirect-loop", urls[0])
}

func TestController_FetchFailureFallsBackHard(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	var failed atomic.Int32
	env.events.Subscribe(EventNavigateError, func(string, ...any) { failed.Add(1) })

	require.NoError(t, env.svc.Controller.Navigate("/broken"))

	deadline := time.Now().Add(5 * time.Second)
	for len(env.redirects.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	urls := env.redirects.all()
	require.Len(t, urls, 1)
	assert.Equal(t, srv.URL+"/broken", urls[0],
		"hard redirect goes to the plain URL, not the marked fetch URL")
	assert.Equal(t, int32(1), failed.Load())
}

func TestController_CrossOriginFallsBackHard(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("https://elsewhere.example/page"))

	urls := env.redirects.all()
	require.Len(t, urls, 1, "rejected history commit becomes a hard redirect")
	assert.Equal(t, "https://elsewhere.example/page", urls[0])
}

func TestController_BackNavigationServedFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := fragmentSite(t, &hits)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Controller.Navigate("/page/a"))
	env.waitProcessed(t)
	require.NoError(t, env.svc.Controller.Navigate("/page/b"))
	env.waitProcessed(t)
	require.EqualValues(t, 2, hits.Load())

	// The browser back button pops the stack; the pipeline re-enters
	// through the history callback and finds /page/a cached.
	env.stack.Back()
	assert.Equal(t, "Page a", env.waitProcessed(t))
	assert.Equal(t, "Page a", env.doc.Title())
	assert.EqualValues(t, 2, hits.Load(), "back navigation must not refetch")
}

func TestLoader_LoadAppliesResponse(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	done := make(chan string, 1)
	_, err := env.svc.Loader.Load(context.Background(), "/page/a", LoadOptions{
		OnSuccess: func(url string, resp *response.Response) { done <- resp.Title },
		OnError:   func(url string, err error) { t.Errorf("load failed: %v", err) },
	})
	require.NoError(t, err)

	select {
	case title := <-done:
		assert.Equal(t, "Page a", title)
	case <-time.After(5 * time.Second):
		t.Fatal("load never completed")
	}
	assert.Equal(t, "Page a", env.doc.Title())
	assert.Equal(t, 1, env.stack.Depth(), "loads never touch history")
}

func TestLoader_FollowsRedirect(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	done := make(chan string, 1)
	_, err := env.svc.Loader.Load(context.Background(), "/redirect", LoadOptions{
		OnSuccess: func(url string, resp *response.Response) { done <- resp.Title },
	})
	require.NoError(t, err)

	select {
	case title := <-done:
		assert.Equal(t, "Page target", title)
	case <-time.After(5 * time.Second):
		t.Fatal("load never completed")
	}
}

func TestLoader_RedirectLimit(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, func(cfg *config.Config) {
		cfg.RedirectLimit = 2
	})

	failed := make(chan error, 8)
	_, err := env.svc.Loader.Load(context.Background(), "/redirect-loop", LoadOptions{
		OnSuccess: func(url string, resp *response.Response) {
			t.Errorf("redirect loop succeeded at %s", url)
		},
		OnError: func(url string, err error) { failed <- err },
	})
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrTooManyRedirects)
	case <-time.After(5 * time.Second):
		t.Fatal("load never failed")
	}
}

func TestPreloader_WarmsCacheWithoutTouchingState(t *testing.T) {
	var hits atomic.Int32
	srv := fragmentSite(t, &hits)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Preloader.Preload(context.Background(),
		"/page/a", "/page/b"))
	assert.EqualValues(t, 2, hits.Load())

	assert.Empty(t, env.doc.Title(), "preload never mutates the document")
	el, _ := env.doc.ElementByID("content")
	assert.Equal(t, "<p>initial</p>", el.HTML())
	assert.NotEmpty(t, env.doc.Prefetched(), "resources are hinted")

	// A later navigation to a preloaded URL is a cache hit.
	require.NoError(t, env.svc.Controller.Navigate("/page/a"))
	assert.Equal(t, "Page a", env.waitProcessed(t))
	assert.EqualValues(t, 2, hits.Load(), "navigation reuses the preload result")
}

func TestPreloader_FollowsRedirectChain(t *testing.T) {
	var finalHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hop1":
			json.NewEncoder(w).Encode(&response.Response{Redirect: "/hop2"})
		case "/hop2":
			json.NewEncoder(w).Encode(&response.Response{Redirect: "/final"})
		case "/final":
			finalHits.Add(1)
			json.NewEncoder(w).Encode(&response.Response{
				Title: "Final",
				HTML:  map[string]string{"content": "<p>final</p>"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	require.NoError(t, env.svc.Preloader.Preload(context.Background(), "/hop1"))
	assert.EqualValues(t, 1, finalHits.Load(),
		"a multi-hop chain must be chased to the final target")
	assert.NotEmpty(t, env.doc.Prefetched(), "the final target's resources are hinted")

	// The final target is what landed in the cache.
	require.NoError(t, env.svc.Controller.Navigate("/final"))
	assert.Equal(t, "Final", env.waitProcessed(t))
	assert.EqualValues(t, 1, finalHits.Load(), "navigation reuses the preload result")
}

func TestPreloader_RedirectLimit(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, func(cfg *config.Config) {
		cfg.RedirectLimit = 2
	})

	err := env.svc.Preloader.Preload(context.Background(), "/redirect-loop")
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestPreloader_CancelledContext(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := env.svc.Preloader.Preload(ctx, "/page/a")
	assert.Error(t, err)
}

func TestService_ApplyConfig(t *testing.T) {
	srv := fragmentSite(t, nil)
	defer srv.Close()
	env := newTestEnv(t, srv.URL, nil)

	cfg := config.Default()
	cfg.RedirectLimit = 1
	cfg.TransitionsEnabled = false
	env.svc.ApplyConfig(cfg)

	// An invalid reload is ignored rather than applied.
	bad := config.Default()
	bad.ClassPrefix = ""
	env.svc.ApplyConfig(bad)

	require.NoError(t, env.svc.Controller.Navigate("/page/a"))
	assert.Equal(t, "Page a", env.waitProcessed(t))
}
