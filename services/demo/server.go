// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package demo serves a small site that answers both plain page loads
// and fragment requests, so the navigation engine can be exercised end
// to end: content negotiation, redirects, chunked multipart responses
// and a websocket feed of navigation beacons.
package demo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/driftline/fragnav/pkg/telemetry"
	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
)

// identifierParam is the query parameter marking fragment requests,
// matching the engine's default identifier template.
const identifierParam = "frag"

// Server is the demo site.
type Server struct {
	engine *gin.Engine
	hub    *Hub
	logger *slog.Logger
	pages  map[string]*Page
}

// NewServer builds the demo site with the built-in pages.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: gin.New(),
		hub:    NewHub(logger),
		logger: logger.With(slog.String("component", "demo")),
		pages:  defaultPages(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware("fragnav-demo"))
	s.registerRoutes()
	return s
}

// Handler exposes the site as an http.Handler, for serving and for
// httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub exposes the beacon hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects websocket watchers.
func (s *Server) Close() { s.hub.Close() }

// registerRoutes wires every endpoint.
//
// Content endpoints answer a full document for plain requests and a
// fragment response when the request carries the fragment identifier:
//
//	GET  /                    - home page
//	GET  /page/:name          - demo pages
//	GET  /redirect/:name      - fragment redirect (302 for plain requests)
//	GET  /chunked/:name       - multipart fragment, streamed in parts
//	GET  /referrer            - echoes the fragment referer header
//
// Operational endpoints:
//
//	POST /beacon              - report a navigation event
//	GET  /ws                  - subscribe to the beacon feed
//	GET  /metrics             - prometheus metrics
//	GET  /healthz             - liveness
func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handlePageNamed("home"))
	s.engine.GET("/page/:name", s.handlePage)
	s.engine.GET("/redirect/:name", s.handleRedirect)
	s.engine.GET("/chunked/:name", s.handleChunked)
	s.engine.GET("/referrer", s.handleReferrer)

	s.engine.POST("/beacon", s.handleBeacon)
	s.engine.GET("/ws", s.handleWatch)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h := telemetry.MetricsHandler(); h != nil {
		s.engine.GET("/metrics", gin.WrapH(h))
	}
}

// isFragment reports whether the request is marked as a fragment
// request, by header or by the identifier query parameter.
func isFragment(c *gin.Context) bool {
	if c.GetHeader(request.HeaderRequest) != "" {
		return true
	}
	return c.Query(identifierParam) != ""
}

func (s *Server) handlePageNamed(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.servePage(c, name)
	}
}

func (s *Server) handlePage(c *gin.Context) {
	s.servePage(c, c.Param("name"))
}

func (s *Server) servePage(c *gin.Context, name string) {
	page, ok := s.pages[name]
	if !ok {
		if isFragment(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such page"})
			return
		}
		c.String(http.StatusNotFound, "no such page: %s", name)
		return
	}

	if isFragment(c) {
		s.logger.Debug("serving fragment",
			"page", name,
			"kind", c.GetHeader(request.HeaderRequest),
		)
		c.JSON(http.StatusOK, page.Fragment(s.pages))
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, page.Document(s.pages))
}

// handleRedirect answers a payload redirect for fragment requests and an
// HTTP redirect otherwise. ?hops=N chains N redirects before landing.
func (s *Server) handleRedirect(c *gin.Context) {
	name := c.Param("name")
	hops, _ := strconv.Atoi(c.DefaultQuery("hops", "1"))

	target := "/page/" + name
	if hops > 1 {
		target = fmt.Sprintf("/redirect/%s?hops=%d", name, hops-1)
	}

	if isFragment(c) {
		c.JSON(http.StatusOK, &response.Response{Redirect: target})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// handleChunked streams the page as a multipart fragment response. Query
// knobs shape the stream for client testing:
//
//	delay_ms - pause between parts
//	null=1   - inject a literal null part
//	truncate=1 - drop the end token, leaving the stream unterminated
func (s *Server) handleChunked(c *gin.Context) {
	page, ok := s.pages[c.Param("name")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such page"})
		return
	}
	delay := time.Duration(0)
	if ms, err := strconv.Atoi(c.Query("delay_ms")); err == nil && ms > 0 {
		delay = time.Duration(ms) * time.Millisecond
	}

	full := page.Fragment(s.pages)
	parts := []*response.Response{
		{Title: full.Title, CSS: full.CSS},
		{HTML: full.HTML, Attr: full.Attr},
		{JS: full.JS},
	}

	c.Header("Content-Type", "application/json")
	c.Header(request.HeaderResponseType, request.ResponseTypeMultipart)
	c.Status(http.StatusOK)

	write := func(chunk string) {
		c.Writer.WriteString(chunk)
		c.Writer.Flush()
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	write("[\r\n")
	if c.Query("null") == "1" {
		write("null,\r\n")
	}
	for i, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			s.logger.Error("multipart encode failed", "error", err)
			return
		}
		if i < len(parts)-1 {
			write(string(data) + ",\r\n")
		} else {
			write(string(data))
		}
	}
	if c.Query("truncate") == "1" {
		// Leave the stream unterminated so clients see a framing error.
		return
	}
	write("\r\n]\r\n")
}

// handleReferrer echoes the fragment referer header back in a fragment,
// so tests can observe what the client sent.
func (s *Server) handleReferrer(c *gin.Context) {
	referer := c.GetHeader(request.HeaderReferer)
	c.JSON(http.StatusOK, &response.Response{
		HTML: map[string]string{
			"content": fmt.Sprintf("<p>referer: %s</p>", referer),
		},
	})
}

// handleBeacon accepts a navigation event and broadcasts it to watchers.
func (s *Server) handleBeacon(c *gin.Context) {
	var b Beacon
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.hub.Broadcast(b)
	c.JSON(http.StatusAccepted, gin.H{"watchers": s.hub.Watchers()})
}

func (s *Server) handleWatch(c *gin.Context) {
	if err := s.hub.Subscribe(c.Writer, c.Request); err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
	}
}
