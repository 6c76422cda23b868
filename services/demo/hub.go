// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package demo

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Beacon is one navigation lifecycle event reported by a client and
// broadcast to every watcher.
type Beacon struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}

// watcher is one connected client. writeMu serializes writes: the
// websocket package allows at most one concurrent writer per connection.
type watcher struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub broadcasts navigation beacons to connected websocket watchers.
//
// Thread Safety: safe for concurrent use.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*watcher
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Demo server only; watchers may connect from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "demo-hub")),
		clients: make(map[*websocket.Conn]*watcher),
	}
}

// Subscribe upgrades the request to a websocket and registers it as a
// watcher. The connection is read-drained so close frames are handled.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.clients[conn] = &watcher{conn: conn}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("watcher connected", "watchers", count)

	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// Broadcast stamps the beacon and sends it to every watcher. Watchers
// that fail to receive are dropped.
func (h *Hub) Broadcast(b Beacon) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Timestamp == 0 {
		b.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(b)
	if err != nil {
		h.logger.Warn("beacon marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*watcher, 0, len(h.clients))
	for _, w := range h.clients {
		targets = append(targets, w)
	}
	h.mu.Unlock()

	for _, w := range targets {
		w.writeMu.Lock()
		w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := w.conn.WriteMessage(websocket.TextMessage, payload)
		w.writeMu.Unlock()
		if err != nil {
			h.drop(w.conn)
		}
	}
}

// Watchers returns the current watcher count.
func (h *Hub) Watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]*watcher)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
