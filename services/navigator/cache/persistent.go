// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/driftline/fragnav/services/navigator/response"
)

// Persistent is a Store backed by BadgerDB. It survives process restarts,
// so preload results warm the cache across sessions. Badger's native
// per-entry TTL provides the same expiry semantics as the in-memory store.
//
// Thread Safety: safe for concurrent use.
type Persistent struct {
	db     *badger.DB
	logger *slog.Logger
}

// PersistentConfig configures a Badger-backed cache.
type PersistentConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory opens Badger without disk persistence. Test use.
	InMemory bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenPersistent opens a Badger-backed response cache.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Persistent - The opened cache. Caller must Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenPersistent(cfg PersistentConfig) (*Persistent, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open response cache database: %w", err)
	}
	return &Persistent{db: db, logger: cfg.Logger}, nil
}

// Get implements Store.
func (p *Persistent) Get(ctx context.Context, key string) (*response.Response, bool) {
	start := time.Now()

	var resp *response.Response
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded response.Response
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			resp = &decoded
			return nil
		})
	})

	hit := err == nil && resp != nil
	recordLookup(ctx, time.Since(start), hit)

	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) && p.logger != nil {
			p.logger.Warn("response cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return resp, true
}

// Set implements Store. Badger expires the entry server-side after ttl.
func (p *Persistent) Set(ctx context.Context, key string, value *response.Response, ttl time.Duration) {
	if ttl <= 0 || value == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("response cache encode failed", "key", key, "error", err)
		}
		return
	}
	err = p.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), encoded).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil && p.logger != nil {
		p.logger.Warn("response cache write failed", "key", key, "error", err)
	}
}

// Remove implements Store.
func (p *Persistent) Remove(key string) {
	_ = p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close implements Store.
func (p *Persistent) Close() error {
	return p.db.Close()
}

var _ Store = (*Persistent)(nil)
var _ Store = (*Memory)(nil)
