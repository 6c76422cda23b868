// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigator

import (
	"fmt"
	"log/slog"

	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/cache"
	"github.com/driftline/fragnav/services/navigator/config"
	"github.com/driftline/fragnav/services/navigator/dom"
	"github.com/driftline/fragnav/services/navigator/history"
	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/transition"
)

// Deps are the environment collaborators a Service navigates against.
type Deps struct {
	// Document is the page being navigated.
	Document dom.Document

	// Stack is the history backend. Nil gets an in-memory stack rooted
	// at "/".
	Stack history.Stack

	// Redirector performs hard full-page loads on pipeline failure. Nil
	// gets a logging no-op.
	Redirector Redirector

	// Client issues the HTTP requests. Nil gets http.DefaultClient.
	Client request.HTTPClient

	// Bus receives lifecycle events. Nil discards them.
	Bus bus.Publisher

	Logger *slog.Logger
}

// Service assembles the full navigation engine: cache, request
// coordinator, history synchronizer, transition processor, controller,
// loader and preloader, behind one constructor and one hot-reload hook.
type Service struct {
	Controller *Controller
	Loader     *Loader
	Preloader  *Preloader
	History    *history.Synchronizer
	Requests   *request.Coordinator
	Processor  *transition.Processor

	engine *transition.Engine
	store  cache.Store
	logger *slog.Logger
}

// NewService wires a Service from cfg and deps.
func NewService(cfg config.Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Stack == nil {
		deps.Stack = history.NewMemoryStack("/", "")
	}
	if deps.Redirector == nil {
		deps.Redirector = RedirectorFunc(func(url string) {
			logger.Warn("hard redirect requested with no redirector installed", "url", url)
		})
	}
	publisher := deps.Bus
	if publisher == nil {
		publisher = bus.Nop{}
	}

	var store cache.Store
	if cfg.CachePath != "" {
		persistent, err := cache.OpenPersistent(cache.PersistentConfig{
			Path:   cfg.CachePath,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening response cache: %w", err)
		}
		store = persistent
	} else {
		store = cache.NewMemory()
	}

	fetcher := request.NewHTTPFetcher()
	if deps.Client != nil {
		fetcher.Client = deps.Client
	}

	stack := deps.Stack
	coord := request.New(request.Config{
		IdentifierTemplate: cfg.IdentifierTemplate,
		Timeout:            cfg.RequestTimeout,
		CacheTTL:           cfg.CacheTTL,
		Base:               stack.Location,
	}, store, fetcher, publisher, logger)

	hist := history.New(stack, logger)
	engine := transition.NewEngine(cfg.TransitionDuration, cfg.ClassPrefix, logger)
	proc := transition.NewProcessor(deps.Document, engine, publisher, cfg.TransitionsEnabled, logger)

	svc := &Service{
		Controller: NewController(coord, hist, proc, deps.Redirector, publisher, cfg.RedirectLimit, logger),
		Loader:     NewLoader(coord, proc, cfg.RedirectLimit, logger),
		Preloader:  NewPreloader(coord, proc, cfg.PreloadRate, cfg.PreloadBurst, cfg.RedirectLimit, logger),
		History:    hist,
		Requests:   coord,
		Processor:  proc,
		engine:     engine,
		store:      store,
		logger:     logger.With(slog.String("component", "navigator")),
	}
	return svc, nil
}

// Start activates history synchronization.
func (s *Service) Start() { s.Controller.Start() }

// ApplyConfig pushes a reloaded configuration into every component.
// Cache backend changes (CachePath) require a restart and are ignored.
func (s *Service) ApplyConfig(cfg config.Config) {
	if err := cfg.Validate(); err != nil {
		s.logger.Warn("ignoring invalid configuration reload", "error", err)
		return
	}
	s.Requests.UpdateConfig(request.Config{
		IdentifierTemplate: cfg.IdentifierTemplate,
		Timeout:            cfg.RequestTimeout,
		CacheTTL:           cfg.CacheTTL,
		Base:               s.Requests.Base(),
	})
	s.engine.SetDuration(cfg.TransitionDuration)
	s.Processor.SetEnabled(cfg.TransitionsEnabled)
	s.Controller.SetRedirectLimit(cfg.RedirectLimit)
	s.Loader.SetRedirectLimit(cfg.RedirectLimit)
	s.Preloader.SetRedirectLimit(cfg.RedirectLimit)
	s.Preloader.SetRate(cfg.PreloadRate, cfg.PreloadBurst)
	s.logger.Info("configuration applied",
		"cache_ttl", cfg.CacheTTL,
		"transitions", cfg.TransitionsEnabled,
	)
}

// Close stops the controller and releases the cache backend.
func (s *Service) Close() error {
	s.Controller.Stop()
	return s.store.Close()
}
