// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/fragnav/pkg/logging"
	"github.com/driftline/fragnav/services/navigator"
	"github.com/driftline/fragnav/services/navigator/bus"
	"github.com/driftline/fragnav/services/navigator/config"
	"github.com/driftline/fragnav/services/navigator/dom"
	"github.com/driftline/fragnav/services/navigator/history"
)

var (
	navigateBase    string
	navigateConfig  string
	navigateVerbose bool
	navigateSettle  time.Duration

	navigateCmd = &cobra.Command{
		Use:   "navigate [urls...]",
		Short: "Drive a simulated navigation session",
		Long: `Runs the full client pipeline against a live server with a simulated
document: each URL is navigated in order, fragments are fetched,
cached and applied, and the resulting titles are printed. With a
config file the engine hot-reloads it while the session runs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runNavigate,
	}
)

func init() {
	navigateCmd.Flags().StringVar(&navigateBase, "base", "http://localhost:8080/", "session start location")
	navigateCmd.Flags().StringVar(&navigateConfig, "config", "", "engine config file (hot-reloaded)")
	navigateCmd.Flags().BoolVar(&navigateVerbose, "verbose", false, "debug logging")
	navigateCmd.Flags().DurationVar(&navigateSettle, "settle", time.Second, "wait per navigation before moving on")
	rootCmd.AddCommand(navigateCmd)
}

func runNavigate(cmd *cobra.Command, args []string) error {
	level := logging.LevelWarn
	if navigateVerbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Service: "navigate"})
	defer logger.Close()

	cfg := config.Default()
	if navigateConfig != "" {
		loaded, err := config.Load(navigateConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	doc := dom.NewFake()
	doc.AddRegion("content", "<p>initial</p>", true)
	doc.AddRegion("nav", "", false)

	events := bus.New()
	svc, err := navigator.NewService(cfg, navigator.Deps{
		Document: doc,
		Stack:    history.NewMemoryStack(navigateBase, ""),
		Redirector: navigator.RedirectorFunc(func(url string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hard redirect -> %s\n", url)
		}),
		Bus:    events,
		Logger: logger.Slog(),
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	processed := make(chan struct{}, 1)
	unsubscribe := events.Subscribe(navigator.EventNavigateProcessed, func(string, ...any) {
		select {
		case processed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if navigateConfig != "" {
		watchCtx, stopWatch := context.WithCancel(cmd.Context())
		defer stopWatch()
		if err := config.Watch(watchCtx, navigateConfig, logger.Slog(), svc.ApplyConfig); err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}

	svc.Start()
	for _, url := range args {
		if err := svc.Controller.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		select {
		case <-processed:
		case <-time.After(navigateSettle):
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-40s title=%q\n", svc.History.LastURL(), doc.Title())
	}
	return nil
}

// contextWithTimeout derives a deadline context from the command.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
