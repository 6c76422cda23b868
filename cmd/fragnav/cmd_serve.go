// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/driftline/fragnav/pkg/logging"
	"github.com/driftline/fragnav/pkg/telemetry"
	"github.com/driftline/fragnav/services/demo"
)

var (
	serveAddr  string
	serveDebug bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the demo site",
		Long: `Starts the demo site: HTML pages that double as fragment endpoints,
payload redirects, chunked multipart streams, a beacon websocket feed
and prometheus metrics.`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging and gin debug mode")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.New(logging.Config{Level: level, Service: "demo"})
	defer logger.Close()

	shutdownTelemetry, err := telemetry.Init(cmd.Context(), telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	site := demo.NewServer(logger.Slog())
	defer site.Close()

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           site.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("demo site listening", "addr", serveAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("demo site: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
