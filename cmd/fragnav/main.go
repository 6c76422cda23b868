// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command fragnav is the CLI for the fragment navigation engine.
//
// Usage:
//
//	fragnav serve                 # run the demo site
//	fragnav fetch <url>           # fetch one fragment and print it
//	fragnav navigate <urls...>    # drive a simulated navigation session
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fragnav",
	Short: "Fragment navigation engine and demo tooling",
	Long: `fragnav retrieves structured page fragments instead of full documents,
keeps a response cache and history stack in sync, and applies timed
region transitions. This CLI runs the demo site and exercises the
client pipeline from the command line.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
