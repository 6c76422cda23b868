// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline/fragnav/services/navigator/request"
	"github.com/driftline/fragnav/services/navigator/response"
)

var (
	fetchKind       string
	fetchReferer    string
	fetchIdentifier string
	fetchTimeout    time.Duration

	fetchCmd = &cobra.Command{
		Use:   "fetch [url]",
		Short: "Fetch one fragment response and print it",
		Long: `Issues a marked fragment request (single-part or multipart) against a
server and prints the assembled response as JSON. Useful for checking
what the engine would receive for a URL.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
)

func init() {
	fetchCmd.Flags().StringVar(&fetchKind, "kind", string(request.KindLoad), "request kind to mark (navigate, navigate-back, load, preload)")
	fetchCmd.Flags().StringVar(&fetchReferer, "referer", "", "fragment referer header value")
	fetchCmd.Flags().StringVar(&fetchIdentifier, "identifier", "?frag=__type__", "identifier template appended to the URL")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, fetchTimeout)
	defer cancel()

	kind := request.Kind(fetchKind)
	url := request.IdentifierURL(args[0], fetchIdentifier, kind)

	fetcher := request.NewHTTPFetcher()
	result, err := fetcher.Fetch(ctx, url, kind, fetchReferer)
	if err != nil {
		return err
	}
	if result.StatusCode >= 400 {
		return fmt.Errorf("fetch %s: status %d", url, result.StatusCode)
	}

	var resp *response.Response
	if result.Multipart {
		parts, err := response.DecodeMultipart(result.Body)
		if err != nil {
			return err
		}
		resp = response.Assemble(parts)
		fmt.Fprintf(cmd.OutOrStdout(), "multipart: %d parts\n", len(parts))
	} else {
		resp, err = response.Decode(result.Body)
		if err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
