// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRegionID(t *testing.T) {
	t.Run("valid ids", func(t *testing.T) {
		for _, id := range []string{"content", "nav", "a", "main-body", "s1:part.two", "Region_3"} {
			assert.NoError(t, ValidateRegionID(id), id)
		}
	})

	t.Run("invalid ids", func(t *testing.T) {
		invalid := []string{
			"",
			"1starts-with-digit",
			"-leading-dash",
			"has space",
			"<script>",
			"a" + strings.Repeat("b", 128), // over length cap
		}
		for _, id := range invalid {
			assert.Error(t, ValidateRegionID(id), id)
		}
	})
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical origin", "https://example.com/a", "https://example.com/b", true},
		{"different host", "https://example.com/a", "https://evil.com/a", false},
		{"different scheme", "https://example.com/a", "http://example.com/a", false},
		{"different port", "https://example.com/a", "https://example.com:8443/a", false},
		{"relative is same-origin", "https://example.com/a", "/b", true},
		{"both relative", "/a", "/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameOrigin(tt.a, tt.b))
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	t.Run("resolves relative against base", func(t *testing.T) {
		got, err := AbsoluteURL("https://example.com/app/home", "../page/about")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/page/about", got)
	})

	t.Run("strips fragment", func(t *testing.T) {
		got, err := AbsoluteURL("https://example.com/", "/page/about#section")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/page/about", got)
	})

	t.Run("absolute input passes through", func(t *testing.T) {
		got, err := AbsoluteURL("https://example.com/", "https://other.example/x?q=1")
		require.NoError(t, err)
		assert.Equal(t, "https://other.example/x?q=1", got)
	})
}

func TestSamePage(t *testing.T) {
	assert.True(t, SamePage("https://example.com/a", "https://example.com/a"))
	assert.True(t, SamePage("https://example.com/a", "https://example.com/a#anchor"),
		"fragment-only difference is the same page")
	assert.True(t, SamePage("https://example.com/a#x", "https://example.com/a#y"))
	assert.False(t, SamePage("https://example.com/a", "https://example.com/b"))
	assert.False(t, SamePage("https://example.com/a", "https://example.com/a?q=1"),
		"query changes are a real navigation")
}
