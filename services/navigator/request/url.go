// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package request

import "strings"

// typePlaceholder in an identifier template is substituted with the
// request kind.
const typePlaceholder = "__type__"

// IdentifierURL builds the network-bound URL for an absolute URL by
// appending the configured identifier template.
//
// A template starting with "?" merges into the URL's query string (using
// "&" when the URL already has one); any other template is a literal
// suffix. The identifier never participates in cache keys: those use the
// plain absolute URL.
func IdentifierURL(absURL, template string, kind Kind) string {
	if template == "" {
		return absURL
	}
	ident := strings.ReplaceAll(template, typePlaceholder, string(kind))
	if strings.HasPrefix(ident, "?") && strings.Contains(absURL, "?") {
		return absURL + "&" + ident[1:]
	}
	return absURL + ident
}
