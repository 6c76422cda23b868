// Copyright (C) 2025 Driftline Labs (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package demo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/driftline/fragnav/services/navigator/response"
)

// Page is one demo destination, served either as a complete document or
// as a fragment response depending on how it is requested.
type Page struct {
	Name    string
	Title   string
	Content string
	CSS     string
	JS      string
}

// defaultPages returns the built-in demo site.
func defaultPages() map[string]*Page {
	pages := []*Page{
		{
			Name:    "home",
			Title:   "fragnav demo",
			Content: "<h1>Home</h1><p>Pick a destination to navigate without a full page load.</p>",
			CSS:     ".home h1 { color: #223; }",
		},
		{
			Name:    "features",
			Title:   "Features",
			Content: "<h1>Features</h1><ul><li>Cached fragments</li><li>Timed transitions</li></ul><script>window.__featuresSeen = true;</script>",
			JS:      "window.__featuresLoaded = (window.__featuresLoaded || 0) + 1;",
		},
		{
			Name:    "about",
			Title:   "About",
			Content: "<h1>About</h1><p>A small site exercised by the navigation engine.</p>",
		},
		{
			Name:    "contact",
			Title:   "Contact",
			Content: "<h1>Contact</h1><p>oss@driftline.dev</p>",
		},
	}
	byName := make(map[string]*Page, len(pages))
	for _, p := range pages {
		byName[p.Name] = p
	}
	return byName
}

// navHTML renders the navigation region with the active page marked.
func navHTML(pages map[string]*Page, active string) string {
	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<ul>")
	for _, name := range names {
		class := ""
		if name == active {
			class = ` class="active"`
		}
		fmt.Fprintf(&b, `<li%s><a href="/page/%s">%s</a></li>`, class, name, pages[name].Title)
	}
	b.WriteString("</ul>")
	return b.String()
}

// Fragment builds the fragment response for a page.
func (p *Page) Fragment(pages map[string]*Page) *response.Response {
	return &response.Response{
		Title: p.Title,
		CSS:   p.CSS,
		JS:    p.JS,
		HTML: map[string]string{
			"content": p.Content,
			"nav":     navHTML(pages, p.Name),
		},
		Attr: map[string]map[string]string{
			"content": {"data-page": p.Name, "class": p.Name},
		},
	}
}

// Document renders the full HTML document for a page, for plain requests
// and first loads.
func (p *Page) Document(pages map[string]*Page) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<title>%s</title>
<style>%s</style>
</head>
<body>
<nav id="nav">%s</nav>
<div id="content" data-page=%q class=%q>%s</div>
<script>%s</script>
</body>
</html>
`, p.Title, p.CSS, navHTML(pages, p.Name), p.Name, p.Name, p.Content, p.JS)
}
