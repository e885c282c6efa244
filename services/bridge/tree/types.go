// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"regexp"
	"strings"
)

// Artifact is one file of a canonical tree: a normalized relative path plus
// its content. The optional frontmatter header is parsed on demand via
// SplitHeader rather than stored.
type Artifact struct {
	// Path is the slash-separated path relative to the tree root.
	Path string `json:"path"`

	// Data is the raw file content.
	Data []byte `json:"-"`
}

// Header returns the artifact's parsed frontmatter block, or nil when the
// content carries none.
func (a Artifact) Header() Header {
	h, _ := SplitHeader(a.Data)
	return h
}

// Body returns the artifact content with any frontmatter block removed.
func (a Artifact) Body() []byte {
	_, body := SplitHeader(a.Data)
	return body
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_-]`)

// Slugify normalizes a user-supplied name into a filesystem-safe slug:
// lowercase, with each unsafe character replaced by a hyphen and leading or
// trailing hyphens trimmed. An empty or fully unsafe name becomes "unnamed".
func Slugify(name string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
