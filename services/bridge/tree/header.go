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
	"bytes"

	"gopkg.in/yaml.v3"
)

// Header is the optional structured metadata block at the top of an
// artifact, delimited by "---" lines and parsed as YAML.
type Header map[string]any

var headerDelim = []byte("---\n")

// SplitHeader separates an artifact's frontmatter from its body.
//
// Returns (nil, data) when no frontmatter is present or the block does not
// parse as a YAML mapping. Malformed metadata is never an error; the block
// simply stays part of the body so user text is not destroyed.
func SplitHeader(data []byte) (Header, []byte) {
	if !bytes.HasPrefix(data, headerDelim) {
		return nil, data
	}
	rest := data[len(headerDelim):]
	end := bytes.Index(rest, []byte("\n---"))
	var block, body []byte
	if bytes.HasPrefix(rest, []byte("---")) {
		block, body = nil, rest[3:]
	} else if end >= 0 {
		block = rest[:end+1]
		body = rest[end+len("\n---"):]
	} else {
		return nil, data
	}
	// The closing delimiter must terminate its line.
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		if len(bytes.TrimSpace(body[:i])) != 0 {
			return nil, data
		}
		body = body[i+1:]
	} else if len(bytes.TrimSpace(body)) != 0 {
		return nil, data
	} else {
		body = nil
	}

	var h Header
	if err := yaml.Unmarshal(block, &h); err != nil || h == nil {
		return nil, data
	}
	return h, bytes.TrimLeft(body, "\n")
}

// String returns the header value for key when it is a scalar string.
func (h Header) String(key string) string {
	if h == nil {
		return ""
	}
	if v, ok := h[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the header value for key when it is a boolean.
func (h Header) Bool(key string) bool {
	if h == nil {
		return false
	}
	if v, ok := h[key].(bool); ok {
		return v
	}
	return false
}

// Strings returns the header value for key as a string list. A scalar
// string value yields a one-element list.
func (h Header) Strings(key string) []string {
	if h == nil {
		return nil
	}
	switch v := h[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
