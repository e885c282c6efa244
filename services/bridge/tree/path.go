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
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Reserved control entries. Paths under these names belong to the tool, not
// to the canonical tree, and are skipped by every listing.
const (
	// ControlDir holds per-project bridge state (sync ledger, lock file).
	ControlDir = ".bridge"

	// LockFileName is the advisory lock file inside ControlDir.
	LockFileName = "bridge.lock"
)

var reservedNames = []string{ControlDir, ".git"}

// NormalizeRel validates and canonicalizes a relative artifact path.
//
// Accepted paths are slash-separated, case-sensitive, and stay inside the
// tree root. Backslashes are treated as separators so paths captured on
// Windows normalize to the canonical form. Returns ErrInvalidPath for empty,
// absolute, or escaping paths.
func NormalizeRel(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, p)
	}
	if strings.Contains(p, "\x00") {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes tree root", ErrInvalidPath, p)
	}
	return clean, nil
}

// Join resolves rel against root on the local filesystem and verifies the
// result stays inside root. The rel argument must already be normalized.
func Join(root, rel string) (string, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, abs)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrInvalidPath, rel, root)
	}
	return abs, nil
}

// IsReserved reports whether rel names a control entry (or lives under one)
// that listings must skip.
func IsReserved(rel string) bool {
	first := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		first = rel[:i]
	}
	for _, name := range reservedNames {
		if first == name {
			return true
		}
	}
	return false
}
