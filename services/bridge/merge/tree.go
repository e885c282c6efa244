// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package merge

import (
	"context"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Entry is one artifact in the canonical tree, bound to the source that won
// its path.
type Entry struct {
	Path   string
	Source Source
	Digest fingerprint.Digest
	Size   int64
}

// Provenance maps each canonical path to the name of the source that
// supplied it.
type Provenance map[string]string

// Tree is the merged canonical tree. It is immutable after Merge returns
// and safe for concurrent reads.
type Tree struct {
	entries map[string]Entry
	paths   []string
}

// Paths returns every canonical path in sorted order. Callers must not
// mutate the returned slice.
func (t *Tree) Paths() []string { return t.paths }

// Len is the number of artifacts in the tree.
func (t *Tree) Len() int { return len(t.paths) }

// Entry looks up one artifact by path.
func (t *Tree) Entry(rel string) (Entry, bool) {
	e, ok := t.entries[rel]
	return e, ok
}

// Read fetches an artifact's content through its winning source. A path not
// in the tree reports tree.ErrNotFound.
func (t *Tree) Read(ctx context.Context, rel string) ([]byte, error) {
	e, ok := t.entries[rel]
	if !ok {
		return nil, &tree.OpError{Op: "read", Path: rel, Err: tree.ErrNotFound}
	}
	return e.Source.Read(ctx, rel)
}

// Under returns the sorted paths beneath a top-level directory, such as
// "agents". The prefix is matched per segment.
func (t *Tree) Under(dir string) []string {
	var out []string
	prefix := dir + "/"
	for _, p := range t.paths {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			out = append(out, p)
		}
	}
	return out
}
