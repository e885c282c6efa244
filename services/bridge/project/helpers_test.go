// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// fakeSource serves an in-memory file set to merge.
type fakeSource struct {
	files map[string]string
}

func (s *fakeSource) Name() string { return "test" }
func (s *fakeSource) Rank() int    { return 0 }

func (s *fakeSource) List(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeSource) Read(_ context.Context, rel string) ([]byte, error) {
	data, ok := s.files[rel]
	if !ok {
		return nil, &tree.OpError{Op: "read", Path: rel, Err: tree.ErrNotFound}
	}
	return []byte(data), nil
}

// buildTree merges an in-memory file set into a canonical tree.
func buildTree(t *testing.T, files map[string]string) *merge.Tree {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, _, err := merge.Merge(context.Background(),
		[]merge.Source{&fakeSource{files: files}}, merge.Config{Logger: quiet})
	require.NoError(t, err)
	return tr
}

// readProjected reads one written file back from the project directory.
func readProjected(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// exists reports whether a projected path is present.
func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}
