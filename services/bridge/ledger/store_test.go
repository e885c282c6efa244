// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Helper to open an in-memory store closed with the test
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(target, targetPath, content string) Entry {
	return Entry{
		Target:        target,
		CanonicalPath: "agents/reviewer.md",
		TargetPath:    targetPath,
		Digest:        fingerprint.Fingerprint([]byte(content)),
		SyncedAt:      time.Now().UTC(),
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := testEntry("cursor", ".cursor/agents/reviewer.md", "projected body")
	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, "cursor", ".cursor/agents/reviewer.md")
	require.NoError(t, err)
	assert.Equal(t, e.Target, got.Target)
	assert.Equal(t, e.CanonicalPath, got.CanonicalPath)
	assert.Equal(t, e.Digest, got.Digest)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "cursor", ".cursor/agents/ghost.md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tree.ErrNotFound))
}

func TestStore_PutRejectsEmptyKeyParts(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.Put(context.Background(), Entry{TargetPath: "x"}))
	assert.Error(t, s.Put(context.Background(), Entry{Target: "cursor"}))
}

func TestStore_ListTargetIsolatesTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/b.md", "b")))
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/a.md", "a")))
	require.NoError(t, s.Put(ctx, testEntry("kiro", ".kiro/agents/a.json", "k")))

	entries, err := s.ListTarget(ctx, "cursor")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".cursor/agents/a.md", entries[0].TargetPath)
	assert.Equal(t, ".cursor/agents/b.md", entries[1].TargetPath)

	entries, err = s.ListTarget(ctx, "kiro")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = s.ListTarget(ctx, "windsurf")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/rules/x.mdc", "x")))
	require.NoError(t, s.Delete(ctx, "cursor", ".cursor/rules/x.mdc"))

	_, err := s.Get(ctx, "cursor", ".cursor/rules/x.mdc")
	assert.True(t, errors.Is(err, tree.ErrNotFound))

	// Deleting again is a no-op
	assert.NoError(t, s.Delete(ctx, "cursor", ".cursor/rules/x.mdc"))
}

func TestStore_DeleteTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("copilot", ".github/agents/a.md", "a")))
	require.NoError(t, s.Put(ctx, testEntry("copilot", ".github/agents/b.md", "b")))
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/a.md", "a")))

	removed, err := s.DeleteTarget(ctx, "copilot")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := s.ListTarget(ctx, "copilot")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Other targets untouched
	entries, err = s.ListTarget(ctx, "cursor")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_ReplaceTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/old.md", "old")))
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/kept.md", "v1")))

	err := s.ReplaceTarget(ctx, "cursor", []Entry{
		testEntry("cursor", ".cursor/agents/kept.md", "v2"),
		testEntry("cursor", ".cursor/agents/new.md", "new"),
	})
	require.NoError(t, err)

	entries, err := s.ListTarget(ctx, "cursor")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".cursor/agents/kept.md", entries[0].TargetPath)
	assert.Equal(t, fingerprint.Fingerprint([]byte("v2")), entries[0].Digest)
	assert.Equal(t, ".cursor/agents/new.md", entries[1].TargetPath)
}

func TestStore_ReplaceTargetRejectsForeignEntries(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceTarget(context.Background(), "cursor", []Entry{
		testEntry("kiro", ".kiro/agents/a.json", "a"),
	})
	require.Error(t, err)
}

func TestStore_Targets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	targets, err := s.Targets(ctx)
	require.NoError(t, err)
	assert.Empty(t, targets)

	require.NoError(t, s.Put(ctx, testEntry("kiro", ".kiro/agents/a.json", "a")))
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/a.md", "a")))
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/b.md", "b")))

	targets, err = s.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cursor", "kiro"}, targets)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, testEntry("cursor", ".cursor/agents/a.md", "a")))
	require.NoError(t, s.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "cursor", ".cursor/agents/a.md")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Fingerprint([]byte("a")), got.Digest)
}

func TestOpen_RequiresPathWhenPersistent(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}
