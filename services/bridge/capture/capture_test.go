// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

type memSource struct {
	files map[string]string
}

func (s memSource) Name() string { return "mem" }
func (s memSource) Rank() int    { return 0 }

func (s memSource) List(_ context.Context) ([]string, error) {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s memSource) Read(_ context.Context, rel string) ([]byte, error) {
	data, ok := s.files[rel]
	if !ok {
		return nil, tree.ErrNotFound
	}
	return []byte(data), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.Open(ledger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func buildTree(t *testing.T, files map[string]string) *merge.Tree {
	t.Helper()
	tr, _, err := merge.Merge(context.Background(),
		[]merge.Source{memSource{files: files}}, merge.Config{Logger: quietLogger()})
	require.NoError(t, err)
	return tr
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func readCanonical(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, vault.DefaultSubdir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// seedSync projects files through conv and records ledger entries the way
// a forward sync does, with the canonical copies on disk under the
// project-local directory.
func seedSync(t *testing.T, root string, st *ledger.Store, conv project.Converter, files map[string]string) {
	t.Helper()
	ctx := context.Background()
	tr := buildTree(t, files)
	for _, rel := range tr.Paths() {
		data, err := tr.Read(ctx, rel)
		require.NoError(t, err)
		write(t, root, vault.DefaultSubdir+"/"+rel, string(data))
	}
	res, err := conv.Forward(ctx, tr, root)
	require.NoError(t, err)
	for _, pf := range res.Written {
		if pf.CanonicalPath == "" {
			continue
		}
		require.NoError(t, st.Put(ctx, ledger.Entry{
			Target:        string(conv.ID()),
			CanonicalPath: pf.CanonicalPath,
			TargetPath:    pf.TargetPath,
			Digest:        pf.Digest,
			SyncedAt:      time.Now().UTC(),
		}))
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("ide_wins")
	require.NoError(t, err)
	assert.Equal(t, PolicyIDEWins, p)

	p, err = ParsePolicy("agent_wins")
	require.NoError(t, err)
	assert.Equal(t, PolicyAgentWins, p)

	_, err = ParsePolicy("editor_wins")
	assert.Error(t, err)
	_, err = ParsePolicy("")
	assert.Error(t, err)
}

func TestRun_AdoptsUntrackedTargetFiles(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()

	mdc := "---\ndescription: Tabs only\nglobs: *.go\nalwaysApply: false\n---\n\nUse tabs.\n"
	write(t, root, ".cursor/rules/style.mdc", mdc)
	write(t, root, ".cursor/notes.txt", "scratch, not an artifact\n")

	cfg := Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()}
	rep, err := Run(ctx, []project.Converter{project.NewCursorConverter()}, cfg)
	require.NoError(t, err)

	assert.Equal(t, PolicyAgentWins, rep.Policy)
	assert.Equal(t, 1, rep.Adopted)
	assert.Equal(t, []string{"rules/style.md"}, rep.AdoptedPaths)
	assert.Zero(t, rep.Updated)
	assert.Zero(t, rep.Unchanged)
	assert.Zero(t, rep.Skipped)

	h, body := tree.SplitHeader([]byte(readCanonical(t, root, "rules/style.md")))
	require.NotNil(t, h)
	assert.Equal(t, "Tabs only", h.String("description"))
	assert.Equal(t, "*.go", h.String("globs"))
	assert.Equal(t, "Use tabs.", strings.TrimSpace(string(body)))

	e, err := st.Get(ctx, "cursor", ".cursor/rules/style.mdc")
	require.NoError(t, err)
	assert.Equal(t, "rules/style.md", e.CanonicalPath)
	assert.Equal(t, fingerprint.Fingerprint([]byte(mdc)), e.Digest)

	// A second pass sees the adopted file as tracked and unchanged.
	rep, err = Run(ctx, []project.Converter{project.NewCursorConverter()}, cfg)
	require.NoError(t, err)
	assert.Zero(t, rep.Adopted)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Zero(t, rep.Divergent())
}

func TestRun_UnchangedAfterSync(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"agents/helper.md": "---\nname: helper\ndescription: Helps out\n---\n\nBe helpful.\n",
		"rules/style.md":   "---\ndescription: Tabs only\n---\n\nUse tabs.\n",
		"mcp_config.json":  "{\"mcpServers\": {}}\n",
	})

	rep, err := Run(context.Background(), []project.Converter{conv},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Unchanged)
	assert.Zero(t, rep.Divergent())
	assert.Empty(t, rep.DeletedInTarget)
}

func TestRun_AgentWinsKeepsCanonical(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"rules/style.md": "---\ndescription: Tabs only\nowner: platform\n---\n\nUse tabs.\n",
	})
	before := readCanonical(t, root, "rules/style.md")
	syncedEntry, err := st.Get(ctx, "cursor", ".cursor/rules/style.mdc")
	require.NoError(t, err)

	edited := "---\ndescription: Tabs only\nglobs: \nalwaysApply: false\n---\n\nTabs, never spaces.\n"
	write(t, root, ".cursor/rules/style.mdc", edited)

	rep, err := Run(ctx, []project.Converter{conv},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, []string{".cursor/rules/style.mdc"}, rep.SkippedPaths)
	assert.Zero(t, rep.Updated)
	assert.Equal(t, 1, rep.Divergent())

	// Canonical file and ledger both keep the synced state.
	assert.Equal(t, before, readCanonical(t, root, "rules/style.md"))
	e, err := st.Get(ctx, "cursor", ".cursor/rules/style.mdc")
	require.NoError(t, err)
	assert.Equal(t, syncedEntry.Digest, e.Digest)
}

func TestRun_IDEWinsUpdatesCanonical(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"rules/style.md": "---\ndescription: Tabs only\nowner: platform\n---\n\nUse tabs.\n",
	})
	edited := "---\ndescription: Tabs only\nglobs: \nalwaysApply: false\n---\n\nTabs, never spaces.\n"
	write(t, root, ".cursor/rules/style.mdc", edited)

	cfg := Config{ProjectRoot: root, Ledger: st, Policy: PolicyIDEWins, Logger: quietLogger()}
	rep, err := Run(ctx, []project.Converter{conv}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, []string{"rules/style.md"}, rep.UpdatedPaths)
	assert.Zero(t, rep.Skipped)

	// The header key the MDC format cannot carry survives the capture.
	want := "---\ndescription: Tabs only\nowner: platform\n---\n\nTabs, never spaces.\n"
	assert.Equal(t, want, readCanonical(t, root, "rules/style.md"))

	e, err := st.Get(ctx, "cursor", ".cursor/rules/style.mdc")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Fingerprint([]byte(edited)), e.Digest)

	rep, err = Run(ctx, []project.Converter{conv}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Zero(t, rep.Divergent())
}

func TestRun_PathsLimitWritesToAcceptedFiles(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"rules/tabs.md":  "---\ndescription: Tabs\n---\n\nUse tabs.\n",
		"rules/width.md": "---\ndescription: Width\n---\n\nKeep lines short.\n",
	})
	write(t, root, ".cursor/rules/tabs.mdc",
		"---\ndescription: Tabs\nglobs: \nalwaysApply: false\n---\n\nTabs, never spaces.\n")
	write(t, root, ".cursor/rules/width.mdc",
		"---\ndescription: Width\nglobs: \nalwaysApply: false\n---\n\n100 columns.\n")
	write(t, root, ".cursor/agents/new.md", "New helper.\n")
	widthBefore := readCanonical(t, root, "rules/width.md")

	rep, err := Run(ctx, []project.Converter{conv}, Config{
		ProjectRoot: root, Ledger: st, Policy: PolicyIDEWins,
		Paths:  []string{".cursor/rules/tabs.mdc"},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, []string{"rules/tabs.md"}, rep.UpdatedPaths)
	assert.Zero(t, rep.Adopted)
	assert.Equal(t, 2, rep.Skipped)
	assert.ElementsMatch(t,
		[]string{".cursor/rules/width.mdc", ".cursor/agents/new.md"}, rep.SkippedPaths)

	assert.Contains(t, readCanonical(t, root, "rules/tabs.md"), "Tabs, never spaces.")
	assert.Equal(t, widthBefore, readCanonical(t, root, "rules/width.md"))
	assert.NoFileExists(t, filepath.Join(root, vault.DefaultSubdir, "agents", "new.md"))

	// Untracked files are adopted once their path makes the set, under
	// either policy.
	rep, err = Run(ctx, []project.Converter{conv}, Config{
		ProjectRoot: root, Ledger: st,
		Paths:  []string{".cursor/agents/new.md"},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Adopted)
	assert.Equal(t, []string{"agents/new.md"}, rep.AdoptedPaths)
	assert.Equal(t, "New helper.\n", readCanonical(t, root, "agents/new.md"))
}

func TestRun_ReportsDeletionsWithoutActingOnThem(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"agents/helper.md": "Always be helpful.\n",
		"rules/style.md":   "Use tabs.\n",
	})
	require.NoError(t, os.Remove(filepath.Join(root, ".cursor", "agents", "helper.md")))

	rep, err := Run(ctx, []project.Converter{conv},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{".cursor/agents/helper.md"}, rep.DeletedInTarget)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Equal(t, 1, rep.Divergent())

	// Neither the canonical copy nor the ledger entry is removed.
	assert.FileExists(t, filepath.Join(root, vault.DefaultSubdir, "agents", "helper.md"))
	_, err = st.Get(ctx, "cursor", ".cursor/agents/helper.md")
	assert.NoError(t, err)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()

	write(t, root, ".cursor/rules/style.mdc", "Use tabs.\n")

	rep, err := Run(ctx, []project.Converter{project.NewCursorConverter()},
		Config{ProjectRoot: root, Ledger: st, DryRun: true, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Adopted)
	assert.NoFileExists(t, filepath.Join(root, vault.DefaultSubdir, "rules", "style.md"))
	_, err = st.Get(ctx, "cursor", ".cursor/rules/style.mdc")
	assert.ErrorIs(t, err, tree.ErrNotFound)
}

func TestRun_RestoreFailureIsReportedNotFatal(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()

	write(t, root, ".kiro/agents/broken.json", "{not json")
	write(t, root, ".kiro/steering/style.md", "---\ninclusion: always\n---\n\nUse tabs.\n")

	rep, err := Run(ctx, []project.Converter{project.NewKiroConverter()},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{".kiro/agents/broken.json"}, rep.Failed)
	assert.Equal(t, 1, rep.Adopted)
	assert.Equal(t, "Use tabs.\n", readCanonical(t, root, "rules/style.md"))

	_, err = st.Get(ctx, "kiro", ".kiro/agents/broken.json")
	assert.ErrorIs(t, err, tree.ErrNotFound)
}

func TestRun_WithDiffsAttachesPreview(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	ctx := context.Background()
	conv := project.NewCursorConverter()

	seedSync(t, root, st, conv, map[string]string{
		"rules/style.md": "---\ndescription: Tabs only\nowner: platform\n---\n\nUse tabs.\n",
	})
	write(t, root, ".cursor/rules/style.mdc",
		"---\ndescription: Tabs only\nglobs: \nalwaysApply: false\n---\n\nTabs, never spaces.\n")

	rep, err := Run(ctx, []project.Converter{conv},
		Config{ProjectRoot: root, Ledger: st, WithDiffs: true, Logger: quietLogger()})
	require.NoError(t, err)

	d := rep.Diffs[".cursor/rules/style.mdc"]
	require.NotEmpty(t, d)
	assert.Contains(t, d, "--- a/rules/style.md")
	assert.Contains(t, d, "+++ b/rules/style.md")
	assert.Contains(t, d, "-Use tabs.")
	assert.Contains(t, d, "+Tabs, never spaces.")

	fd, err := diff.ParseFileDiff([]byte(d))
	require.NoError(t, err)
	assert.Equal(t, "a/rules/style.md", fd.OrigName)
	assert.Len(t, fd.Hunks, 1)
}

func TestRun_SkipsWriteOnlyTargets(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)

	write(t, root, ".windsurf/rules/style.md", "Use tabs.\n")

	rep, err := Run(context.Background(),
		[]project.Converter{project.NewWindsurfConverter(), project.NewOpencodeConverter()},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)

	assert.Zero(t, rep.Adopted)
	assert.Zero(t, rep.Unchanged)
	assert.Zero(t, rep.Divergent())
}

func TestRun_MissingTargetDirectory(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)

	rep, err := Run(context.Background(), []project.Converter{project.NewCursorConverter()},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Zero(t, rep.Divergent())
}

func TestRun_RequiresLedger(t *testing.T) {
	_, err := Run(context.Background(), nil, Config{ProjectRoot: t.TempDir()})
	require.Error(t, err)
}

func TestRun_CanceledContext(t *testing.T) {
	root := t.TempDir()
	st := newStore(t)
	write(t, root, ".cursor/rules/style.mdc", "Use tabs.\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, []project.Converter{project.NewCursorConverter()},
		Config{ProjectRoot: root, Ledger: st, Logger: quietLogger()})
	assert.True(t, errors.Is(err, context.Canceled))
}
