// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AgentBridge/services/bridge/capture"
	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/snapshot"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, home string) *vault.Registry {
	t.Helper()
	reg, err := vault.LoadRegistry(vault.RegistryConfig{
		Path:     filepath.Join(home, "vaults.json"),
		CacheDir: filepath.Join(home, "vaults"),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	// The seeded starter vault would leak embedded files into every
	// merge; tests opt in explicitly via Init's seeding instead.
	require.NoError(t, reg.SetEnabled(vault.BuiltinName, false))
	return reg
}

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	projectRoot := t.TempDir()
	home := t.TempDir()

	snaps, err := snapshot.NewStore(snapshot.Config{
		Root:   filepath.Join(home, "snapshots", "proj"),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	eng, err := New(Config{
		ProjectRoot: projectRoot,
		Vaults:      newTestRegistry(t, home),
		Snapshots:   snaps,
		Ledger:      ledger.InMemoryConfig(),
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, projectRoot
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// seedProject writes a small canonical tree covering every artifact
// class one converter or another cares about.
func seedProject(t *testing.T, projectRoot string) {
	t.Helper()
	canonical := vault.DefaultSubdir
	write(t, projectRoot, canonical+"/agents/helper.md",
		"---\ndescription: Helps out\n---\n\nBe helpful.\n")
	write(t, projectRoot, canonical+"/rules/style.md",
		"---\ndescription: Style rules\ntrigger: always_on\n---\n\nKeep it tidy.\n")
	write(t, projectRoot, canonical+"/skills/review/SKILL.md",
		"---\nname: review\ndescription: Reviews code\n---\n\nReview carefully.\n")
	write(t, projectRoot, canonical+"/workflows/release.md",
		"# Release\n\nShip it.\n")
	write(t, projectRoot, canonical+"/mcp_config.json",
		`{"mcpServers":{"search":{"command":"srv"}}}`)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "project root")

	_, err = New(Config{ProjectRoot: t.TempDir()})
	require.ErrorContains(t, err, "vault registry")
}

func TestInit_SeedsStarterVault(t *testing.T) {
	eng, projectRoot := newTestEngine(t)

	rep, err := eng.Init(context.Background(), InitOptions{
		Targets:     []project.Target{project.TargetCursor},
		SeedBuiltin: true,
	})
	require.NoError(t, err)

	// The embedded starter vault carries two agents, a rule, a skill,
	// and a workflow.
	assert.Equal(t, 5, rep.Files)
	assert.Equal(t, 5, rep.BySource[vault.ProjectSourceName])
	require.Len(t, rep.Targets, 1)
	assert.Equal(t, project.TargetCursor, rep.Targets[0].Target)
	assert.Equal(t, 4, rep.Targets[0].Written)
	assert.Equal(t, 1, rep.Targets[0].Skipped)

	seeded := read(t, projectRoot, vault.DefaultSubdir+"/rules/code-style.md")
	require.NotEmpty(t, seeded)

	// Re-init without force keeps local edits to seeded files.
	write(t, projectRoot, vault.DefaultSubdir+"/rules/code-style.md", "tampered\n")
	_, err = eng.Init(context.Background(), InitOptions{
		Targets:     []project.Target{project.TargetCursor},
		SeedBuiltin: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tampered\n", read(t, projectRoot, vault.DefaultSubdir+"/rules/code-style.md"))

	// Force re-seeds from the embedded copy.
	_, err = eng.Init(context.Background(), InitOptions{
		Targets:     []project.Target{project.TargetCursor},
		SeedBuiltin: true,
		Force:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, seeded, read(t, projectRoot, vault.DefaultSubdir+"/rules/code-style.md"))
}

func TestSync_ProjectsAndTracks(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	seedProject(t, projectRoot)

	rep, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Files)
	assert.Equal(t, map[string]int{vault.ProjectSourceName: 5}, rep.BySource)
	require.Len(t, rep.Targets, 1)
	assert.Equal(t, 4, rep.Targets[0].Written)
	assert.Equal(t, 1, rep.Targets[0].Skipped)

	assert.FileExists(t, filepath.Join(projectRoot, ".cursor", "agents", "helper.md"))
	assert.FileExists(t, filepath.Join(projectRoot, ".cursor", "rules", "style.mdc"))
	assert.FileExists(t, filepath.Join(projectRoot, ".cursor", "skills", "review.md"))
	assert.Equal(t, `{"mcpServers":{"search":{"command":"srv"}}}`,
		read(t, projectRoot, ".cursor/mcp.json"))

	entries, err := eng.ledger.ListTarget(context.Background(), string(project.TargetCursor))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, ".cursor/agents/helper.md", entries[0].TargetPath)
	assert.Equal(t, "agents/helper.md", entries[0].CanonicalPath)
	assert.Equal(t, ".cursor/mcp.json", entries[1].TargetPath)
	assert.Equal(t, "mcp_config.json", entries[1].CanonicalPath)
	assert.Equal(t, ".cursor/rules/style.mdc", entries[2].TargetPath)
	assert.Equal(t, ".cursor/skills/review.md", entries[3].TargetPath)
	assert.False(t, entries[0].SyncedAt.IsZero())
}

func TestSync_ReplacesStaleLedgerEntries(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	seedProject(t, projectRoot)

	_, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(projectRoot,
		vault.DefaultSubdir, "rules", "style.md")))
	_, err = eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	entries, err := eng.ledger.ListTarget(context.Background(), string(project.TargetCursor))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.NotEqual(t, "rules/style.md", e.CanonicalPath)
	}
}

func TestSync_MergesVaultByPriority(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	vaultDir := t.TempDir()

	write(t, vaultDir, ".agent/rules/style.md",
		"---\ndescription: Vault style\n---\n\nVault body.\n")
	write(t, vaultDir, ".agent/rules/vault-only.md", "Vault only rule.\n")
	write(t, projectRoot, vault.DefaultSubdir+"/rules/style.md",
		"---\ndescription: Project style\n---\n\nProject body.\n")

	require.NoError(t, eng.vaults.Add(vault.Vault{
		ID:       uuid.NewString(),
		Name:     "team",
		URL:      vaultDir,
		Enabled:  true,
		Priority: 10,
		AddedAt:  time.Now().UTC(),
	}))

	rep, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, 1, rep.BySource[vault.ProjectSourceName])
	assert.Equal(t, 1, rep.BySource["team"])

	styled := read(t, projectRoot, ".cursor/rules/style.mdc")
	assert.Contains(t, styled, "Project body.")
	assert.NotContains(t, styled, "Vault body.")
	assert.FileExists(t, filepath.Join(projectRoot, ".cursor", "rules", "vault-only.mdc"))
}

func TestSync_RefreshWithLocalVaults(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	write(t, projectRoot, vault.DefaultSubdir+"/rules/a.md", "A.\n")

	rep, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
		Refresh: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Files)
}

func TestSync_UnknownTargetFails(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.Target("zed")},
	})
	require.ErrorIs(t, err, tree.ErrNotFound)
}

func TestCapture_IDEWinsRoundTrip(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	write(t, projectRoot, vault.DefaultSubdir+"/rules/tabs.md",
		"---\ndescription: Tabs only\nowner: platform\n---\n\nUse tabs.\n")

	_, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	// Edit the projected file the way an IDE user would: same header,
	// new body.
	projected := read(t, projectRoot, ".cursor/rules/tabs.mdc")
	edited := strings.Replace(projected, "Use tabs.", "Tabs, never spaces.", 1)
	require.NotEqual(t, projected, edited)
	write(t, projectRoot, ".cursor/rules/tabs.mdc", edited)

	rep, err := eng.Capture(context.Background(), CaptureOptions{
		Policy:  capture.PolicyIDEWins,
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, []string{"rules/tabs.md"}, rep.UpdatedPaths)

	assert.Equal(t,
		"---\ndescription: Tabs only\nowner: platform\n---\n\nTabs, never spaces.\n",
		read(t, projectRoot, vault.DefaultSubdir+"/rules/tabs.md"))

	// The ledger now fingerprints the edited file, so a second pass
	// sees no divergence.
	again, err := eng.Capture(context.Background(), CaptureOptions{
		Targets: []project.Target{project.TargetCursor},
		DryRun:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Divergent())
	assert.Equal(t, 1, again.Unchanged)
}

func TestCapture_AgentWinsKeepsCanonical(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	original := "---\ndescription: Tabs only\n---\n\nUse tabs.\n"
	write(t, projectRoot, vault.DefaultSubdir+"/rules/tabs.md", original)

	_, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	projected := read(t, projectRoot, ".cursor/rules/tabs.mdc")
	write(t, projectRoot, ".cursor/rules/tabs.mdc",
		strings.Replace(projected, "Use tabs.", "Spaces actually.", 1))

	rep, err := eng.Capture(context.Background(), CaptureOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, []string{".cursor/rules/tabs.mdc"}, rep.SkippedPaths)
	assert.Equal(t, original, read(t, projectRoot, vault.DefaultSubdir+"/rules/tabs.md"))
}

func TestCapture_DryRunRunsUnderHeldLock(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	write(t, projectRoot, vault.DefaultSubdir+"/rules/a.md", "A.\n")

	guard, err := lock.Acquire(filepath.Join(eng.CanonicalRoot(),
		tree.ControlDir, tree.LockFileName))
	require.NoError(t, err)

	_, err = eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.ErrorIs(t, err, lock.ErrFileLocked)

	_, err = eng.Capture(context.Background(), CaptureOptions{DryRun: true})
	require.NoError(t, err)

	require.NoError(t, guard.Release())
	_, err = eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)
}

func TestStatus_CountsDivergence(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	seedProject(t, projectRoot)

	_, err := eng.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)

	projected := read(t, projectRoot, ".cursor/rules/style.mdc")
	write(t, projectRoot, ".cursor/rules/style.mdc", projected+"\nLocal tweak.\n")

	_, err = eng.SaveSnapshot(context.Background(), "checkpoint", "", false)
	require.NoError(t, err)

	rep, err := eng.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, rep.Files)
	assert.Equal(t, 5, rep.BySource[vault.ProjectSourceName])
	require.Len(t, rep.Vaults, 1)
	assert.Equal(t, vault.BuiltinName, rep.Vaults[0].Name)
	assert.Equal(t, 1, rep.Snapshots)

	byTarget := make(map[project.Target]TargetStatus, len(rep.Targets))
	for _, ts := range rep.Targets {
		byTarget[ts.Target] = ts
	}
	cursor := byTarget[project.TargetCursor]
	assert.True(t, cursor.Capturable)
	assert.Equal(t, 4, cursor.Tracked)
	assert.Equal(t, 1, cursor.Divergent)

	kiro := byTarget[project.TargetKiro]
	assert.True(t, kiro.Capturable)
	assert.Equal(t, 0, kiro.Divergent)

	windsurf := byTarget[project.TargetWindsurf]
	assert.False(t, windsurf.Capturable)
}

func TestClean_RemovesTargetArtifacts(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	seedProject(t, projectRoot)

	_, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor, project.TargetKiro},
	})
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(projectRoot, ".cursor", "rules"))
	require.DirExists(t, filepath.Join(projectRoot, ".kiro", "agents"))

	require.NoError(t, eng.Clean(context.Background(),
		[]project.Target{project.TargetCursor}))

	assert.NoDirExists(t, filepath.Join(projectRoot, ".cursor", "rules"))
	assert.DirExists(t, filepath.Join(projectRoot, ".kiro", "agents"))

	cursorEntries, err := eng.ledger.ListTarget(context.Background(), string(project.TargetCursor))
	require.NoError(t, err)
	assert.Empty(t, cursorEntries)

	kiroEntries, err := eng.ledger.ListTarget(context.Background(), string(project.TargetKiro))
	require.NoError(t, err)
	assert.NotEmpty(t, kiroEntries)
}

func TestInstallMCP_WritesCanonicalAndTargets(t *testing.T) {
	eng, projectRoot := newTestEngine(t)
	payload := `{"mcpServers":{"files":{"command":"file-server"}}}`

	require.NoError(t, eng.InstallMCP(context.Background(), nil, []byte(payload)))

	assert.Equal(t, payload, read(t, projectRoot, vault.DefaultSubdir+"/mcp_config.json"))
	assert.Equal(t, payload, read(t, projectRoot, ".cursor/mcp.json"))
	assert.Equal(t, payload, read(t, projectRoot, ".kiro/settings/mcp.json"))
	assert.Equal(t, payload, read(t, projectRoot, ".windsurf/mcp_config.json"))

	err := eng.InstallMCP(context.Background(), nil, []byte("{not json"))
	require.ErrorContains(t, err, "valid JSON")
}

func TestSnapshot_SaveRestoreLifecycle(t *testing.T) {
	projectRoot := t.TempDir()
	home := t.TempDir()
	snaps, err := snapshot.NewStore(snapshot.Config{
		Root:   filepath.Join(home, "snapshots", "proj"),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	// Default on-disk ledger, so restore must carry the control
	// directory across the tree swap.
	eng, err := New(Config{
		ProjectRoot: projectRoot,
		Vaults:      newTestRegistry(t, home),
		Snapshots:   snaps,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	v1 := "---\ndescription: Style v1\n---\n\nFirst.\n"
	write(t, projectRoot, vault.DefaultSubdir+"/agents/style.md", v1)
	_, err = eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	manifest, err := eng.SaveSnapshot(context.Background(), "golden", "before experiment", false)
	require.NoError(t, err)
	assert.Equal(t, "golden", manifest.Name)
	assert.Equal(t, 1, manifest.Files)

	write(t, projectRoot, vault.DefaultSubdir+"/agents/style.md",
		"---\ndescription: Style v2\n---\n\nSecond.\n")
	write(t, projectRoot, vault.DefaultSubdir+"/rules/extra.md", "Extra.\n")
	_, err = eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)

	require.NoError(t, eng.RestoreSnapshot(context.Background(), "golden"))

	assert.Equal(t, v1, read(t, projectRoot, vault.DefaultSubdir+"/agents/style.md"))
	assert.NoFileExists(t, filepath.Join(projectRoot,
		vault.DefaultSubdir, "rules", "extra.md"))

	// The ledger survived the swap; it still tracks the two files from
	// the last sync because restore never touches target trees.
	entries, err := eng.ledger.ListTarget(context.Background(), string(project.TargetCursor))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The engine stays fully operational after the reopen.
	rep, err := eng.Sync(context.Background(), SyncOptions{
		Targets: []project.Target{project.TargetCursor},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Files)

	entries, err = eng.ledger.ListTarget(context.Background(), string(project.TargetCursor))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnapshot_OperationsRequireStore(t *testing.T) {
	projectRoot := t.TempDir()
	eng, err := New(Config{
		ProjectRoot: projectRoot,
		Vaults:      newTestRegistry(t, t.TempDir()),
		Ledger:      ledger.InMemoryConfig(),
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	_, err = eng.SaveSnapshot(context.Background(), "x", "", false)
	require.ErrorContains(t, err, "no snapshot store")
	err = eng.RestoreSnapshot(context.Background(), "x")
	require.ErrorContains(t, err, "no snapshot store")

	rep, err := eng.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Snapshots)
}
