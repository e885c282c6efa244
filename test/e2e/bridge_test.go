// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// bridgeEnv is one isolated bridge installation: a scratch home for
// config, registry, and snapshots, plus a scratch project directory.
type bridgeEnv struct {
	home    string
	project string
	env     []string
}

func newBridgeEnv(t *testing.T) *bridgeEnv {
	t.Helper()
	b := &bridgeEnv{home: t.TempDir(), project: t.TempDir()}
	b.env = append(os.Environ(), "AGENTBRIDGE_HOME="+b.home)
	return b
}

// run executes the CLI in plain mode against the scratch project and
// fails the test on a non-zero exit.
func (b *bridgeEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := b.tryRun(args...)
	if err != nil {
		t.Fatalf("bridge %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (b *bridgeEnv) tryRun(args ...string) (string, error) {
	full := append([]string{"--plain", "--project", b.project}, args...)
	cmd := exec.Command(cliBinary, full...)
	cmd.Env = b.env
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append to %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// TestBridgeLifecycle drives the whole flow through the real binary:
// init seeds and projects, capture respects the conflict policy,
// snapshots round-trip the canonical tree, clean strips projections.
func TestBridgeLifecycle(t *testing.T) {
	b := newBridgeEnv(t)

	out := b.run(t, "init", "--no-input")
	if !strings.Contains(out, "OK: Project initialized") {
		t.Fatalf("unexpected init output:\n%s", out)
	}

	canonicalRule := filepath.Join(b.project, ".agent", "rules", "code-style.md")
	if _, err := os.Stat(canonicalRule); err != nil {
		t.Fatalf("starter rule missing after init: %v", err)
	}
	projected := filepath.Join(b.project, ".cursor", "rules", "code-style.mdc")
	if _, err := os.Stat(projected); err != nil {
		t.Fatalf("cursor projection missing after init: %v", err)
	}

	// An IDE-side edit is reported but stays out of the canonical tree
	// under the default policy.
	appendLine(t, projected, "- Trailing e2e note.")
	out = b.run(t, "capture")
	if !strings.Contains(out, "kept canonical") {
		t.Fatalf("capture did not report the conflict:\n%s", out)
	}
	if !strings.Contains(out, "skipped=1") {
		t.Fatalf("capture summary wrong:\n%s", out)
	}
	if strings.Contains(readFile(t, canonicalRule), "Trailing e2e note.") {
		t.Fatal("default capture rewrote the canonical file")
	}

	// ide_wins folds the edit in.
	out = b.run(t, "capture", "--policy", "ide_wins")
	if !strings.Contains(out, "updated=1") {
		t.Fatalf("ide_wins capture summary wrong:\n%s", out)
	}
	if !strings.Contains(readFile(t, canonicalRule), "Trailing e2e note.") {
		t.Fatal("ide_wins capture did not update the canonical file")
	}

	// Snapshots: save, mutate, restore.
	out = b.run(t, "snapshot", "save", "golden", "-d", "before experiment")
	if !strings.Contains(out, `Saved snapshot "golden"`) {
		t.Fatalf("unexpected save output:\n%s", out)
	}
	appendLine(t, canonicalRule, "EXPERIMENT MARKER")
	out = b.run(t, "snapshot", "restore", "golden", "--yes")
	if !strings.Contains(out, "OK: Restored snapshot") {
		t.Fatalf("unexpected restore output:\n%s", out)
	}
	restored := readFile(t, canonicalRule)
	if strings.Contains(restored, "EXPERIMENT MARKER") {
		t.Fatal("restore kept the post-snapshot edit")
	}
	if !strings.Contains(restored, "Trailing e2e note.") {
		t.Fatal("restore lost the captured content")
	}

	out = b.run(t, "snapshot", "list")
	if !strings.Contains(out, "golden") {
		t.Fatalf("snapshot list missing the snapshot:\n%s", out)
	}
	out = b.run(t, "snapshot", "info", "golden")
	if !strings.Contains(out, "sections") {
		t.Fatalf("snapshot info missing the contents summary:\n%s", out)
	}

	out = b.run(t, "status")
	if !strings.Contains(out, "SUMMARY:") {
		t.Fatalf("status printed no summary:\n%s", out)
	}

	b.run(t, "clean", "--yes")
	if _, err := os.Stat(filepath.Join(b.project, ".cursor", "rules")); !os.IsNotExist(err) {
		t.Fatal(".cursor/rules should be gone after clean")
	}

	// Init on an initialized project is a plain re-sync.
	b.run(t, "init", "--no-input")
	if _, err := os.Stat(projected); err != nil {
		t.Fatalf("re-init did not restore the projection: %v", err)
	}
}

func TestBridgeVaultRegistry(t *testing.T) {
	b := newBridgeEnv(t)
	vaultDir := t.TempDir()

	out := b.run(t, "vault", "list")
	if !strings.Contains(out, "builtin-starter") {
		t.Fatalf("fresh registry should carry the starter vault:\n%s", out)
	}

	out = b.run(t, "vault", "add", "team-notes", vaultDir, "--rank", "20", "-d", "team conventions")
	if !strings.Contains(out, "OK: Added team-notes (local, priority 20)") {
		t.Fatalf("unexpected add output:\n%s", out)
	}

	out = b.run(t, "vault", "list")
	if !strings.Contains(out, "team-notes") {
		t.Fatalf("added vault missing from list:\n%s", out)
	}

	b.run(t, "vault", "disable", "team-notes")
	out = b.run(t, "vault", "list")
	if !strings.Contains(out, "disabled") {
		t.Fatalf("disabled vault not marked:\n%s", out)
	}

	b.run(t, "vault", "remove", "team-notes")
	out, err := b.tryRun("vault", "remove", "team-notes")
	if err == nil {
		t.Fatalf("removing a missing vault should fail:\n%s", out)
	}
	if !strings.Contains(out, "No vault named") {
		t.Fatalf("unexpected error output:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(b.home, "vaults.json")); err != nil {
		t.Fatalf("registry file missing: %v", err)
	}
}

func TestBridgeFailureModes(t *testing.T) {
	b := newBridgeEnv(t)
	b.run(t, "init", "--no-input")

	out, err := b.tryRun("snapshot", "info", "nope")
	if err == nil {
		t.Fatalf("info on a missing snapshot should fail:\n%s", out)
	}
	if !strings.Contains(out, "No snapshot named") {
		t.Fatalf("unexpected error output:\n%s", out)
	}

	b.run(t, "snapshot", "save", "checkpoint")
	out, err = b.tryRun("snapshot", "save", "checkpoint")
	if err == nil {
		t.Fatalf("duplicate save without --overwrite should fail:\n%s", out)
	}
	if !strings.Contains(out, "--overwrite") {
		t.Fatalf("duplicate save error should mention --overwrite:\n%s", out)
	}
	b.run(t, "snapshot", "save", "checkpoint", "--overwrite")
	b.run(t, "snapshot", "delete", "checkpoint", "--yes")
	out = b.run(t, "snapshot", "list")
	if !strings.Contains(out, "No snapshots saved") {
		t.Fatalf("list after delete should be empty:\n%s", out)
	}

	// Unknown formats are a usage error.
	out, err = b.tryRun("sync", "--target", "emacs")
	if err == nil {
		t.Fatalf("unknown target should fail:\n%s", out)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Fatalf("unknown target should exit 2, got %v:\n%s", err, out)
	}

	// Destructive commands refuse to guess without a terminal.
	out, err = b.tryRun("clean")
	if err == nil {
		t.Fatalf("clean without --yes should fail non-interactively:\n%s", out)
	}
	if !strings.Contains(out, "--yes") {
		t.Fatalf("refusal should mention --yes:\n%s", out)
	}
}
