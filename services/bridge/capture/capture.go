// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capture pulls edits made inside IDE target directories back into
// the project-local canonical tree.
//
// A capture pass walks every reverse-capable target, maps each file back
// to its canonical artifact, and compares content digests against the sync
// ledger. Files the ledger has never seen are adopted; files matching
// their ledger digest are untouched; diverged files follow the configured
// policy. Divergence is never an error, and nothing in the target is ever
// deleted by this package: files that disappeared from a target are only
// reported.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// Policy selects who wins when a target file diverges from its ledger
// digest.
type Policy string

const (
	// PolicyIDEWins writes the target's content back into the canonical
	// tree.
	PolicyIDEWins Policy = "ide_wins"

	// PolicyAgentWins keeps the canonical tree and reports the divergence.
	PolicyAgentWins Policy = "agent_wins"
)

// ParsePolicy validates a policy name from user input.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyIDEWins, PolicyAgentWins:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown capture policy %q (want %s or %s)",
		s, PolicyIDEWins, PolicyAgentWins)
}

// Config tunes one capture pass.
type Config struct {
	// ProjectRoot is the project directory holding the IDE targets.
	ProjectRoot string

	// CanonicalRoot is the project-local artifact directory that adopted
	// and updated files are written to. Defaults to ProjectRoot/.agent.
	CanonicalRoot string

	// Ledger is the sync ledger recording projected digests.
	Ledger *ledger.Store

	// Policy resolves diverged files. Defaults to PolicyAgentWins, which
	// never rewrites the canonical tree.
	Policy Policy

	// DryRun computes the full report without writing anything.
	DryRun bool

	// WithDiffs attaches a unified diff preview per changed file.
	WithDiffs bool

	// Paths, when non-empty, limits adoption and update writes to these
	// project-root-relative target files. Diverged files outside the set
	// are reported as skipped whatever the policy says. Interactive review
	// runs a dry pass first and feeds the accepted paths back through here.
	Paths []string

	Logger *slog.Logger

	allow map[string]bool
}

// Report aggregates one capture pass.
type Report struct {
	Policy Policy

	Adopted   int
	Updated   int
	Unchanged int
	Skipped   int

	// AdoptedPaths and UpdatedPaths are canonical paths written (or, in a
	// dry run, that would be written).
	AdoptedPaths []string
	UpdatedPaths []string

	// SkippedPaths are diverged target files left alone under agent_wins.
	SkippedPaths []string

	// DeletedInTarget lists ledger-known target files now absent from the
	// target. They are reported, never acted upon.
	DeletedInTarget []string

	// Failed lists target files whose content could not be restored, such
	// as an agent JSON that no longer parses.
	Failed []string

	// Diffs holds unified previews keyed by target path when requested.
	Diffs map[string]string
}

// Divergent counts the paths where target and canonical tree differ.
func (r *Report) Divergent() int {
	return r.Adopted + r.Updated + r.Skipped + len(r.DeletedInTarget)
}

// Run executes one capture pass over the reverse-capable converters.
// Write-only converters are skipped. The returned error covers
// infrastructure failures only; per-file conflicts and restore problems
// land in the report.
func Run(ctx context.Context, converters []project.Converter, cfg Config) (*Report, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("capture: ledger is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAgentWins
	}
	if cfg.CanonicalRoot == "" {
		cfg.CanonicalRoot = filepath.Join(cfg.ProjectRoot, vault.DefaultSubdir)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Paths) > 0 {
		cfg.allow = make(map[string]bool, len(cfg.Paths))
		for _, p := range cfg.Paths {
			cfg.allow[filepath.ToSlash(p)] = true
		}
	}

	rep := &Report{Policy: cfg.Policy}
	if cfg.WithDiffs {
		rep.Diffs = make(map[string]string)
	}
	for _, c := range converters {
		rm, ok := c.(project.ReverseMapper)
		if !ok {
			cfg.Logger.Debug("target is write-only, not captured", "target", c.ID())
			continue
		}
		if err := captureTarget(ctx, string(c.ID()), rm, cfg, rep); err != nil {
			return nil, err
		}
	}
	cfg.Logger.Info("capture pass finished",
		"policy", cfg.Policy, "adopted", rep.Adopted, "updated", rep.Updated,
		"unchanged", rep.Unchanged, "skipped", rep.Skipped,
		"deleted_in_target", len(rep.DeletedInTarget), "dry_run", cfg.DryRun)
	return rep, nil
}

func captureTarget(ctx context.Context, target string, rm project.ReverseMapper, cfg Config, rep *Report) error {
	root := rm.TargetRoot(cfg.ProjectRoot)
	seen := make(map[string]bool)

	if _, err := os.Stat(root); err == nil {
		walker := func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return tree.IOFailure("capture", p, err)
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			relOS, rerr := filepath.Rel(cfg.ProjectRoot, p)
			if rerr != nil {
				return tree.IOFailure("capture", p, rerr)
			}
			rel := filepath.ToSlash(relOS)
			canonicalRel, ours := rm.ReverseMap(rel)
			if !ours {
				return nil
			}
			seen[rel] = true
			return captureFile(ctx, target, rel, canonicalRel, p, rm, cfg, rep)
		}
		if err := filepath.WalkDir(root, walker); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return tree.IOFailure("capture", root, err)
	}

	// Files the ledger knows but the walk no longer found were deleted on
	// the target side.
	entries, err := cfg.Ledger.ListTarget(ctx, target)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.CanonicalPath != "" && !seen[e.TargetPath] {
			rep.DeletedInTarget = append(rep.DeletedInTarget, e.TargetPath)
		}
	}
	return nil
}

func captureFile(ctx context.Context, target, rel, canonicalRel, abs string, rm project.ReverseMapper, cfg Config, rep *Report) error {
	data, err := os.ReadFile(abs)
	if err != nil {
		return tree.IOFailure("capture", rel, err)
	}
	digest := fingerprint.Fingerprint(data)

	entry, gerr := cfg.Ledger.Get(ctx, target, rel)
	known := gerr == nil
	if gerr != nil && !errors.Is(gerr, tree.ErrNotFound) {
		return gerr
	}
	if known && entry.Digest == digest {
		rep.Unchanged++
		return nil
	}

	canonicalAbs, err := tree.Join(cfg.CanonicalRoot, canonicalRel)
	if err != nil {
		return err
	}
	existing, rerr := os.ReadFile(canonicalAbs)
	if rerr != nil {
		existing = nil
	}
	restored, resErr := rm.Restore(canonicalRel, data, existing)
	if resErr != nil {
		rep.Failed = append(rep.Failed, rel)
		cfg.Logger.Warn("target file could not be restored",
			"target", target, "path", rel, "error", resErr)
		return nil
	}

	allowed := cfg.allow == nil || cfg.allow[rel]
	switch {
	case !allowed:
		rep.Skipped++
		rep.SkippedPaths = append(rep.SkippedPaths, rel)
		cfg.Logger.Debug("divergence outside the accepted set",
			"target", target, "path", rel, "canonical", canonicalRel)
	case !known:
		if err := writeCaptured(ctx, target, rel, canonicalRel, canonicalAbs, restored, digest, cfg); err != nil {
			return err
		}
		rep.Adopted++
		rep.AdoptedPaths = append(rep.AdoptedPaths, canonicalRel)
		cfg.Logger.Debug("adopted target file",
			"target", target, "path", rel, "canonical", canonicalRel)
	case cfg.Policy == PolicyIDEWins:
		if err := writeCaptured(ctx, target, rel, canonicalRel, canonicalAbs, restored, digest, cfg); err != nil {
			return err
		}
		rep.Updated++
		rep.UpdatedPaths = append(rep.UpdatedPaths, canonicalRel)
		cfg.Logger.Debug("captured target edit",
			"target", target, "path", rel, "canonical", canonicalRel)
	default:
		rep.Skipped++
		rep.SkippedPaths = append(rep.SkippedPaths, rel)
		cfg.Logger.Debug("divergence kept on target side",
			"target", target, "path", rel, "canonical", canonicalRel)
	}
	if cfg.WithDiffs {
		rep.Diffs[rel] = Unified(canonicalRel, existing, restored)
	}
	return nil
}

// writeCaptured lands restored canonical content and records the target
// digest in the ledger. Dry runs skip both writes.
func writeCaptured(ctx context.Context, target, rel, canonicalRel, canonicalAbs string, restored []byte, digest fingerprint.Digest, cfg Config) error {
	if cfg.DryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(canonicalAbs), 0o755); err != nil {
		return tree.IOFailure("capture", canonicalRel, err)
	}
	if err := os.WriteFile(canonicalAbs, restored, 0o644); err != nil {
		return tree.IOFailure("capture", canonicalRel, err)
	}
	return cfg.Ledger.Put(ctx, ledger.Entry{
		Target:        target,
		CanonicalPath: canonicalRel,
		TargetPath:    rel,
		Digest:        digest,
		SyncedAt:      time.Now().UTC(),
	})
}
