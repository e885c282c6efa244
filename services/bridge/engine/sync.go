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
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// InitOptions controls first-time project setup.
type InitOptions struct {
	// Targets selects the formats to project. Empty means every
	// registered format.
	Targets []project.Target

	// SeedBuiltin materializes the embedded starter vault into the
	// canonical tree before the first sync. Files the project already
	// has are kept.
	SeedBuiltin bool

	// Force overwrites existing files when seeding.
	Force bool
}

// SyncOptions controls a sync pass.
type SyncOptions struct {
	// Targets selects the formats to project. Empty means every
	// registered format.
	Targets []project.Target

	// Refresh pulls remote vault caches before merging. Per-vault
	// refresh failures are logged and the sync continues on the stale
	// cache.
	Refresh bool
}

// TargetSync summarizes one converter's projection.
type TargetSync struct {
	Target  project.Target `json:"target"`
	Written int            `json:"written"`
	Skipped int            `json:"skipped"`
}

// SyncReport describes one completed sync pass.
type SyncReport struct {
	// Files is the merged canonical artifact count.
	Files int `json:"files"`

	// BySource counts merged files per contributing source name.
	BySource map[string]int `json:"by_source"`

	// Targets lists per-format projection results in registry order.
	Targets []TargetSync `json:"targets"`
}

// Init prepares a project for bridging: it creates the canonical tree,
// optionally seeds it from the embedded starter vault, and runs the first
// sync. Init on an already-initialized project is a plain sync with
// optional re-seeding.
func (e *Engine) Init(ctx context.Context, opts InitOptions) (*SyncReport, error) {
	guard, err := e.lockProject()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	if err := os.MkdirAll(e.canonical, 0o755); err != nil {
		return nil, tree.IOFailure("init", e.canonical, err)
	}
	if opts.SeedBuiltin {
		if err := e.seedBuiltin(ctx, opts.Force); err != nil {
			return nil, err
		}
	}
	return e.sync(ctx, opts.Targets)
}

// seedBuiltin copies the embedded starter artifacts into the canonical
// tree. Existing files win unless force is set.
func (e *Engine) seedBuiltin(ctx context.Context, force bool) error {
	src := vault.NewBuiltinSource()
	paths, err := src.List(ctx)
	if err != nil {
		return err
	}
	seeded := 0
	for _, rel := range paths {
		abs, err := tree.Join(e.canonical, rel)
		if err != nil {
			return err
		}
		if !force {
			if _, serr := os.Stat(abs); serr == nil {
				continue
			}
		}
		data, err := src.Read(ctx, rel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return tree.IOFailure("init", rel, err)
		}
		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return tree.IOFailure("init", rel, err)
		}
		seeded++
	}
	e.logger.Info("starter vault seeded",
		"project", e.projectRoot, "files", seeded, "force", force)
	return nil
}

// Sync merges every source into the canonical view and projects it into
// the selected target formats, rewriting each target's ledger entries to
// match what was projected.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	guard, err := e.lockProject()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	if opts.Refresh {
		results, err := e.vaults.RefreshAll(ctx, e.workers)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if res.Err != nil {
				e.logger.Warn("vault refresh failed, syncing from cache",
					"vault", res.Vault, "error", res.Err)
			}
		}
	}
	return e.sync(ctx, opts.Targets)
}

// sync is the lock-free core shared by Init and Sync. The caller holds
// the project lock.
func (e *Engine) sync(ctx context.Context, targets []project.Target) (*SyncReport, error) {
	converters, err := e.resolveConverters(targets)
	if err != nil {
		return nil, err
	}

	vaultSources := e.vaults.Sources(e.projectRoot)
	sources := make([]merge.Source, len(vaultSources))
	for i, s := range vaultSources {
		sources[i] = s
	}
	merged, provenance, err := merge.Merge(ctx, sources, merge.Config{
		Excludes: e.excludes,
		Workers:  e.workers,
		Logger:   e.logger,
	})
	if err != nil {
		return nil, err
	}

	report := &SyncReport{
		Files:    merged.Len(),
		BySource: make(map[string]int, len(sources)),
	}
	for _, name := range provenance {
		report.BySource[name]++
	}

	now := time.Now().UTC()
	for _, c := range converters {
		res, err := c.Forward(ctx, merged, e.projectRoot)
		if err != nil {
			return nil, err
		}
		entries := make([]ledger.Entry, 0, len(res.Written))
		for _, pf := range res.Written {
			entries = append(entries, ledger.Entry{
				Target:        string(c.ID()),
				CanonicalPath: pf.CanonicalPath,
				TargetPath:    pf.TargetPath,
				Digest:        pf.Digest,
				SyncedAt:      now,
			})
		}
		if err := e.ledger.ReplaceTarget(ctx, string(c.ID()), entries); err != nil {
			return nil, err
		}
		report.Targets = append(report.Targets, TargetSync{
			Target:  c.ID(),
			Written: len(res.Written),
			Skipped: len(res.Skipped),
		})
	}

	e.logger.Info("project synchronized",
		"project", e.projectRoot,
		"files", report.Files,
		"targets", len(report.Targets))
	return report, nil
}
