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
	"errors"

	"github.com/AleutianAI/AgentBridge/services/bridge/capture"
	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/snapshot"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// errNoSnapshots is returned by snapshot operations on an engine built
// without a snapshot store.
var errNoSnapshots = errors.New("engine: no snapshot store configured")

// TargetStatus describes one target format's sync state.
type TargetStatus struct {
	Target project.Target `json:"target"`

	// Capturable reports whether the converter can map target edits
	// back to canonical paths.
	Capturable bool `json:"capturable"`

	// Tracked is the number of ledger entries for this target.
	Tracked int `json:"tracked"`

	// Divergent counts target files a capture pass would act on:
	// edited, untracked, or deleted since the last sync.
	Divergent int `json:"divergent"`
}

// StatusReport is a read-only snapshot of a project's bridge state.
type StatusReport struct {
	Project   string         `json:"project"`
	Vaults    []vault.Vault  `json:"vaults"`
	Files     int            `json:"files"`
	BySource  map[string]int `json:"by_source"`
	Targets   []TargetStatus `json:"targets"`
	Snapshots int            `json:"snapshots"`
}

// Status merges the current sources and reports, per target, how far the
// projected trees have drifted since the last sync. It takes no project
// lock and writes nothing.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
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

	report := &StatusReport{
		Project:  e.projectRoot,
		Vaults:   e.vaults.List(),
		Files:    merged.Len(),
		BySource: make(map[string]int, len(sources)),
	}
	for _, name := range provenance {
		report.BySource[name]++
	}

	for _, c := range e.converters.All() {
		ts := TargetStatus{Target: c.ID()}
		entries, err := e.ledger.ListTarget(ctx, string(c.ID()))
		if err != nil {
			return nil, err
		}
		ts.Tracked = len(entries)
		if _, ok := c.(project.ReverseMapper); ok {
			ts.Capturable = true
			rep, err := capture.Run(ctx, []project.Converter{c}, capture.Config{
				ProjectRoot:   e.projectRoot,
				CanonicalRoot: e.canonical,
				Ledger:        e.ledger,
				DryRun:        true,
				Logger:        e.logger,
			})
			if err != nil {
				return nil, err
			}
			ts.Divergent = rep.Divergent()
		}
		report.Targets = append(report.Targets, ts)
	}

	if e.snapshots != nil {
		manifests, err := e.snapshots.List(ctx)
		if err != nil {
			return nil, err
		}
		report.Snapshots = len(manifests)
	}
	return report, nil
}

// SaveSnapshot stores the canonical tree under a name. Saving reads the
// tree without mutating the project, so it takes no project lock.
func (e *Engine) SaveSnapshot(ctx context.Context, name, description string, overwrite bool) (*snapshot.Manifest, error) {
	if e.snapshots == nil {
		return nil, errNoSnapshots
	}
	return e.snapshots.Save(ctx, snapshot.SaveRequest{
		Name:          name,
		Description:   description,
		SourceRoot:    e.canonical,
		SourceProject: e.projectRoot,
		Overwrite:     overwrite,
	})
}

// RestoreSnapshot replaces the canonical tree with a stored snapshot.
// The ledger closes for the directory swap and reopens from the restored
// control directory; ledger digests stay valid because they fingerprint
// target files, which a restore does not touch.
func (e *Engine) RestoreSnapshot(ctx context.Context, name string) error {
	if e.snapshots == nil {
		return errNoSnapshots
	}
	guard, err := e.lockProject()
	if err != nil {
		return err
	}
	defer guard.Release()

	if err := e.ledger.Close(); err != nil {
		return err
	}
	restoreErr := e.snapshots.Restore(ctx, name, e.canonical)

	store, openErr := ledger.Open(e.ledgerCfg)
	if openErr == nil {
		e.ledger = store
	}
	if restoreErr != nil {
		return restoreErr
	}
	return openErr
}
