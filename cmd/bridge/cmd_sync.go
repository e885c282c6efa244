// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/engine"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
	"github.com/AleutianAI/AgentBridge/services/bridge/watch"
)

// runSync merges the vaults, writes the canonical tree, and projects it
// into each target format. With --watch it stays running and re-syncs
// whenever the canonical tree or the vault registry changes.
func runSync(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	targets := rt.parseTargets(syncTargets)

	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := syncOnce(ctx, eng, targets, syncRefresh)
	if err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("Sync failed", err)
	}
	printSyncReport(report)
	ux.Success("Sync complete")

	if syncWatch {
		runWatchLoop(ctx, rt, eng, targets)
	}
}

func syncOnce(ctx context.Context, eng *engine.Engine, targets []project.Target, refresh bool) (*engine.SyncReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	return eng.Sync(ctx, engine.SyncOptions{Targets: targets, Refresh: refresh})
}

// runWatchLoop re-syncs on filesystem changes until interrupted. The
// canonical tree, the registry file, and any enabled local vaults are
// watched; remote caches only change through an explicit refresh.
func runWatchLoop(ctx context.Context, rt *runtime, eng *engine.Engine, targets []project.Target) {
	roots := []string{eng.CanonicalRoot()}
	for _, v := range rt.vaults.Enabled() {
		if !v.IsLocal() {
			continue
		}
		sub := v.Subdir
		if sub == "" {
			sub = vault.DefaultSubdir
		}
		root, err := filepath.Abs(filepath.Join(v.URL, sub))
		if err != nil {
			continue
		}
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			roots = append(roots, root)
		}
	}

	handler := func(changes []watch.Change) {
		ux.Info(fmt.Sprintf("%d changes detected, syncing", len(changes)))
		report, err := syncOnce(ctx, eng, targets, false)
		if err != nil {
			if errors.Is(err, lock.ErrFileLocked) {
				ux.Warning("Project locked by another process, retrying on the next change")
				return
			}
			ux.Error(fmt.Sprintf("Sync failed: %v", err))
			return
		}
		written := 0
		for _, t := range report.Targets {
			written += t.Written
		}
		ux.Success(fmt.Sprintf("Synced %d canonical files, %d projections written", report.Files, written))
	}

	watcher, err := watch.New(handler, watch.Config{
		Roots:    roots,
		Files:    []string{rt.vaults.Path()},
		Debounce: rt.cfg.Watch.Debounce,
		Logger:   rt.logger.Slog(),
	})
	if err != nil {
		fatal("Cannot build the watcher", err)
	}
	if err := watcher.Start(ctx); err != nil {
		fatal("Cannot start the watcher", err)
	}
	defer watcher.Stop()

	ux.Info(fmt.Sprintf("Watching %d roots, Ctrl+C stops", len(roots)))
	<-ctx.Done()
	ux.Muted("Watch stopped.")
}

// printSyncReport lists per-target projection results, the per-source
// breakdown, and the totals.
func printSyncReport(report *engine.SyncReport) {
	for _, t := range report.Targets {
		ux.PathStatus(string(t.Target), ux.IconSuccess,
			fmt.Sprintf("%d written, %d skipped", t.Written, t.Skipped))
	}
	if len(report.BySource) > 0 {
		names := make([]string, 0, len(report.BySource))
		for name := range report.BySource {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s %d", name, report.BySource[name]))
		}
		ux.Muted("sources: " + strings.Join(parts, ", "))
	}

	written, skipped := 0, 0
	for _, t := range report.Targets {
		written += t.Written
		skipped += t.Skipped
	}
	ux.Summary(
		ux.Count{Label: "canonical", N: report.Files},
		ux.Count{Label: "written", N: written},
		ux.Count{Label: "skipped", N: skipped},
	)
}
