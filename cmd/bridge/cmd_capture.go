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
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/capture"
	"github.com/AleutianAI/AgentBridge/services/bridge/engine"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/tui"
)

// runCapture folds IDE-side edits back into the canonical tree. A run
// that only finds conflicts still exits zero; the report is the result.
func runCapture(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	policyName := rt.cfg.Defaults.Policy
	if capturePolicy != "" {
		policyName = capturePolicy
	}
	policy, err := capture.ParsePolicy(policyName)
	if err != nil {
		fatalCode(ExitBadArgs, "Invalid capture policy", err)
	}
	targets := rt.parseTargets(captureTargets)

	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if captureReview {
		runCaptureReview(ctx, eng, targets)
		return
	}

	report, err := eng.Capture(ctx, engine.CaptureOptions{
		Policy:    policy,
		Targets:   targets,
		DryRun:    captureDryRun,
		WithDiffs: captureDiff,
	})
	if err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("Capture failed", err)
	}

	printCaptureReport(report, captureDryRun)
	if captureDiff {
		printDiffs(report)
	}
}

// runCaptureReview shows every diverged file in a TUI and applies only
// the accepted ones. The first pass is a dry ide_wins capture, so the
// diffs show exactly what an accept would write.
func runCaptureReview(ctx context.Context, eng *engine.Engine, targets []project.Target) {
	dry, err := eng.Capture(ctx, engine.CaptureOptions{
		Policy:    capture.PolicyIDEWins,
		Targets:   targets,
		DryRun:    true,
		WithDiffs: true,
	})
	if err != nil {
		fatal("Capture failed", err)
	}
	if dry.Divergent() == 0 {
		ux.Success("Nothing to review, targets match the last sync")
		return
	}

	if len(dry.DeletedInTarget) > 0 {
		for _, p := range dry.DeletedInTarget {
			ux.PathStatus(p, ux.IconPending, "deleted in target")
		}
		ux.Warning(fmt.Sprintf("%d files were deleted on the IDE side; deletions are never applied automatically", len(dry.DeletedInTarget)))
	}

	paths := make([]string, 0, len(dry.Diffs))
	for p := range dry.Diffs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		ux.Info("No reviewable edits")
		return
	}

	items := make([]tui.Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, tui.Item{Path: p, Diff: dry.Diffs[p]})
	}
	result, err := tui.Review(items)
	if err != nil {
		fatal("Review failed", err)
	}
	if result.Cancelled {
		ux.Muted("Review cancelled, nothing applied.")
		return
	}
	if len(result.Accepted) == 0 {
		ux.Info("No files accepted, nothing applied")
		return
	}

	report, err := eng.Capture(ctx, engine.CaptureOptions{
		Policy:  capture.PolicyIDEWins,
		Targets: targets,
		Paths:   result.Accepted,
	})
	if err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("Capture failed", err)
	}
	printCaptureReport(report, false)
}

func printCaptureReport(rep *capture.Report, dryRun bool) {
	for _, p := range rep.AdoptedPaths {
		ux.PathStatus(p, ux.IconSuccess, "adopted")
	}
	for _, p := range rep.UpdatedPaths {
		ux.PathStatus(p, ux.IconSuccess, "updated")
	}
	for _, p := range rep.SkippedPaths {
		ux.PathStatus(p, ux.IconWarning, "kept canonical")
	}
	for _, p := range rep.DeletedInTarget {
		ux.PathStatus(p, ux.IconPending, "deleted in target")
	}
	for _, p := range rep.Failed {
		ux.PathStatus(p, ux.IconError, "could not be read back")
	}

	ux.Summary(
		ux.Count{Label: "adopted", N: rep.Adopted},
		ux.Count{Label: "updated", N: rep.Updated},
		ux.Count{Label: "unchanged", N: rep.Unchanged},
		ux.Count{Label: "skipped", N: rep.Skipped},
		ux.Count{Label: "deleted", N: len(rep.DeletedInTarget)},
	)

	if len(rep.DeletedInTarget) > 0 {
		ux.Tip("Deletions are never applied: remove the canonical file too, or 'bridge sync' to restore the projection")
	}
	if len(rep.Failed) > 0 {
		ux.Warning(fmt.Sprintf("%d files could not be read back, see the log for details", len(rep.Failed)))
	}
	if rep.Skipped > 0 && rep.Policy == capture.PolicyAgentWins {
		ux.Tip("Re-run with --policy ide_wins or --review to take the IDE-side edits")
	}
	if dryRun {
		ux.Muted("Dry run, nothing written.")
	}
}

// printDiffs dumps the unified previews in path order.
func printDiffs(rep *capture.Report) {
	paths := make([]string, 0, len(rep.Diffs))
	for p := range rep.Diffs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Println()
		fmt.Println(ux.Styles.Bold.Render(p))
		fmt.Print(rep.Diffs[p])
	}
}
