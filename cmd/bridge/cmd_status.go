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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
)

// runStatus reports vaults, canonical file counts, and per-target drift
// without taking the project lock or writing anything.
func runStatus(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := eng.Status(ctx)
	if err != nil {
		fatal("Status failed", err)
	}

	ux.Title("Bridge status")
	ux.Muted(report.Project)

	fmt.Println()
	for _, v := range report.Vaults {
		status := ux.IconSuccess
		note := fmt.Sprintf("%s, rank %d", v.Kind(), v.Priority)
		if !v.Enabled {
			status = ux.IconPending
			note += ", disabled"
		}
		ux.PathStatus(v.Name, status, note)
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

	fmt.Println()
	divergent := 0
	for _, t := range report.Targets {
		switch {
		case !t.Capturable:
			ux.PathStatus(string(t.Target), ux.IconArrow,
				fmt.Sprintf("%d tracked, projection only", t.Tracked))
		case t.Divergent > 0:
			ux.PathStatus(string(t.Target), ux.IconWarning,
				fmt.Sprintf("%d of %d tracked diverged", t.Divergent, t.Tracked))
			divergent += t.Divergent
		default:
			ux.PathStatus(string(t.Target), ux.IconSuccess,
				fmt.Sprintf("%d tracked, in sync", t.Tracked))
		}
	}

	ux.Summary(
		ux.Count{Label: "canonical", N: report.Files},
		ux.Count{Label: "vaults", N: len(report.Vaults)},
		ux.Count{Label: "snapshots", N: report.Snapshots},
	)
	if divergent > 0 {
		ux.Tip("Run 'bridge capture --review' to pull the IDE-side edits back")
	}
}
