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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
)

// runClean removes the generated IDE files and their ledger entries.
// The canonical tree is never touched; a sync brings everything back.
func runClean(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	targets := rt.parseTargets(cleanTargets)
	root := rt.projectRoot()

	label := "every target format"
	if len(targets) > 0 {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		label = strings.Join(names, ", ")
	}
	if !confirm(fmt.Sprintf("Remove the generated %s files under %s?", label, root)) {
		return
	}

	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := eng.Clean(ctx, targets); err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("Clean failed", err)
	}

	ux.Success("Removed the generated target files")
	ux.Tip("'bridge sync' regenerates them from the canonical tree")
}
