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
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/cmd/bridge/config"
	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/engine"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// runInit prepares a project for bridging: scaffolds the bridge home on
// first run, asks which formats to project, seeds the starter vault,
// and runs the first sync.
func runInit(cmd *cobra.Command, args []string) {
	if len(args) > 0 {
		projectDir = args[0]
	}

	rt := newRuntime()
	defer rt.close()

	created, err := config.EnsureDefault(rt.home)
	if err != nil {
		fatal("Cannot scaffold the bridge home", err)
	}
	if created {
		ux.Info(fmt.Sprintf("Wrote default configuration to %s", config.Path(rt.home)))
	}

	seed := !initNoSeed
	if !initNoInput && len(initTargets) == 0 && ux.IsInteractive() {
		if !initWizard(&initTargets, &seed) {
			ux.Muted("Initialization cancelled.")
			return
		}
	}
	targets := rt.parseTargets(initTargets)

	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ux.Title(fmt.Sprintf("Initializing %s", eng.ProjectRoot()))
	report, err := eng.Init(ctx, engine.InitOptions{
		Targets:     targets,
		SeedBuiltin: seed,
		Force:       initForce,
	})
	if err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("Initialization failed", err)
	}

	printSyncReport(report)
	ux.Success("Project initialized")
	ux.Tip("Add shared vaults with 'bridge vault add', then 'bridge sync' after edits")
}

// initWizard asks which formats to project and whether to seed the
// starter vault. Returns false when the user aborts the form.
func initWizard(targets *[]string, seed *bool) bool {
	registry := project.NewRegistry()
	options := make([]huh.Option[string], 0, len(registry.Targets()))
	for _, t := range registry.Targets() {
		options = append(options, huh.NewOption(string(t), string(t)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which IDE formats should bridge maintain?").
				Description("Leave empty to project every format.").
				Options(options...).
				Value(targets),
			huh.NewConfirm().
				Title(fmt.Sprintf("Seed the canonical tree from the %s vault?", vault.BuiltinName)).
				Description("Starter rules and personas; files you already have are kept.").
				Value(seed),
		),
	)
	if err := form.Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			ux.Error(fmt.Sprintf("Setup form failed: %v", err))
		}
		return false
	}
	return true
}
