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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

func runVaultAdd(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	v := vault.NewVault(args[0], args[1], vaultDescription, vaultRank)
	if vaultSubdir != "" {
		v.Subdir = vaultSubdir
	}
	if err := rt.vaults.Add(v); err != nil {
		if errors.Is(err, tree.ErrAlreadyExists) {
			fatal(fmt.Sprintf("A vault named %q is already registered", v.Name), nil)
		}
		fatal("Cannot add vault", err)
	}

	ux.Success(fmt.Sprintf("Added %s", v))
	if v.Kind() == vault.KindRemote {
		ux.Tip(fmt.Sprintf("Run 'bridge vault refresh %s' to clone it before the next sync", v.Name))
	}
}

func runVaultRemove(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	if err := rt.vaults.Remove(args[0]); err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			fatal(fmt.Sprintf("No vault named %q", args[0]), nil)
		}
		fatal("Cannot remove vault", err)
	}
	ux.Success(fmt.Sprintf("Removed vault %q", args[0]))
	ux.Tip("Already-synced files stay in the canonical tree until the next sync")
}

func runVaultList(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	vaults := rt.vaults.List()
	ux.Title(fmt.Sprintf("Vaults (%d)", len(vaults)))
	for _, v := range vaults {
		status := ux.IconSuccess
		note := fmt.Sprintf("%s, rank %d", v.Kind(), v.Priority)
		if !v.Enabled {
			status = ux.IconPending
			note += ", disabled"
		}
		ux.PathStatus(v.Name, status, note)
		if v.Description != "" {
			ux.Muted("    " + v.Description)
		}
		if !v.IsBuiltin() {
			ux.Muted("    " + v.URL)
		}
	}
	ux.Muted("Lower rank wins merge conflicts; project-local files always win.")
}

func runVaultEnable(cmd *cobra.Command, args []string) {
	setVaultEnabled(args[0], true)
}

func runVaultDisable(cmd *cobra.Command, args []string) {
	setVaultEnabled(args[0], false)
}

func setVaultEnabled(name string, enabled bool) {
	rt := newRuntime()
	defer rt.close()

	if err := rt.vaults.SetEnabled(name, enabled); err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			fatal(fmt.Sprintf("No vault named %q", name), nil)
		}
		fatal("Cannot update vault", err)
	}
	if enabled {
		ux.Success(fmt.Sprintf("Vault %q will join the next merge", name))
	} else {
		ux.Success(fmt.Sprintf("Vault %q disabled", name))
		ux.Tip("Run 'bridge sync' to drop its files from the projections")
	}
}

func runVaultRefresh(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if len(args) > 0 {
		failed := 0
		for _, name := range args {
			err := rt.vaults.Refresh(ctx, name)
			switch {
			case errors.Is(err, tree.ErrNotFound):
				fatal(fmt.Sprintf("No vault named %q", name), nil)
			case err != nil:
				ux.PathStatus(name, ux.IconError, err.Error())
				failed++
			default:
				ux.PathStatus(name, ux.IconSuccess, "refreshed")
			}
		}
		if failed > 0 {
			fatal(fmt.Sprintf("%d of %d refreshes failed", failed, len(args)), nil)
		}
		return
	}

	spin := ux.NewSpinner("Refreshing remote vaults")
	spin.Start()
	results, err := rt.vaults.RefreshAll(ctx, rt.cfg.Defaults.Workers)
	spin.Stop()
	if err != nil {
		fatal("Refresh aborted", err)
	}
	if len(results) == 0 {
		ux.Info("No vaults need refreshing")
		return
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			ux.PathStatus(res.Vault, ux.IconError, res.Err.Error())
			failed++
		} else {
			ux.PathStatus(res.Vault, ux.IconSuccess, "refreshed")
		}
	}
	if failed > 0 {
		fatal(fmt.Sprintf("%d of %d refreshes failed", failed, len(results)), nil)
	}
	ux.Success(fmt.Sprintf("Refreshed %d vaults", len(results)))
}
