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
	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	plainOutput      bool   // Shortcut for --personality machine
	verboseLog       bool
	projectDir       string // Project root, defaults to the working directory
	configFile       string // Alternate config file path

	initTargets []string
	initNoInput bool
	initForce   bool
	initNoSeed  bool

	syncTargets []string
	syncRefresh bool
	syncWatch   bool

	capturePolicy  string
	captureTargets []string
	captureDryRun  bool
	captureDiff    bool
	captureReview  bool

	saveDescription string
	saveOverwrite   bool
	pushBucket      string
	assumeYes       bool

	vaultRank        int
	vaultSubdir      string
	vaultDescription string

	cleanTargets []string
	mcpTargets   []string

	rootCmd = &cobra.Command{
		Use:   "bridge",
		Short: "Sync agent knowledge between a canonical tree and IDE formats",
		Long: `Bridge merges prioritized knowledge vaults into one canonical agent
				directory, projects it into the formats each IDE expects, and
				captures edits made in those formats back into the canonical tree.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			switch {
			case plainOutput:
				ux.SetPersonalityLevel(ux.PersonalityMachine)
			case personalityLevel != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			default:
				ux.InitPersonality()
			}
		},
	}

	// --- Project Lifecycle ---
	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a project for bridging",
		Long: `Init creates the canonical agent directory, optionally seeds it from
				the built-in starter vault, and runs the first sync. Without
				--no-input it asks which IDE formats to project.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runInit, // Defined in cmd_init.go
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Merge vaults and project the canonical tree into IDE formats",
		Run:   runSync, // Defined in cmd_sync.go
	}
	captureCmd = &cobra.Command{
		Use:   "capture",
		Short: "Pull IDE-side edits back into the canonical tree",
		Long: `Capture compares each projected file against the fingerprints recorded
				at the last sync and folds edits back into the canonical tree under
				the chosen conflict policy. Deletions are reported, never applied.`,
		Run: runCapture, // Defined in cmd_capture.go
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show vaults, canonical files, and per-target drift",
		Run:   runStatus, // Defined in cmd_status.go
	}
	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove generated IDE files from the project",
		Run:   runClean, // Defined in cmd_clean.go
	}

	// --- Snapshots ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Save, inspect, and restore versions of the canonical tree",
		Long: `Snapshots are full copies of the canonical agent directory stored
				under the bridge home. Restore swaps one back in atomically.`,
	}
	snapshotSaveCmd = &cobra.Command{
		Use:   "save [name]",
		Short: "Save the canonical tree under a name",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotSave, // Defined in cmd_snapshot.go
	}
	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots for this project",
		Run:   runSnapshotList, // Defined in cmd_snapshot.go
	}
	snapshotInfoCmd = &cobra.Command{
		Use:   "info [name]",
		Short: "Show one snapshot's manifest and files",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotInfo, // Defined in cmd_snapshot.go
	}
	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore [name]",
		Short: "Replace the canonical tree with a saved snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotRestore, // Defined in cmd_snapshot.go
	}
	snapshotDeleteCmd = &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a saved snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotDelete, // Defined in cmd_snapshot.go
	}
	snapshotPushCmd = &cobra.Command{
		Use:   "push [name]",
		Short: "Upload a snapshot to Google Cloud Storage",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotPush, // Defined in cmd_snapshot.go
	}

	// --- Vault Registry ---
	vaultCmd = &cobra.Command{
		Use:   "vault",
		Short: "Manage the knowledge vaults that feed the merge",
		Long: `Vaults are git repositories, local directories, or the built-in
				starter set. Higher rank wins when two vaults ship the same file;
				project-local files beat every vault.`,
	}
	vaultAddCmd = &cobra.Command{
		Use:   "add [name] [url]",
		Short: "Register a vault by git URL or local path",
		Args:  cobra.ExactArgs(2),
		Run:   runVaultAdd, // Defined in cmd_vault.go
	}
	vaultRemoveCmd = &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a vault from the registry",
		Args:  cobra.ExactArgs(1),
		Run:   runVaultRemove, // Defined in cmd_vault.go
	}
	vaultListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered vaults in priority order",
		Run:   runVaultList, // Defined in cmd_vault.go
	}
	vaultEnableCmd = &cobra.Command{
		Use:   "enable [name]",
		Short: "Include a vault in future merges",
		Args:  cobra.ExactArgs(1),
		Run:   runVaultEnable, // Defined in cmd_vault.go
	}
	vaultDisableCmd = &cobra.Command{
		Use:   "disable [name]",
		Short: "Exclude a vault from future merges without removing it",
		Args:  cobra.ExactArgs(1),
		Run:   runVaultDisable, // Defined in cmd_vault.go
	}
	vaultRefreshCmd = &cobra.Command{
		Use:   "refresh [name...]",
		Short: "Pull remote vaults into the local cache",
		Run:   runVaultRefresh, // Defined in cmd_vault.go
	}

	// --- MCP ---
	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP server configuration across IDE formats",
	}
	mcpInstallCmd = &cobra.Command{
		Use:   "install [config-file]",
		Short: "Write an MCP server config into each target's expected location",
		Long: "Import an MCP server config into the canonical tree and install it\n" +
			"into every target with a native location. Without a file argument the\n" +
			"config already in the canonical tree is reinstalled.",
		Args: cobra.MaximumNArgs(1),
		Run:  runMCPInstall, // Defined in cmd_mcp.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard (default), minimal, or machine (scripting)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain output with no color or icons (same as --personality machine)")
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false,
		"Mirror debug logs to the console")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", "",
		"Project directory to operate on (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file to use instead of $AGENTBRIDGE_HOME/config.yaml")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringSliceVarP(&initTargets, "target", "t", nil,
		"IDE formats to project (cursor, kiro, copilot, windsurf, opencode); repeatable")
	initCmd.Flags().BoolVar(&initNoInput, "no-input", false, "Skip the interactive setup questions")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing canonical files when seeding")
	initCmd.Flags().BoolVar(&initNoSeed, "no-seed", false, "Do not seed the starter vault into the canonical tree")

	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringSliceVarP(&syncTargets, "target", "t", nil,
		"IDE formats to project; repeatable (default: configured targets)")
	syncCmd.Flags().BoolVar(&syncRefresh, "refresh", false, "Pull remote vault caches before merging")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Stay running and re-sync when the canonical tree changes")

	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVar(&capturePolicy, "policy", "",
		"Conflict policy: agent_wins (report only) or ide_wins (update canonical)")
	captureCmd.Flags().StringSliceVarP(&captureTargets, "target", "t", nil,
		"IDE formats to capture from; repeatable (default: all capturable)")
	captureCmd.Flags().BoolVar(&captureDryRun, "dry-run", false, "Report what would change without writing")
	captureCmd.Flags().BoolVar(&captureDiff, "diff", false, "Print unified diffs for diverged files")
	captureCmd.Flags().BoolVar(&captureReview, "review", false, "Review each diverged file interactively before applying")

	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringSliceVarP(&cleanTargets, "target", "t", nil,
		"IDE formats to clean; repeatable (default: all)")
	cleanCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	// Snapshot commands
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotSaveCmd.Flags().StringVarP(&saveDescription, "description", "d", "", "Free-form description stored in the manifest")
	snapshotSaveCmd.Flags().BoolVar(&saveOverwrite, "overwrite", false, "Replace an existing snapshot with the same name")
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotInfoCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotRestoreCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotPushCmd.Flags().StringVar(&pushBucket, "bucket", "", "GCS bucket to upload into (default: push.bucket from config)")

	// Vault registry commands
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultAddCmd)
	vaultAddCmd.Flags().IntVar(&vaultRank, "rank", 0, "Merge priority; lower rank wins conflicts (default 100)")
	vaultAddCmd.Flags().StringVar(&vaultSubdir, "subdir", "", "Subdirectory inside the vault holding the agent tree (default .agent)")
	vaultAddCmd.Flags().StringVarP(&vaultDescription, "description", "d", "", "Free-form description")
	vaultCmd.AddCommand(vaultRemoveCmd)
	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultEnableCmd)
	vaultCmd.AddCommand(vaultDisableCmd)
	vaultCmd.AddCommand(vaultRefreshCmd)

	// MCP commands
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.AddCommand(mcpInstallCmd)
	mcpInstallCmd.Flags().StringSliceVarP(&mcpTargets, "target", "t", nil,
		"IDE formats to install into; repeatable (default: formats with MCP support)")
}
