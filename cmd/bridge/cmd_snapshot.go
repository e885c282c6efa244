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
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/cmd/bridge/gcs"
	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

func runSnapshotSave(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	manifest, err := eng.SaveSnapshot(ctx, args[0], saveDescription, saveOverwrite)
	if err != nil {
		if errors.Is(err, tree.ErrAlreadyExists) {
			fatal("Snapshot already exists, pass --overwrite to replace it", err)
		}
		fatal("Snapshot save failed", err)
	}

	size := humanize.Bytes(uint64(manifest.TotalBytes))
	ux.Success(fmt.Sprintf("Saved snapshot %q: %d files, %s", manifest.Name, manifest.Files, size))
	if manifest.Version > 1 {
		ux.Muted(fmt.Sprintf("version %d of this name", manifest.Version))
	}
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	store := rt.snapshotStore(rt.projectRoot())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manifests, err := store.List(ctx)
	if err != nil {
		fatal("Cannot list snapshots", err)
	}
	if len(manifests) == 0 {
		ux.Info("No snapshots saved for this project")
		ux.Tip("Create one with 'bridge snapshot save <name>'")
		return
	}

	ux.Title(fmt.Sprintf("Snapshots (%d)", len(manifests)))
	for _, m := range manifests {
		fmt.Printf("%-24s %4d files %10s  %s\n",
			m.Name, m.Files, humanize.Bytes(uint64(m.TotalBytes)), humanize.Time(m.UpdatedAt))
		if m.Description != "" {
			ux.Muted("    " + m.Description)
		}
	}
}

func runSnapshotInfo(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	store := rt.snapshotStore(rt.projectRoot())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	manifest, files, err := store.Info(ctx, args[0])
	if err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			fatal(fmt.Sprintf("No snapshot named %q", args[0]), nil)
		}
		fatal("Cannot read snapshot", err)
	}

	ux.Title(manifest.Name)
	if manifest.Description != "" {
		fmt.Println(manifest.Description)
	}
	fmt.Printf("created  %s\n", humanize.Time(manifest.CreatedAt))
	if manifest.Version > 1 {
		fmt.Printf("updated  %s (version %d)\n", humanize.Time(manifest.UpdatedAt), manifest.Version)
	}
	fmt.Printf("size     %s in %d files\n", humanize.Bytes(uint64(manifest.TotalBytes)), manifest.Files)
	if manifest.SourceProject != "" {
		fmt.Printf("project  %s\n", manifest.SourceProject)
	}

	if len(manifest.Contents) > 0 {
		kinds := make([]string, 0, len(manifest.Contents))
		for kind := range manifest.Contents {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			parts = append(parts, fmt.Sprintf("%s %d", kind, len(manifest.Contents[kind])))
		}
		fmt.Printf("sections %s\n", strings.Join(parts, ", "))
	}

	fmt.Println()
	for _, p := range files {
		ux.Muted("  " + p)
	}
}

func runSnapshotRestore(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	root := rt.projectRoot()
	if !confirm(fmt.Sprintf("Replace the canonical tree of %s with snapshot %q?", root, args[0])) {
		return
	}

	eng := rt.openEngine()
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := eng.RestoreSnapshot(ctx, args[0]); err != nil {
		switch {
		case errors.Is(err, tree.ErrNotFound):
			fatal(fmt.Sprintf("No snapshot named %q", args[0]), nil)
		case errors.Is(err, lock.ErrFileLocked):
			fatal("Another bridge process holds the project lock", err)
		default:
			fatal("Restore failed", err)
		}
	}

	ux.Success(fmt.Sprintf("Restored snapshot %q", args[0]))
	ux.Tip("Run 'bridge sync' to refresh the IDE projections")
}

func runSnapshotDelete(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()
	store := rt.snapshotStore(rt.projectRoot())

	if !confirm(fmt.Sprintf("Delete snapshot %q?", args[0])) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := store.Delete(ctx, args[0]); err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			fatal(fmt.Sprintf("No snapshot named %q", args[0]), nil)
		}
		fatal("Delete failed", err)
	}
	ux.Success(fmt.Sprintf("Deleted snapshot %q", args[0]))
}

func runSnapshotPush(cmd *cobra.Command, args []string) {
	rt := newRuntime()
	defer rt.close()

	bucket := pushBucket
	if bucket == "" {
		bucket = rt.cfg.Push.Bucket
	}
	if bucket == "" {
		fatalCode(ExitBadArgs, "No bucket configured", errors.New("set push.bucket in config.yaml or pass --bucket"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	client, err := gcs.NewClient(ctx, bucket, rt.cfg.Push.CredentialsFile)
	if err != nil {
		fatal("Cannot connect to GCS", err)
	}
	defer client.Close()

	store := rt.snapshotStore(rt.projectRoot())
	spin := ux.NewSpinner(fmt.Sprintf("Uploading %q to gs://%s", args[0], bucket))
	spin.Start()
	count, err := store.Push(ctx, client, args[0], rt.cfg.Push.Prefix)
	spin.Stop()
	if err != nil {
		if errors.Is(err, tree.ErrNotFound) {
			fatal(fmt.Sprintf("No snapshot named %q", args[0]), nil)
		}
		fatal("Push failed", err)
	}

	remote := path.Join(rt.cfg.Push.Prefix, tree.Slugify(args[0]))
	ux.Success(fmt.Sprintf("Uploaded %d files to gs://%s/%s", count, bucket, remote))
}
