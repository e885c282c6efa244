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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AgentBridge/services/bridge/capture"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// CaptureOptions controls a reverse-capture pass.
type CaptureOptions struct {
	// Policy decides who wins when a tracked target file diverged.
	// Zero value keeps canonical authoritative.
	Policy capture.Policy

	// Targets selects the formats to capture from. Empty means every
	// converter that can map target paths back.
	Targets []project.Target

	// DryRun reports what would change without writing anything.
	DryRun bool

	// WithDiffs attaches unified diffs for divergent files.
	WithDiffs bool

	// Paths restricts writes to these project-root-relative target files,
	// as accepted during an interactive review. Empty means no restriction.
	Paths []string
}

// Capture walks the selected target trees and folds IDE-side edits back
// toward the canonical tree per the policy. Dry runs skip the project
// lock since they write nothing.
func (e *Engine) Capture(ctx context.Context, opts CaptureOptions) (*capture.Report, error) {
	if !opts.DryRun {
		guard, err := e.lockProject()
		if err != nil {
			return nil, err
		}
		defer guard.Release()
	}

	converters, err := e.resolveConverters(opts.Targets)
	if err != nil {
		return nil, err
	}
	return capture.Run(ctx, converters, capture.Config{
		ProjectRoot:   e.projectRoot,
		CanonicalRoot: e.canonical,
		Ledger:        e.ledger,
		Policy:        opts.Policy,
		DryRun:        opts.DryRun,
		WithDiffs:     opts.WithDiffs,
		Paths:         opts.Paths,
		Logger:        e.logger,
	})
}

// Clean removes the selected target projections from the project and
// drops their ledger entries. The canonical tree is untouched.
func (e *Engine) Clean(ctx context.Context, targets []project.Target) error {
	guard, err := e.lockProject()
	if err != nil {
		return err
	}
	defer guard.Release()

	converters, err := e.resolveConverters(targets)
	if err != nil {
		return err
	}
	for _, c := range converters {
		cleaner, ok := c.(project.Cleaner)
		if !ok {
			continue
		}
		if err := cleaner.Clean(e.projectRoot); err != nil {
			return err
		}
		removed, err := e.ledger.DeleteTarget(ctx, string(c.ID()))
		if err != nil {
			return err
		}
		e.logger.Info("target cleaned",
			"target", c.ID(), "ledger_entries", removed)
	}
	return nil
}

// InstallMCP writes an MCP server configuration into the canonical tree
// and into every selected target that has a native location for it. The
// canonical copy makes the next sync project it everywhere else.
func (e *Engine) InstallMCP(ctx context.Context, targets []project.Target, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(data) {
		return errors.New("install mcp: config is not valid JSON")
	}

	guard, err := e.lockProject()
	if err != nil {
		return err
	}
	defer guard.Release()

	abs, err := tree.Join(e.canonical, project.MCPConfigFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return tree.IOFailure("install mcp", project.MCPConfigFile, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return tree.IOFailure("install mcp", project.MCPConfigFile, err)
	}

	converters, err := e.resolveConverters(targets)
	if err != nil {
		return err
	}
	installed := 0
	for _, c := range converters {
		installer, ok := c.(project.MCPInstaller)
		if !ok {
			e.logger.Debug("target has no MCP location", "target", c.ID())
			continue
		}
		if err := installer.InstallMCP(e.projectRoot, data); err != nil {
			return err
		}
		installed++
	}
	e.logger.Info("MCP config installed",
		"project", e.projectRoot, "targets", installed)
	return nil
}
