// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine ties the bridge services together into the operations a
// caller actually runs against a project: init, sync, capture, status,
// clean, and snapshot save/restore.
//
// An Engine is bound to one project root. It owns the project's sync
// ledger for its lifetime and serializes mutating operations through a
// lock file in the project control directory, so two bridge processes
// cannot overwrite the same project-local tree at once.
//
// # Thread Safety
//
// The Engine is safe for concurrent use within a single process only in
// the sense that the underlying ledger is; mutating operations taken from
// two goroutines of the same process will contend on the project lock
// file and the second will fail with lock.ErrFileLocked rather than
// block. Callers wanting serialization should serialize themselves.
package engine

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AgentBridge/services/bridge/ledger"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/snapshot"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// Config carries everything an Engine needs. ProjectRoot and Vaults are
// required; the rest defaults sensibly.
type Config struct {
	// ProjectRoot is the project directory the engine operates on. The
	// canonical tree lives under its agent subdirectory.
	ProjectRoot string

	// Vaults supplies the merge sources: the project-local source plus
	// every enabled vault from the registry.
	Vaults *vault.Registry

	// Converters dispatches per-format projections. Nil uses the
	// built-in converter set.
	Converters *project.Registry

	// Snapshots backs the snapshot operations. Nil disables them;
	// Status then reports zero snapshots.
	Snapshots *snapshot.Store

	// Ledger locates the sync ledger. The zero value opens a database
	// under the project control directory.
	Ledger ledger.Config

	// Excludes are extra glob patterns the merge skips.
	Excludes []string

	// Workers bounds hashing and refresh fan-out. Zero picks a default
	// per operation.
	Workers int

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Engine runs bridge operations against one project.
type Engine struct {
	projectRoot string
	canonical   string
	vaults      *vault.Registry
	converters  *project.Registry
	snapshots   *snapshot.Store
	ledger      *ledger.Store
	ledgerCfg   ledger.Config
	excludes    []string
	workers     int
	logger      *slog.Logger
}

// New validates the configuration and opens the project ledger. Callers
// must Close the engine when done with it.
func New(cfg Config) (*Engine, error) {
	if cfg.ProjectRoot == "" {
		return nil, errors.New("engine: project root is required")
	}
	if cfg.Vaults == nil {
		return nil, errors.New("engine: vault registry is required")
	}
	converters := cfg.Converters
	if converters == nil {
		converters = project.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	canonical := filepath.Join(cfg.ProjectRoot, vault.DefaultSubdir)

	lcfg := cfg.Ledger
	if lcfg.Path == "" && !lcfg.InMemory {
		lcfg = ledger.DefaultConfig(filepath.Join(canonical, tree.ControlDir, "ledger"))
	}
	if lcfg.Logger == nil {
		lcfg.Logger = logger
	}
	store, err := ledger.Open(lcfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		projectRoot: cfg.ProjectRoot,
		canonical:   canonical,
		vaults:      cfg.Vaults,
		converters:  converters,
		snapshots:   cfg.Snapshots,
		ledger:      store,
		ledgerCfg:   lcfg,
		excludes:    cfg.Excludes,
		workers:     cfg.Workers,
		logger:      logger,
	}, nil
}

// Close releases the project ledger.
func (e *Engine) Close() error {
	return e.ledger.Close()
}

// ProjectRoot returns the project directory the engine is bound to.
func (e *Engine) ProjectRoot() string {
	return e.projectRoot
}

// CanonicalRoot returns the project-local canonical tree directory.
func (e *Engine) CanonicalRoot() string {
	return e.canonical
}

// Snapshots exposes the configured snapshot store, if any.
func (e *Engine) Snapshots() *snapshot.Store {
	return e.snapshots
}

// lockProject takes the project lock file, creating the control directory
// on first use. The caller releases the returned guard.
func (e *Engine) lockProject() (*lock.Guard, error) {
	dir := filepath.Join(e.canonical, tree.ControlDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tree.IOFailure("lock", dir, err)
	}
	return lock.Acquire(filepath.Join(dir, tree.LockFileName))
}

// resolveConverters maps target names to converters, preserving registry
// order. An empty selection means every registered converter.
func (e *Engine) resolveConverters(targets []project.Target) ([]project.Converter, error) {
	if len(targets) == 0 {
		return e.converters.All(), nil
	}
	out := make([]project.Converter, 0, len(targets))
	for _, t := range targets {
		c, err := e.converters.Get(t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
