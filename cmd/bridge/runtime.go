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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AgentBridge/cmd/bridge/config"
	"github.com/AleutianAI/AgentBridge/pkg/logging"
	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/engine"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
	"github.com/AleutianAI/AgentBridge/services/bridge/snapshot"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
	"github.com/AleutianAI/AgentBridge/services/bridge/vault"
)

// Exit codes shared by every command.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitBadArgs = 2
)

// runtime carries the state every command starts from: the resolved
// bridge home, loaded configuration, the file logger, and the vault
// registry. Commands that operate on a project open an engine on top.
type runtime struct {
	home   string
	cfg    config.Config
	logger *logging.Logger
	vaults *vault.Registry
}

// newRuntime resolves the home directory, loads configuration and the
// vault registry, and opens the session logger. Failures here are fatal;
// no command can run without this state.
func newRuntime() *runtime {
	home, err := config.Home()
	if err != nil {
		fatal("Cannot resolve the bridge home directory", err)
	}

	var cfg config.Config
	if configFile != "" {
		cfg, err = config.LoadFrom(configFile, home)
	} else {
		cfg, err = config.Load(home)
	}
	if err != nil {
		fatal("Cannot load configuration", err)
	}

	level := parseLogLevel(cfg.Log.Level)
	if verboseLog {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "bridge",
		Quiet:   !verboseLog,
	})

	registry, err := vault.LoadRegistry(vault.RegistryConfig{
		Path:     config.VaultsFile(home),
		CacheDir: config.VaultCacheDir(home),
		Logger:   logger.Slog(),
	})
	if err != nil {
		logger.Close()
		fatal("Cannot load the vault registry", err)
	}

	return &runtime{home: home, cfg: cfg, logger: logger, vaults: registry}
}

func (rt *runtime) close() {
	if err := rt.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "log shutdown: %v\n", err)
	}
}

// projectRoot resolves the --project flag, or the working directory, to
// an absolute path and verifies it is a directory.
func (rt *runtime) projectRoot() string {
	dir := projectDir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		fatalCode(ExitBadArgs, "Invalid project path", err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		fatalCode(ExitBadArgs, "Project path does not exist", fmt.Errorf("%s", abs))
	}
	if err != nil {
		fatalCode(ExitBadArgs, "Cannot access project path", err)
	}
	if !info.IsDir() {
		fatalCode(ExitBadArgs, "Project path is not a directory", fmt.Errorf("%s", abs))
	}
	return abs
}

// snapshotStore opens the store for the resolved project. Snapshots are
// grouped under the home by project directory name, so list and delete
// never need to touch the project itself.
func (rt *runtime) snapshotStore(projectRoot string) *snapshot.Store {
	slug := tree.Slugify(filepath.Base(projectRoot))
	store, err := snapshot.NewStore(snapshot.Config{
		Root:   config.SnapshotsDir(rt.home, slug),
		Logger: rt.logger.Slog(),
	})
	if err != nil {
		rt.close()
		fatal("Cannot open the snapshot store", err)
	}
	return store
}

// openEngine binds an engine to the resolved project root. The caller
// owns the engine and must Close it.
func (rt *runtime) openEngine() *engine.Engine {
	root := rt.projectRoot()
	eng, err := engine.New(engine.Config{
		ProjectRoot: root,
		Vaults:      rt.vaults,
		Converters:  project.NewRegistry(),
		Snapshots:   rt.snapshotStore(root),
		Excludes:    rt.cfg.Defaults.Excludes,
		Workers:     rt.cfg.Defaults.Workers,
		Logger:      rt.logger.Slog(),
	})
	if err != nil {
		rt.close()
		fatal("Cannot open the project", err)
	}
	return eng
}

// parseTargets validates format names against the converter registry.
// An empty list falls back to the configured defaults.
func (rt *runtime) parseTargets(names []string) []project.Target {
	if len(names) == 0 {
		names = rt.cfg.Defaults.Targets
	}
	registry := project.NewRegistry()
	targets := make([]project.Target, 0, len(names))
	for _, name := range names {
		id := project.Target(strings.ToLower(strings.TrimSpace(name)))
		if _, err := registry.Get(id); err != nil {
			known := make([]string, 0, len(registry.Targets()))
			for _, t := range registry.Targets() {
				known = append(known, string(t))
			}
			fatalCode(ExitBadArgs, "Unknown target format",
				fmt.Errorf("%q is not one of %s", name, strings.Join(known, ", ")))
		}
		targets = append(targets, id)
	}
	return targets
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// confirm asks before a destructive action. A declined prompt is a
// no-op; running non-interactively without --yes is an error, so a
// script never half-runs a destructive command.
func confirm(question string) bool {
	if assumeYes {
		return true
	}
	if !ux.IsInteractive() {
		fatalCode(ExitBadArgs, "Confirmation required", errors.New("pass --yes to run non-interactively"))
	}
	fmt.Printf("%s [y/N]: ", question)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func fatal(msg string, err error) {
	fatalCode(ExitFailure, msg, err)
}

func fatalCode(code int, msg string, err error) {
	if err != nil {
		ux.Error(fmt.Sprintf("%s: %v", msg, err))
	} else {
		ux.Error(msg)
	}
	os.Exit(code)
}
