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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/project"
)

// runMCPInstall lands an MCP server config in the canonical tree and in
// every selected target with a native location for it. Without a file
// argument it reinstalls the config already in the canonical tree.
func runMCPInstall(cmd *cobra.Command, args []string) {
	var data []byte
	if len(args) == 1 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			fatalCode(ExitBadArgs, "Cannot read the MCP config file", err)
		}
		data = b
	}

	rt := newRuntime()
	defer rt.close()
	targets := rt.parseTargets(mcpTargets)

	eng := rt.openEngine()
	defer eng.Close()

	if data == nil {
		b, err := os.ReadFile(filepath.Join(eng.CanonicalRoot(), project.MCPConfigFile))
		if errors.Is(err, os.ErrNotExist) {
			fatalCode(ExitBadArgs, "The canonical tree has no MCP config yet", errors.New("pass a config file to import one"))
		}
		if err != nil {
			fatal("Cannot read the canonical MCP config", err)
		}
		data = b
	}
	if !json.Valid(data) {
		fatalCode(ExitBadArgs, "MCP config is not valid JSON", errors.New(project.MCPConfigFile))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := eng.InstallMCP(ctx, targets, data); err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			fatal("Another bridge process holds the project lock", err)
		}
		fatal("MCP install failed", err)
	}

	ux.Success(fmt.Sprintf("Installed %s into the canonical tree and the native target locations", project.MCPConfigFile))
	ux.Tip("Targets without a native MCP location receive it through 'bridge sync'")
}
