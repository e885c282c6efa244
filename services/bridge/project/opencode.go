// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	opencodeAgents   = ".opencode/agents"
	opencodeCommands = ".opencode/commands"
	opencodeConfig   = "opencode.json"
	opencodeRules    = "AGENTS.md"

	opencodeSchema = "https://opencode.ai/config.json"
)

// opencodeServer is one MCP server entry in opencode.json. The canonical
// mcp_config.json command/args pair flattens into a single argv list.
type opencodeServer struct {
	Type        string            `json:"type"`
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     bool              `json:"enabled"`
}

type opencodeDoc struct {
	Schema       string                    `json:"$schema"`
	Instructions []string                  `json:"instructions,omitempty"`
	MCP          map[string]opencodeServer `json:"mcp,omitempty"`
}

// OpencodeConverter projects artifacts into opencode's layout: markdown
// agents under .opencode/agents, commands under .opencode/commands, a
// root AGENTS.md with the concatenated rules, and an opencode.json that
// carries instructions plus the reshaped MCP block.
//
// Write-only: AGENTS.md and opencode.json are aggregates with no
// per-artifact reverse map.
type OpencodeConverter struct{}

// NewOpencodeConverter returns the opencode projection.
func NewOpencodeConverter() *OpencodeConverter { return &OpencodeConverter{} }

func (c *OpencodeConverter) ID() Target          { return TargetOpencode }
func (c *OpencodeConverter) DisplayName() string { return "opencode" }

func (c *OpencodeConverter) Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error) {
	res := &ForwardResult{Target: TargetOpencode}
	var ruleSections []string
	var mcpData []byte
	for _, p := range t.Paths() {
		data, err := t.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		h, body := tree.SplitHeader(data)
		var targetRel string
		var out []byte
		switch {
		case p == MCPConfigFile:
			mcpData = data
			continue
		case hasFlat(p, AgentsDir):
			name, _ := flatChild(p, AgentsDir, ".md")
			targetRel = opencodeAgents + "/" + name + ".md"
			out = opencodeAgentDoc(name, h, body)
		case hasFlat(p, WorkflowsDir):
			name, _ := flatChild(p, WorkflowsDir, ".md")
			targetRel, out = opencodeCommands+"/"+name+".md", data
		case hasFlat(p, RulesDir):
			if text := strings.TrimSpace(string(body)); text != "" {
				ruleSections = append(ruleSections, text)
			}
			continue
		default:
			if dir, ok := skillEntry(p); ok {
				targetRel = opencodeAgents + "/" + dir + ".md"
				out = opencodeAgentDoc(dir, h, body)
				break
			}
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if err := writeProjected(res, projectRoot, p, targetRel, out); err != nil {
			return nil, err
		}
	}

	doc := opencodeDoc{Schema: opencodeSchema}
	if len(ruleSections) > 0 {
		rules := strings.Join(ruleSections, "\n\n---\n\n") + "\n"
		if err := writeProjected(res, projectRoot, "", opencodeRules, []byte(rules)); err != nil {
			return nil, err
		}
		doc.Instructions = []string{opencodeRules}
	}
	if mcpData != nil {
		mcp, err := opencodeMCPBlock(mcpData)
		if err != nil {
			return nil, err
		}
		doc.MCP = mcp
	}
	if doc.Instructions != nil || doc.MCP != nil {
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		canonical := ""
		if doc.MCP != nil {
			canonical = MCPConfigFile
		}
		if err := writeProjected(res, projectRoot, canonical, opencodeConfig, append(out, '\n')); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *OpencodeConverter) Clean(projectRoot string) error {
	for _, rel := range []string{opencodeAgents, opencodeCommands, opencodeConfig, opencodeRules} {
		if err := removeAll(projectRoot, rel); err != nil {
			return err
		}
	}
	return nil
}

// opencodeAgentDoc renders one opencode agent. The header is built line by
// line since opencode expects its exact key layout, including the nested
// tools map.
func opencodeAgentDoc(name string, h tree.Header, body []byte) []byte {
	desc := h.String(keyDescription)
	if desc == "" {
		desc = titleize(name) + " agent"
	}
	mode := h.String("mode")
	if mode == "" {
		if name == "orchestrator" {
			mode = "primary"
		} else {
			mode = "subagent"
		}
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("description: " + strconv.Quote(desc) + "\n")
	b.WriteString("mode: " + mode + "\n")
	if m := h.String(keyModel); m != "" {
		b.WriteString("model: " + m + "\n")
	}
	if temp, ok := h["temperature"]; ok {
		b.WriteString(fmt.Sprintf("temperature: %v\n", temp))
	}
	if tools := toolList(h); len(tools) > 0 {
		b.WriteString("tools:\n")
		for _, tool := range tools {
			b.WriteString("  " + tool + ": true\n")
		}
	}
	b.WriteString("---\n")
	if text := strings.TrimSpace(string(body)); text != "" {
		b.WriteString("\n" + text + "\n")
	}
	return []byte(b.String())
}

// opencodeMCPBlock reshapes canonical mcp_config.json servers into
// opencode's schema. Servers with a url become remote; everything else is
// a local command.
func opencodeMCPBlock(data []byte) (map[string]opencodeServer, error) {
	var in struct {
		Servers map[string]struct {
			Command string            `json:"command"`
			Args    []string          `json:"args"`
			Env     map[string]string `json:"env"`
			URL     string            `json:"url"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MCPConfigFile, err)
	}
	if len(in.Servers) == 0 {
		return nil, nil
	}
	out := make(map[string]opencodeServer, len(in.Servers))
	for name, s := range in.Servers {
		srv := opencodeServer{Enabled: true}
		if s.URL != "" {
			srv.Type, srv.URL = "remote", s.URL
		} else {
			srv.Type = "local"
			srv.Command = append([]string{s.Command}, s.Args...)
			srv.Environment = s.Env
		}
		out[name] = srv
	}
	return out, nil
}
