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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	kiroRoot     = ".kiro"
	kiroAgents   = ".kiro/agents"
	kiroSkills   = ".kiro/skills"
	kiroPrompts  = ".kiro/prompts"
	kiroSteering = ".kiro/steering"
	kiroMCP      = ".kiro/settings/mcp.json"

	kiroDefaultModel = "inherit"
)

// Kiro substitutes {{args}} where canonical workflows use $ARGUMENTS.
var (
	argCanonical = []byte("$ARGUMENTS")
	argKiro      = []byte("{{args}}")
)

// kiroAgent is the JSON document Kiro reads from .kiro/agents. Field order
// matches what Kiro's own scaffolding emits.
type kiroAgent struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Prompt       string   `json:"prompt"`
	Tools        []string `json:"tools"`
	AllowedTools []string `json:"allowedTools"`
	IncludeMCP   bool     `json:"includeMcpJson"`
	Resources    []string `json:"resources"`
	Model        string   `json:"model"`
}

// KiroConverter projects artifacts into Kiro's .kiro layout.
//
// Agents become JSON documents with the markdown body carried in the
// prompt field. Skills copy through whole, workflows land under prompts
// with Kiro's argument placeholder, and rules become steering files with
// an inclusion header.
type KiroConverter struct{}

// NewKiroConverter returns the kiro projection.
func NewKiroConverter() *KiroConverter { return &KiroConverter{} }

func (c *KiroConverter) ID() Target          { return TargetKiro }
func (c *KiroConverter) DisplayName() string { return "Kiro" }

func (c *KiroConverter) Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error) {
	res := &ForwardResult{Target: TargetKiro}
	for _, p := range t.Paths() {
		data, err := t.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		var targetRel string
		var out []byte
		switch {
		case p == MCPConfigFile:
			targetRel, out = kiroMCP, data
		case hasFlat(p, AgentsDir):
			name, _ := flatChild(p, AgentsDir, ".md")
			targetRel = kiroAgents + "/" + name + ".json"
			if out, err = kiroAgentJSON(name, data); err != nil {
				return nil, err
			}
		case hasFlat(p, WorkflowsDir):
			name, _ := flatChild(p, WorkflowsDir, ".md")
			targetRel = kiroPrompts + "/" + name + ".md"
			out = bytes.ReplaceAll(data, argCanonical, argKiro)
		case hasFlat(p, RulesDir):
			name, _ := flatChild(p, RulesDir, ".md")
			targetRel = kiroSteering + "/" + name + ".md"
			out = steeringDocument(data)
		default:
			if dir, inner, ok := skillFile(p); ok {
				targetRel, out = kiroSkills+"/"+dir+"/"+inner, data
				break
			}
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if err := writeProjected(res, projectRoot, p, targetRel, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// TargetRoot returns the directory capture walks for kiro files.
func (c *KiroConverter) TargetRoot(projectRoot string) string {
	return filepath.Join(projectRoot, kiroRoot)
}

// ReverseMap traces a .kiro file back to its canonical artifact.
func (c *KiroConverter) ReverseMap(targetRel string) (string, bool) {
	if targetRel == kiroMCP {
		return MCPConfigFile, true
	}
	if name, ok := flatChild(targetRel, kiroAgents, ".json"); ok {
		return AgentsDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, kiroPrompts, ".md"); ok {
		return WorkflowsDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, kiroSteering, ".md"); ok {
		return RulesDir + "/" + name + ".md", true
	}
	if rest, ok := strings.CutPrefix(targetRel, kiroSkills+"/"); ok {
		if dir, inner, found := strings.Cut(rest, "/"); found && dir != "" && inner != "" {
			return SkillsDir + "/" + rest, true
		}
	}
	return "", false
}

// Restore rebuilds a canonical artifact from a captured kiro file.
func (c *KiroConverter) Restore(canonicalRel string, target, existing []byte) ([]byte, error) {
	switch {
	case strings.HasPrefix(canonicalRel, AgentsDir+"/"):
		var a kiroAgent
		if err := json.Unmarshal(target, &a); err != nil {
			return nil, fmt.Errorf("agent %s: %w", canonicalRel, err)
		}
		derived := tree.Header{}
		if a.Name != "" {
			derived[keyName] = a.Name
		}
		if a.Description != "" {
			derived[keyDescription] = a.Description
		}
		if len(a.Tools) > 0 {
			derived[keyTools] = strings.Join(a.Tools, ", ")
		}
		if a.Model != "" && a.Model != kiroDefaultModel {
			derived[keyModel] = a.Model
		}
		return restoreWithHeader(derived, nil, []byte(a.Prompt), existing)
	case strings.HasPrefix(canonicalRel, WorkflowsDir+"/"):
		return bytes.ReplaceAll(target, argKiro, argCanonical), nil
	case strings.HasPrefix(canonicalRel, RulesDir+"/"):
		h, body := tree.SplitHeader(target)
		derived := tree.Header{}
		for k, v := range h {
			if k != "inclusion" {
				derived[k] = v
			}
		}
		return restoreWithHeader(derived, nil, body, existing)
	default:
		// Skills and MCP config copy through whole.
		return target, nil
	}
}

func (c *KiroConverter) Clean(projectRoot string) error {
	for _, rel := range []string{kiroAgents, kiroSkills, kiroPrompts, kiroSteering, kiroMCP} {
		if err := removeAll(projectRoot, rel); err != nil {
			return err
		}
	}
	return nil
}

func (c *KiroConverter) InstallMCP(projectRoot string, data []byte) error {
	return writeRaw("mcp", projectRoot, kiroMCP, data)
}

// kiroAgentJSON renders a canonical agent as Kiro's agent document. The
// body becomes the prompt; metadata comes from the artifact header with
// Kiro's defaults filling the gaps.
func kiroAgentJSON(name string, data []byte) ([]byte, error) {
	h, body := tree.SplitHeader(data)
	a := kiroAgent{
		Name:        h.String(keyName),
		Description: h.String(keyDescription),
		Prompt:      strings.TrimSpace(string(body)),
		Tools:       toolList(h),
		IncludeMCP:  true,
		Resources: []string{
			"file://" + kiroSteering + "/**/*.md",
			"file://" + kiroSkills + "/**/" + SkillFileName,
		},
		Model: h.String(keyModel),
	}
	if a.Name == "" {
		a.Name = name
	}
	if a.Description == "" {
		a.Description = titleize(name) + " agent"
	}
	if len(a.Tools) == 0 {
		a.Tools = []string{"read", "search"}
	}
	a.AllowedTools = append([]string(nil), a.Tools...)
	if a.Model == "" {
		a.Model = kiroDefaultModel
	}
	out, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return append(out, '\n'), nil
}

// steeringDocument ensures a rule carries Kiro's inclusion header. Files
// that already declare one pass through untouched.
func steeringDocument(data []byte) []byte {
	h, body := tree.SplitHeader(data)
	if _, ok := h["inclusion"]; ok {
		return data
	}
	var b bytes.Buffer
	b.WriteString("---\ninclusion: always\n---\n")
	if text := strings.TrimSpace(string(body)); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.Bytes()
}
