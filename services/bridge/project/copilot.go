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
	"path"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	copilotRoot         = ".github"
	copilotAgents       = ".github/agents"
	copilotSkills       = ".github/skills"
	copilotPrompts      = ".github/prompts"
	copilotInstructions = ".github/instructions"

	copilotPromptExt      = ".prompt.md"
	copilotInstructionExt = ".instructions.md"

	// Copilot rejects agent bodies above 30000 characters.
	copilotBodyLimit = 30000
	copilotTruncNote = "\n\n... (truncated to fit Copilot 30K char limit)"

	copilotSkillNameMax = 64
	copilotSkillDescMax = 1024
)

// copilotSkillExts are the file types copied through for skill support
// files. Anything else stays canonical-only.
var copilotSkillExts = map[string]bool{
	".md": true, ".txt": true, ".json": true,
	".yaml": true, ".yml": true, ".py": true, ".sh": true,
}

// copilotPromptKeys are the header keys the prompt format understands.
var copilotPromptKeys = []string{
	keyName, keyDescription, "agent", keyModel, keyTools, "argument-hint",
}

// CopilotConverter projects artifacts into GitHub Copilot's .github
// layout: custom agents, agent skills, prompt files, and path-scoped
// instructions.
type CopilotConverter struct{}

// NewCopilotConverter returns the copilot projection.
func NewCopilotConverter() *CopilotConverter { return &CopilotConverter{} }

func (c *CopilotConverter) ID() Target          { return TargetCopilot }
func (c *CopilotConverter) DisplayName() string { return "GitHub Copilot" }

func (c *CopilotConverter) Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error) {
	res := &ForwardResult{Target: TargetCopilot}
	for _, p := range t.Paths() {
		data, err := t.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		h, body := tree.SplitHeader(data)
		var targetRel string
		var out []byte
		switch {
		case hasFlat(p, AgentsDir):
			name, _ := flatChild(p, AgentsDir, ".md")
			targetRel = copilotAgents + "/" + name + ".md"
			out, err = copilotAgentDoc(name, h, body)
		case hasFlat(p, WorkflowsDir):
			name, _ := flatChild(p, WorkflowsDir, ".md")
			targetRel = copilotPrompts + "/" + name + copilotPromptExt
			fm := tree.Header{}
			for _, k := range copilotPromptKeys {
				if v, ok := h[k]; ok {
					fm[k] = v
				}
			}
			out, err = composeArtifact(fm, body)
		case hasFlat(p, RulesDir):
			name, _ := flatChild(p, RulesDir, ".md")
			targetRel = copilotInstructions + "/" + name + copilotInstructionExt
			out, err = copilotInstructionDoc(h, body)
		default:
			dir, inner, ok := skillFile(p)
			if !ok || !copilotSkillExts[path.Ext(inner)] {
				res.Skipped = append(res.Skipped, p)
				continue
			}
			targetRel = copilotSkills + "/" + dir + "/" + inner
			if inner == SkillFileName {
				out, err = copilotSkillDoc(dir, h, body)
			} else {
				out = data
			}
		}
		if err != nil {
			return nil, err
		}
		if err := writeProjected(res, projectRoot, p, targetRel, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// TargetRoot returns the directory capture walks for copilot files.
func (c *CopilotConverter) TargetRoot(projectRoot string) string {
	return filepath.Join(projectRoot, copilotRoot)
}

// ReverseMap traces a .github file back to its canonical artifact. CI
// workflows and other repository files under .github do not map.
func (c *CopilotConverter) ReverseMap(targetRel string) (string, bool) {
	if name, ok := flatChild(targetRel, copilotAgents, ".md"); ok {
		return AgentsDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, copilotPrompts, copilotPromptExt); ok {
		return WorkflowsDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, copilotInstructions, copilotInstructionExt); ok {
		return RulesDir + "/" + name + ".md", true
	}
	if rest, ok := strings.CutPrefix(targetRel, copilotSkills+"/"); ok {
		if dir, inner, found := strings.Cut(rest, "/"); found && dir != "" && inner != "" {
			return SkillsDir + "/" + rest, true
		}
	}
	return "", false
}

// Restore rebuilds a canonical artifact from a captured copilot file.
func (c *CopilotConverter) Restore(canonicalRel string, target, existing []byte) ([]byte, error) {
	h, body := tree.SplitHeader(target)
	switch {
	case strings.HasPrefix(canonicalRel, AgentsDir+"/"):
		derived := tree.Header{}
		for _, k := range []string{keyName, keyDescription, keyTools} {
			if v, ok := h[k]; ok {
				derived[k] = v
			}
		}
		return restoreWithHeader(derived, nil, body, existing)
	case strings.HasPrefix(canonicalRel, WorkflowsDir+"/"):
		derived := tree.Header{}
		for k, v := range h {
			derived[k] = v
		}
		return restoreWithHeader(derived, nil, body, existing)
	case strings.HasPrefix(canonicalRel, RulesDir+"/"):
		derived := tree.Header{}
		var drop []string
		for k, v := range h {
			if k != "applyTo" {
				derived[k] = v
			}
		}
		if applyTo := h.String("applyTo"); applyTo == "**" {
			derived[keyTrigger] = triggerAlwaysOn
		} else if applyTo != "" {
			derived[keyGlobs] = applyTo
			// A narrowed scope must clear an always-on trigger.
			drop = append(drop, keyTrigger, keyAlwaysApply)
		}
		return restoreWithHeader(derived, drop, body, existing)
	case path.Base(canonicalRel) == SkillFileName:
		derived := tree.Header{}
		for _, k := range []string{keyName, keyDescription} {
			if v, ok := h[k]; ok {
				derived[k] = v
			}
		}
		return restoreWithHeader(derived, nil, body, existing)
	default:
		// Skill support files copy through whole.
		return target, nil
	}
}

func (c *CopilotConverter) Clean(projectRoot string) error {
	for _, rel := range []string{copilotAgents, copilotSkills, copilotPrompts, copilotInstructions} {
		if err := removeAll(projectRoot, rel); err != nil {
			return err
		}
	}
	return nil
}

// copilotAgentDoc renders a custom agent file. Copilot enforces a hard
// body size cap, so oversized bodies are cut with a visible marker.
func copilotAgentDoc(name string, h tree.Header, body []byte) ([]byte, error) {
	fm := tree.Header{
		keyName:        h.String(keyName),
		keyDescription: h.String(keyDescription),
	}
	if fm[keyName] == "" {
		fm[keyName] = name
	}
	if fm[keyDescription] == "" {
		fm[keyDescription] = titleize(name) + " agent"
	}
	if tools := toolList(h); len(tools) > 0 {
		fm[keyTools] = tools
	}
	text := truncateBody(strings.TrimSpace(string(body)), copilotBodyLimit, copilotTruncNote)
	return composeArtifact(fm, []byte(text))
}

// copilotInstructionDoc renders a path-scoped instruction file. The
// canonical activation vocabulary collapses into applyTo: always-on rules
// cover every path.
func copilotInstructionDoc(h tree.Header, body []byte) ([]byte, error) {
	fm := tree.Header{}
	for _, k := range []string{keyName, keyDescription} {
		if v, ok := h[k]; ok {
			fm[k] = v
		}
	}
	applyTo := activationGlobs(h)
	if applyTo == "" || alwaysOn(h) {
		applyTo = "**"
	}
	fm["applyTo"] = applyTo
	return composeArtifact(fm, body)
}

// copilotSkillDoc renders a skill entry file under Copilot's naming
// constraints: lowercase hyphenated names up to 64 characters and
// descriptions up to 1024.
func copilotSkillDoc(dir string, h tree.Header, body []byte) ([]byte, error) {
	name := h.String(keyName)
	if name == "" {
		name = dir
	}
	desc := h.String(keyDescription)
	if desc == "" {
		desc = titleize(dir) + " skill"
	}
	if len(desc) > copilotSkillDescMax {
		desc = desc[:copilotSkillDescMax-3] + "..."
	}
	fm := tree.Header{
		keyName:        copilotSkillName(name),
		keyDescription: desc,
	}
	return composeArtifact(fm, body)
}

// copilotSkillName normalizes a skill name to Copilot's charset: lowercase
// letters, digits, and single hyphens.
func copilotSkillName(name string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > copilotSkillNameMax {
		out = strings.TrimRight(out[:copilotSkillNameMax], "-")
	}
	if out == "" {
		return "skill"
	}
	return out
}
