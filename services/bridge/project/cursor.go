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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	cursorRoot   = ".cursor"
	cursorAgents = ".cursor/agents"
	cursorRules  = ".cursor/rules"
	cursorSkills = ".cursor/skills"
	cursorMCP    = ".cursor/mcp.json"
)

// CursorConverter projects artifacts into Cursor's .cursor layout.
//
// Agents keep their markdown form under .cursor/agents. Rules become .mdc
// files with an MDC activation header, and each skill entry file becomes a
// single rule-style markdown file named after its skill directory, which
// keeps the reverse map unambiguous.
type CursorConverter struct{}

// NewCursorConverter returns the cursor projection.
func NewCursorConverter() *CursorConverter { return &CursorConverter{} }

func (c *CursorConverter) ID() Target          { return TargetCursor }
func (c *CursorConverter) DisplayName() string { return "Cursor" }

func (c *CursorConverter) Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error) {
	res := &ForwardResult{Target: TargetCursor}
	for _, p := range t.Paths() {
		var targetRel string
		transform := true
		switch {
		case p == MCPConfigFile:
			targetRel, transform = cursorMCP, false
		case hasFlat(p, AgentsDir):
			name, _ := flatChild(p, AgentsDir, ".md")
			targetRel = cursorAgents + "/" + name + ".md"
		case hasFlat(p, RulesDir):
			name, _ := flatChild(p, RulesDir, ".md")
			targetRel = cursorRules + "/" + name + ".mdc"
		default:
			if dir, ok := skillEntry(p); ok {
				targetRel = cursorSkills + "/" + dir + ".md"
				break
			}
			res.Skipped = append(res.Skipped, p)
			continue
		}
		data, err := t.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		out := data
		if transform {
			h, body := tree.SplitHeader(data)
			out = mdcDocument(h, body)
		}
		if err := writeProjected(res, projectRoot, p, targetRel, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// TargetRoot returns the directory capture walks for cursor files.
func (c *CursorConverter) TargetRoot(projectRoot string) string {
	return filepath.Join(projectRoot, cursorRoot)
}

// ReverseMap traces a .cursor file back to its canonical artifact.
func (c *CursorConverter) ReverseMap(targetRel string) (string, bool) {
	if targetRel == cursorMCP {
		return MCPConfigFile, true
	}
	if name, ok := flatChild(targetRel, cursorAgents, ".md"); ok {
		return AgentsDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, cursorRules, ".mdc"); ok {
		return RulesDir + "/" + name + ".md", true
	}
	if name, ok := flatChild(targetRel, cursorSkills, ".md"); ok {
		return SkillsDir + "/" + name + "/" + SkillFileName, true
	}
	return "", false
}

// Restore strips the MDC header from a captured cursor file and folds any
// activation metadata it carried back into the canonical header.
func (c *CursorConverter) Restore(canonicalRel string, target, existing []byte) ([]byte, error) {
	if canonicalRel == MCPConfigFile {
		return target, nil
	}
	h, body := splitMDC(target)
	derived := tree.Header{}
	var drop []string
	if d := h.String(keyDescription); d != "" {
		derived[keyDescription] = d
	}
	if g := h.String(keyGlobs); g != "" {
		derived[keyGlobs] = g
	}
	if h.Bool(keyAlwaysApply) {
		derived[keyTrigger] = triggerAlwaysOn
	} else if h != nil {
		// An explicit alwaysApply: false must clear an always-on trigger.
		drop = append(drop, keyTrigger, keyAlwaysApply)
	}
	return restoreWithHeader(derived, drop, body, existing)
}

func (c *CursorConverter) Clean(projectRoot string) error {
	for _, rel := range []string{cursorAgents, cursorRules, cursorSkills, cursorMCP} {
		if err := removeAll(projectRoot, rel); err != nil {
			return err
		}
	}
	return nil
}

func (c *CursorConverter) InstallMCP(projectRoot string, data []byte) error {
	return writeRaw("mcp", projectRoot, cursorMCP, data)
}

// mdcDocument renders body under Cursor's MDC activation header. All three
// keys are always present, matching what Cursor's editor writes.
func mdcDocument(h tree.Header, body []byte) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("description: " + h.String(keyDescription) + "\n")
	b.WriteString("globs: " + activationGlobs(h) + "\n")
	if alwaysOn(h) {
		b.WriteString("alwaysApply: true\n")
	} else {
		b.WriteString("alwaysApply: false\n")
	}
	b.WriteString("---\n")
	if text := strings.TrimSpace(string(body)); text != "" {
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// hasFlat reports whether rel is a direct markdown child of dir.
func hasFlat(rel, dir string) bool {
	_, ok := flatChild(rel, dir, ".md")
	return ok
}

// splitMDC splits an MDC header. Cursor's editor writes raw values after
// "key: " that are not always valid YAML, so a line-based scan backs up the
// strict parser.
func splitMDC(data []byte) (tree.Header, []byte) {
	if h, body := tree.SplitHeader(data); h != nil {
		return h, body
	}
	s := string(data)
	if !strings.HasPrefix(s, "---\n") {
		return nil, data
	}
	rest := s[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, data
	}
	block, body := rest[:end], rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		if strings.TrimSpace(body[:i]) != "" {
			return nil, data
		}
		body = body[i+1:]
	} else if strings.TrimSpace(body) != "" {
		return nil, data
	} else {
		body = ""
	}
	h := tree.Header{}
	for _, line := range strings.Split(block, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch v {
		case "true":
			h[k] = true
		case "false":
			h[k] = false
		default:
			h[k] = v
		}
	}
	return h, []byte(strings.TrimLeft(body, "\n"))
}
