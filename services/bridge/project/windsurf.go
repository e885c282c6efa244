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
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	windsurfRules     = ".windsurf/rules"
	windsurfWorkflows = ".windsurf/workflows"
	windsurfMCP       = ".windsurf/mcp_config.json"
	windsurfLegacy    = ".windsurfrules"

	// Windsurf silently drops rule files above 12000 characters.
	windsurfCharLimit = 12000
	windsurfTruncNote = "\n\n... (truncated)"
)

// WindsurfConverter projects artifacts into Windsurf's .windsurf layout.
//
// Agents and skills both land under .windsurf/rules with an activation
// header, which is why this converter is write-only: two canonical
// directories share one target directory, so a captured rule file cannot
// be traced back unambiguously.
type WindsurfConverter struct{}

// NewWindsurfConverter returns the windsurf projection.
func NewWindsurfConverter() *WindsurfConverter { return &WindsurfConverter{} }

func (c *WindsurfConverter) ID() Target          { return TargetWindsurf }
func (c *WindsurfConverter) DisplayName() string { return "Windsurf" }

func (c *WindsurfConverter) Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error) {
	res := &ForwardResult{Target: TargetWindsurf}
	var ruleSections []string
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
			targetRel, out = windsurfMCP, data
		case hasFlat(p, AgentsDir):
			name, _ := flatChild(p, AgentsDir, ".md")
			targetRel = windsurfRules + "/" + name + ".md"
			out = windsurfRuleDoc(windsurfTitle(h, name), h, body, false)
		case hasFlat(p, WorkflowsDir):
			name, _ := flatChild(p, WorkflowsDir, ".md")
			targetRel = windsurfWorkflows + "/" + name + ".md"
			out = windsurfWorkflowDoc(windsurfTitle(h, name), h, body)
		case hasFlat(p, RulesDir):
			// Rules concatenate into the legacy root file below.
			if text := strings.TrimSpace(string(body)); text != "" {
				ruleSections = append(ruleSections, text)
			}
			continue
		default:
			if dir, ok := skillEntry(p); ok {
				targetRel = windsurfRules + "/" + dir + ".md"
				out = windsurfRuleDoc(windsurfTitle(h, dir), h, body, true)
				break
			}
			res.Skipped = append(res.Skipped, p)
			continue
		}
		if err := writeProjected(res, projectRoot, p, targetRel, out); err != nil {
			return nil, err
		}
	}
	if len(ruleSections) > 0 {
		doc := strings.Join(ruleSections, "\n\n---\n\n") + "\n"
		doc = truncateBody(doc, windsurfCharLimit, windsurfTruncNote)
		if err := writeProjected(res, projectRoot, "", windsurfLegacy, []byte(doc)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *WindsurfConverter) Clean(projectRoot string) error {
	for _, rel := range []string{windsurfRules, windsurfWorkflows, windsurfMCP, windsurfLegacy} {
		if err := removeAll(projectRoot, rel); err != nil {
			return err
		}
	}
	return nil
}

func (c *WindsurfConverter) InstallMCP(projectRoot string, data []byte) error {
	return writeRaw("mcp", projectRoot, windsurfMCP, data)
}

// windsurfTitle picks the rule heading: the declared name, or the file
// name rendered as a title.
func windsurfTitle(h tree.Header, name string) string {
	if n := h.String(keyName); n != "" {
		return n
	}
	return titleize(name)
}

// windsurfActivation maps the canonical activation vocabulary onto
// Windsurf's four rule modes.
func windsurfActivation(h tree.Header) string {
	switch {
	case alwaysOn(h):
		return "Always On"
	case activationGlobs(h) != "":
		return "Glob: `" + activationGlobs(h) + "`"
	case h.String(keyDescription) != "":
		return "Model Decision"
	default:
		return "Manual (@mention)"
	}
}

// windsurfRuleDoc renders one rule file with its activation header. Skill
// bodies lose their own leading heading since the header supplies one.
func windsurfRuleDoc(title string, h tree.Header, body []byte, stripH1 bool) []byte {
	text := strings.TrimSpace(string(body))
	if stripH1 {
		text = stripLeadingH1(text)
	}
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	b.WriteString("**Activation:** " + windsurfActivation(h) + "\n")
	if d := h.String(keyDescription); d != "" {
		b.WriteString("**Description:** " + d + "\n")
	}
	b.WriteString("\n---\n")
	if text != "" {
		b.WriteString("\n" + text + "\n")
	}
	return []byte(truncateBody(b.String(), windsurfCharLimit, windsurfTruncNote))
}

// windsurfWorkflowDoc renders one workflow file.
func windsurfWorkflowDoc(title string, h tree.Header, body []byte) []byte {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	if d := h.String(keyDescription); d != "" {
		b.WriteString("**Description:** " + d + "\n\n")
	}
	b.WriteString("---\n")
	if text := strings.TrimSpace(string(body)); text != "" {
		b.WriteString("\n" + text + "\n")
	}
	return []byte(truncateBody(b.String(), windsurfCharLimit, windsurfTruncNote))
}

// stripLeadingH1 removes a leading markdown heading and the blank lines
// after it.
func stripLeadingH1(text string) string {
	if !strings.HasPrefix(text, "# ") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimLeft(text[i+1:], "\n")
	}
	return ""
}
