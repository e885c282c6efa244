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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

func TestUnit_CopilotForward_AgentDoc(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"agents/reviewer.md": "---\ndescription: Reviews diffs\ntools: read, search\n---\n\nCheck every change.\n",
	})
	root := t.TempDir()

	_, err := NewCopilotConverter().Forward(context.Background(), tr, root)
	require.NoError(t, err)

	doc := readProjected(t, root, ".github/agents/reviewer.md")
	h, body := tree.SplitHeader([]byte(doc))
	assert.Equal(t, "reviewer", h.String("name"))
	assert.Equal(t, "Reviews diffs", h.String("description"))
	assert.Equal(t, []string{"read", "search"}, h.Strings("tools"))
	assert.Equal(t, "Check every change.", strings.TrimSpace(string(body)))
}

func TestUnit_CopilotForward_AgentBodyCap(t *testing.T) {
	long := strings.Repeat("All work and no play makes a dull agent.\n", 1000)
	tr := buildTree(t, map[string]string{
		"agents/wordy.md": long,
	})
	root := t.TempDir()

	_, err := NewCopilotConverter().Forward(context.Background(), tr, root)
	require.NoError(t, err)

	doc := readProjected(t, root, ".github/agents/wordy.md")
	_, body := tree.SplitHeader([]byte(doc))
	assert.LessOrEqual(t, len(strings.TrimSpace(string(body))), copilotBodyLimit)
	assert.Contains(t, doc, "truncated to fit Copilot 30K char limit")
}

func TestUnit_CopilotForward_InstructionApplyTo(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"rules/base.md":  "---\ndescription: Base rules\ntrigger: always_on\n---\n\nAlways loaded.\n",
		"rules/gofmt.md": "---\nglobs: '*.go'\n---\n\nRun gofmt.\n",
		"rules/plain.md": "No header at all.\n",
	})
	root := t.TempDir()

	_, err := NewCopilotConverter().Forward(context.Background(), tr, root)
	require.NoError(t, err)

	base, _ := tree.SplitHeader([]byte(readProjected(t, root, ".github/instructions/base.instructions.md")))
	assert.Equal(t, "**", base.String("applyTo"))
	assert.Equal(t, "Base rules", base.String("description"))

	gofmt, _ := tree.SplitHeader([]byte(readProjected(t, root, ".github/instructions/gofmt.instructions.md")))
	assert.Equal(t, "*.go", gofmt.String("applyTo"))

	plain, _ := tree.SplitHeader([]byte(readProjected(t, root, ".github/instructions/plain.instructions.md")))
	assert.Equal(t, "**", plain.String("applyTo"))
}

func TestUnit_CopilotForward_SkillNaming(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"skills/sysdebug/SKILL.md": "---\nname: Systematic Debugging!!\ndescription: " + strings.Repeat("d", 2000) + "\n---\n\nBisect first.\n",
	})
	root := t.TempDir()

	_, err := NewCopilotConverter().Forward(context.Background(), tr, root)
	require.NoError(t, err)

	h, _ := tree.SplitHeader([]byte(readProjected(t, root, ".github/skills/sysdebug/SKILL.md")))
	assert.Equal(t, "systematic-debugging", h.String("name"))
	desc := h.String("description")
	assert.Len(t, desc, copilotSkillDescMax)
	assert.True(t, strings.HasSuffix(desc, "..."))
}

func TestUnit_CopilotForward_SkillSupportFileFilter(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"skills/debugging/SKILL.md":  "Bisect first.\n",
		"skills/debugging/helper.py": "print('hi')\n",
		"skills/debugging/blob.bin":  "\x00\x01",
	})
	root := t.TempDir()

	res, err := NewCopilotConverter().Forward(context.Background(), tr, root)
	require.NoError(t, err)
	assert.True(t, exists(root, ".github/skills/debugging/helper.py"))
	assert.False(t, exists(root, ".github/skills/debugging/blob.bin"))
	assert.Contains(t, res.Skipped, "skills/debugging/blob.bin")
}

func TestUnit_CopilotReverseMap_RoundTripsForwardPaths(t *testing.T) {
	tr := buildTree(t, map[string]string{
		"agents/reviewer.md":         "Check every change.\n",
		"workflows/plan.md":          "Plan $ARGUMENTS now.\n",
		"rules/style.md":             "Use tabs.\n",
		"skills/debugging/SKILL.md":  "Bisect first.\n",
		"skills/debugging/helper.py": "print('hi')\n",
	})
	root := t.TempDir()
	c := NewCopilotConverter()

	res, err := c.Forward(context.Background(), tr, root)
	require.NoError(t, err)
	require.Len(t, res.Written, 5)
	for _, pf := range res.Written {
		got, ok := c.ReverseMap(pf.TargetPath)
		require.True(t, ok, pf.TargetPath)
		assert.Equal(t, pf.CanonicalPath, got)
	}

	// Repository files under .github are not bridge files.
	_, ok := c.ReverseMap(".github/workflows/ci.yml")
	assert.False(t, ok)
	_, ok = c.ReverseMap(".github/CODEOWNERS")
	assert.False(t, ok)
}

func TestUnit_CopilotRestore_InstructionTriggerMapping(t *testing.T) {
	c := NewCopilotConverter()

	wide := []byte("---\napplyTo: '**'\ndescription: Base rules\n---\n\nAlways loaded.\n")
	out, err := c.Restore("rules/base.md", wide, nil)
	require.NoError(t, err)
	h, _ := tree.SplitHeader(out)
	assert.Equal(t, "always_on", h.String("trigger"))
	assert.Empty(t, h.String("applyTo"))

	// Narrowing the scope in the editor clears an always-on trigger.
	narrow := []byte("---\napplyTo: '*.py'\n---\n\nPython only.\n")
	existing := []byte("---\ntrigger: always_on\n---\n\nAlways loaded.\n")
	out, err = c.Restore("rules/base.md", narrow, existing)
	require.NoError(t, err)
	h, _ = tree.SplitHeader(out)
	assert.Equal(t, "*.py", h.String("globs"))
	assert.Empty(t, h.String("trigger"))
}

func TestUnit_CopilotRestore_PromptHeaderFlows(t *testing.T) {
	target := []byte("---\ndescription: Plan a feature\nmodel: fast-one\n---\n\nPlan it.\n")
	out, err := NewCopilotConverter().Restore("workflows/plan.md", target, nil)
	require.NoError(t, err)

	h, body := tree.SplitHeader(out)
	assert.Equal(t, "Plan a feature", h.String("description"))
	assert.Equal(t, "fast-one", h.String("model"))
	assert.Equal(t, "Plan it.", strings.TrimSpace(string(body)))
}

func TestUnit_CopilotRestore_SkillKeepsNameAndDescription(t *testing.T) {
	target := []byte("---\nname: debugging\ndescription: Debug safely\nlicense: MIT\n---\n\nBisect first.\n")
	out, err := NewCopilotConverter().Restore("skills/debugging/SKILL.md", target, nil)
	require.NoError(t, err)

	h, _ := tree.SplitHeader(out)
	assert.Equal(t, "debugging", h.String("name"))
	assert.Equal(t, "Debug safely", h.String("description"))
	assert.Empty(t, h.String("license"))
}
