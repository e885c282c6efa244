// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project projects the canonical artifact tree into the on-disk
// layout each supported coding assistant expects, and maps edited target
// files back to the canonical artifacts they came from.
//
// Converters are a fixed set: every supported target is constructed by
// NewRegistry and there is no dynamic loading. A converter always
// implements the forward projection; reverse capture, cleanup, and MCP
// installation are optional capabilities discovered by interface
// assertion. Converters transform structure only. They split headers,
// rename paths, and reshape metadata, but never interpret what an
// artifact says.
package project

import (
	"context"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/merge"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Target identifies one supported assistant format.
type Target string

const (
	TargetCursor   Target = "cursor"
	TargetKiro     Target = "kiro"
	TargetCopilot  Target = "copilot"
	TargetWindsurf Target = "windsurf"
	TargetOpencode Target = "opencode"
)

// Canonical tree layout. Converters map these directories; anything else
// in the tree is reported as skipped.
const (
	AgentsDir     = "agents"
	SkillsDir     = "skills"
	WorkflowsDir  = "workflows"
	RulesDir      = "rules"
	MCPConfigFile = "mcp_config.json"

	// SkillFileName is the entry file of a canonical skill directory.
	SkillFileName = "SKILL.md"
)

// ProjectedFile records one file written into a project by Forward.
type ProjectedFile struct {
	// CanonicalPath is the source path inside the canonical tree. Empty for
	// files a converter generates from several artifacts at once.
	CanonicalPath string `json:"canonical_path"`

	// TargetPath is the written path, relative to the project root.
	TargetPath string `json:"target_path"`

	// Digest fingerprints the bytes as written.
	Digest fingerprint.Digest `json:"digest"`
}

// ForwardResult summarizes one converter projection over a canonical tree.
type ForwardResult struct {
	Target  Target
	Written []ProjectedFile

	// Skipped lists canonical paths this converter has no mapping for.
	Skipped []string
}

// Converter projects canonical artifacts into one target format.
type Converter interface {
	// ID returns the stable format identifier.
	ID() Target

	// DisplayName returns the human-facing name for status output.
	DisplayName() string

	// Forward writes the projection of t under projectRoot and reports
	// every file it owns there, written or not. Files whose bytes are
	// already current are fingerprinted but not rewritten.
	Forward(ctx context.Context, t *merge.Tree, projectRoot string) (*ForwardResult, error)
}

// ReverseMapper is implemented by converters whose target files trace back
// unambiguously to a canonical artifact. Converters without it are
// write-only and excluded from capture.
type ReverseMapper interface {
	// TargetRoot returns the directory under projectRoot that holds this
	// converter's files.
	TargetRoot(projectRoot string) string

	// ReverseMap translates a target path (relative to the project root)
	// into the canonical path it was projected from. The second return is
	// false for files the converter does not own.
	ReverseMap(targetRel string) (string, bool)

	// Restore rebuilds canonical artifact bytes from target bytes.
	// existing carries the current canonical content, nil on adoption.
	// Header keys the target format cannot represent are preserved from
	// existing; keys the target does carry overwrite them.
	Restore(canonicalRel string, target, existing []byte) ([]byte, error)
}

// Cleaner removes every file a converter projects into a project.
type Cleaner interface {
	Clean(projectRoot string) error
}

// MCPInstaller writes an MCP server configuration into the location the
// target format reads it from.
type MCPInstaller interface {
	InstallMCP(projectRoot string, data []byte) error
}

// writeProjected writes data at targetRel under projectRoot and appends the
// projection record to res. When the file already holds exactly these bytes
// it is left untouched.
func writeProjected(res *ForwardResult, projectRoot, canonicalRel, targetRel string, data []byte) error {
	abs, err := tree.Join(projectRoot, targetRel)
	if err != nil {
		return err
	}
	d := fingerprint.Fingerprint(data)
	rec := ProjectedFile{CanonicalPath: canonicalRel, TargetPath: targetRel, Digest: d}
	if cur, rerr := os.ReadFile(abs); rerr == nil && fingerprint.Fingerprint(cur) == d {
		res.Written = append(res.Written, rec)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return tree.IOFailure("project", targetRel, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return tree.IOFailure("project", targetRel, err)
	}
	res.Written = append(res.Written, rec)
	return nil
}

// removeAll clears one projected path, tolerating absence.
func removeAll(projectRoot, rel string) error {
	abs, err := tree.Join(projectRoot, rel)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return tree.IOFailure("clean", rel, err)
	}
	return nil
}

// writeRaw writes data at rel under projectRoot outside of a projection,
// creating parent directories as needed.
func writeRaw(op, projectRoot, rel string, data []byte) error {
	abs, err := tree.Join(projectRoot, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return tree.IOFailure(op, rel, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return tree.IOFailure(op, rel, err)
	}
	return nil
}
