// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

const (
	manifestFile = "manifest.json"
	treeDir      = "tree"
)

// Manifest is the metadata stored next to each snapshot's file tree.
// Version counts saves under the same name; an overwrite bumps it and
// keeps the original identity and creation time.
type Manifest struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
	Files         int                 `json:"files"`
	TotalBytes    int64               `json:"total_bytes"`
	Contents      map[string][]string `json:"contents,omitempty"`
	SourceProject string              `json:"source_project,omitempty"`
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	p := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(p, append(data, '\n'), 0o644); err != nil {
		return tree.IOFailure("save", p, err)
	}
	return nil
}

// collectContents summarizes the artifact sections of a stored tree:
// flat sections list markdown stems, the skills section lists skill
// directory names.
func collectContents(root string) map[string][]string {
	contents := make(map[string][]string)
	for _, section := range []string{"agents", "workflows", "rules"} {
		entries, err := os.ReadDir(filepath.Join(root, section))
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				names = append(names, strings.TrimSuffix(e.Name(), ".md"))
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			contents[section] = names
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "skills"))
	if err == nil {
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			contents["skills"] = names
		}
	}
	if len(contents) == 0 {
		return nil
	}
	return contents
}
