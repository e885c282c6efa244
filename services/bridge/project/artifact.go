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
	"path"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Canonical header keys converters read and write. Activation keys follow
// one vocabulary across all formats: trigger is "always_on", a glob
// pattern, or empty, and globs holds attachment patterns.
const (
	keyName        = "name"
	keyDescription = "description"
	keyGlobs       = "globs"
	keyTrigger     = "trigger"
	keyAlwaysApply = "alwaysApply"
	keyTools       = "tools"
	keyModel       = "model"

	triggerAlwaysOn = "always_on"
)

// composeArtifact assembles canonical artifact bytes from a header and a
// body. Header keys are emitted in sorted order so repeated restores of the
// same content are byte-identical. An empty header yields a bare body.
func composeArtifact(h tree.Header, body []byte) ([]byte, error) {
	text := strings.TrimSpace(string(body))
	if len(h) == 0 {
		if text == "" {
			return []byte{}, nil
		}
		return []byte(text + "\n"), nil
	}
	block, err := yaml.Marshal(map[string]any(h))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(block)
	buf.WriteString("---\n")
	if text != "" {
		buf.WriteString("\n")
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// restoreWithHeader merges target-derived header keys over the existing
// canonical header and reattaches the restored body. Keys absent from
// derived survive from existing, so a target format that carries only part
// of the metadata never erases the rest on capture. drop names keys the
// target explicitly unset, which must not survive the merge.
func restoreWithHeader(derived tree.Header, drop []string, body, existing []byte) ([]byte, error) {
	merged := tree.Header{}
	if existing != nil {
		if h, _ := tree.SplitHeader(existing); h != nil {
			for k, v := range h {
				merged[k] = v
			}
		}
	}
	for _, k := range drop {
		delete(merged, k)
	}
	for k, v := range derived {
		merged[k] = v
	}
	return composeArtifact(merged, body)
}

// alwaysOn reports whether an artifact header requests unconditional
// activation, accepting both the trigger vocabulary and a bare boolean.
func alwaysOn(h tree.Header) bool {
	return h.Bool(keyAlwaysApply) || h.String(keyTrigger) == triggerAlwaysOn
}

// activationGlobs returns attachment patterns from an artifact header. A
// glob carried in trigger counts when globs itself is empty.
func activationGlobs(h tree.Header) string {
	if g := h.String(keyGlobs); g != "" {
		return g
	}
	if t := h.String(keyTrigger); strings.ContainsAny(t, "*?[") {
		return t
	}
	return ""
}

// toolList normalizes a header tools value. Both YAML lists and
// comma-separated scalars are accepted.
func toolList(h tree.Header) []string {
	var out []string
	for _, item := range h.Strings(keyTools) {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// stem returns the canonical artifact name for a path: the base name with
// its extension removed.
func stem(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// titleize renders a slug as a display title ("plan-feature" to
// "Plan Feature").
func titleize(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// truncateBody caps body text for targets with hard size limits, appending
// note when a cut happens. The cap applies to the returned string.
func truncateBody(body string, limit int, note string) string {
	if len(body) <= limit {
		return body
	}
	keep := limit - len(note)
	if keep < 0 {
		keep = 0
	}
	return body[:keep] + note
}

// flatChild returns the file stem when rel is a direct child of dir
// carrying extension ext. Nested paths do not match.
func flatChild(rel, dir, ext string) (string, bool) {
	rest, ok := strings.CutPrefix(rel, dir+"/")
	if !ok || strings.Contains(rest, "/") || !strings.HasSuffix(rest, ext) {
		return "", false
	}
	name := strings.TrimSuffix(rest, ext)
	if name == "" {
		return "", false
	}
	return name, true
}

// skillEntry returns the skill directory name when rel is a canonical
// skill entry file (skills/<dir>/SKILL.md).
func skillEntry(rel string) (string, bool) {
	dir, inner, ok := skillFile(rel)
	if !ok || inner != SkillFileName {
		return "", false
	}
	return dir, true
}

// skillFile splits any path under skills/ into its skill directory and the
// path inside it.
func skillFile(rel string) (dir, inner string, ok bool) {
	rest, found := strings.CutPrefix(rel, SkillsDir+"/")
	if !found {
		return "", "", false
	}
	dir, inner, found = strings.Cut(rest, "/")
	if !found || dir == "" || inner == "" {
		return "", "", false
	}
	return dir, inner, true
}
