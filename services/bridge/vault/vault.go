// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vault manages the registered artifact sources that feed the
// canonical tree: the project's own directory, remote git vaults cloned to a
// local cache, plain local directories, and the built-in starter vault that
// ships with the binary.
//
// The registry is persisted as vaults.json in the bridge home directory.
// Every vault carries a priority; lower priorities win during the merge, and
// the project source is always injected at priority zero so local edits take
// precedence over anything pulled from a vault.
package vault

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Kind classifies how a vault's content reaches the local machine.
type Kind string

const (
	// KindProject is the project-local source injected by Sources. It is
	// never persisted in the registry.
	KindProject Kind = "project"

	// KindLocal is a vault backed by a plain directory on this machine.
	KindLocal Kind = "local"

	// KindRemote is a vault backed by a git repository cloned to the cache.
	KindRemote Kind = "remote"

	// KindBuiltin is the starter vault embedded in the binary.
	KindBuiltin Kind = "builtin"
)

const (
	// BuiltinURL marks the registry entry that resolves to the embedded
	// starter vault instead of an on-disk location.
	BuiltinURL = "__builtin__"

	// BuiltinName is the registry name of the starter vault.
	BuiltinName = "builtin-starter"

	// DefaultSubdir is the directory inside a vault (and inside a project)
	// that holds the canonical artifacts.
	DefaultSubdir = ".agent"

	// DefaultPriority is assigned to vaults added without an explicit
	// priority. The builtin vault sits at BuiltinPriority so any user
	// vault overrides it.
	DefaultPriority = 100

	// BuiltinPriority is the fixed priority of the starter vault.
	BuiltinPriority = 999

	// ProjectPriority is the fixed priority of the project-local source.
	ProjectPriority = 0

	// ProjectSourceName identifies the project-local source in merge
	// provenance output.
	ProjectSourceName = "project"
)

// Vault is a persisted registry entry describing one artifact source.
//
// The JSON shape is the on-disk vaults.json format; renaming a field tag is a
// breaking change for existing installs.
type Vault struct {
	ID          string    `json:"id" validate:"required,uuid4"`
	Name        string    `json:"name" validate:"required,min=1,max=64"`
	URL         string    `json:"url" validate:"required"`
	Description string    `json:"description,omitempty"`
	Subdir      string    `json:"agent_subdir"`
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority" validate:"gte=1,lte=999"`
	AddedAt     time.Time `json:"added_at"`
}

// NewVault builds a registry entry with generated identity and defaults
// applied. The caller still runs it through Registry.Add for validation and
// persistence.
func NewVault(name, url, description string, priority int) Vault {
	if priority <= 0 {
		priority = DefaultPriority
	}
	return Vault{
		ID:          uuid.NewString(),
		Name:        name,
		URL:         url,
		Description: description,
		Subdir:      DefaultSubdir,
		Enabled:     true,
		Priority:    priority,
		AddedAt:     time.Now().UTC(),
	}
}

// IsBuiltin reports whether this entry resolves to the embedded starter
// vault.
func (v Vault) IsBuiltin() bool {
	return v.URL == BuiltinURL
}

// IsLocal reports whether this entry points at a plain directory rather than
// a clonable remote.
func (v Vault) IsLocal() bool {
	if v.IsBuiltin() {
		return false
	}
	return !strings.HasPrefix(v.URL, "http://") &&
		!strings.HasPrefix(v.URL, "https://") &&
		!strings.HasPrefix(v.URL, "git@") &&
		!strings.HasPrefix(v.URL, "ssh://")
}

// Kind returns the source classification for this entry.
func (v Vault) Kind() Kind {
	switch {
	case v.IsBuiltin():
		return KindBuiltin
	case v.IsLocal():
		return KindLocal
	default:
		return KindRemote
	}
}

// CacheSlug is the directory name under the registry cache that holds this
// vault's clone.
func (v Vault) CacheSlug() string {
	return tree.Slugify(v.Name)
}

func (v Vault) subdirOrDefault() string {
	if v.Subdir == "" {
		return DefaultSubdir
	}
	return v.Subdir
}

// String implements fmt.Stringer for log output.
func (v Vault) String() string {
	return fmt.Sprintf("%s (%s, priority %d)", v.Name, v.Kind(), v.Priority)
}

// builtinVault is the registry entry seeded into fresh installs.
func builtinVault() Vault {
	return Vault{
		ID:          uuid.NewString(),
		Name:        BuiltinName,
		URL:         BuiltinURL,
		Description: "Minimal starter vault shipped with the bridge",
		Subdir:      DefaultSubdir,
		Enabled:     true,
		Priority:    BuiltinPriority,
		AddedAt:     time.Now().UTC(),
	}
}
