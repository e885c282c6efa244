// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AgentBridge/services/bridge/lock"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// vaultValidate is the validator instance for registry entries.
var vaultValidate *validator.Validate

func init() {
	vaultValidate = validator.New()
}

// Validate checks the entry against its struct tags.
func (v Vault) Validate() error {
	return vaultValidate.Struct(v)
}

// RegistryConfig locates the registry on disk.
type RegistryConfig struct {
	// Path is the vaults.json location.
	Path string

	// CacheDir is the parent directory for per-vault clones.
	CacheDir string

	// Logger receives registry events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Registry is the persisted set of vaults plus the cache directory their
// clones live in. A fresh registry is seeded with the builtin starter vault.
//
// # Thread Safety
//
// All methods are safe for concurrent use within a process. Cross-process
// writes are serialized with a lock file next to vaults.json.
type Registry struct {
	mu       sync.Mutex
	path     string
	cacheDir string
	logger   *slog.Logger
	vaults   []Vault
}

// registryFile is the on-disk shape of vaults.json.
type registryFile struct {
	Vaults []Vault `json:"vaults"`
}

// LoadRegistry reads vaults.json, seeding a builtin-only registry when the
// file does not exist yet. A file that exists but cannot be parsed is an
// error; the registry never silently discards user configuration.
func LoadRegistry(cfg RegistryConfig) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		path:     cfg.Path,
		cacheDir: cfg.CacheDir,
		logger:   logger,
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			r.vaults = []Vault{builtinVault()}
			return r, nil
		}
		return nil, tree.IOFailure("load", cfg.Path, err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.Path, err)
	}
	r.vaults = file.Vaults

	// Entries hand-edited into the file may lack identity or a subdir.
	for i := range r.vaults {
		if r.vaults[i].ID == "" {
			r.vaults[i].ID = uuid.NewString()
			logger.Debug("assigned id to vault entry", "vault", r.vaults[i].Name)
		}
		if r.vaults[i].Subdir == "" {
			r.vaults[i].Subdir = DefaultSubdir
		}
	}
	return r, nil
}

// Path returns the vaults.json location.
func (r *Registry) Path() string { return r.path }

// CachePath returns the clone directory for one vault.
func (r *Registry) CachePath(v Vault) string {
	return filepath.Join(r.cacheDir, v.CacheSlug())
}

// Add validates and persists a new vault. A name already in the registry
// reports tree.ErrAlreadyExists.
func (r *Registry) Add(v Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := v.Validate(); err != nil {
		return fmt.Errorf("vault %q: %w", v.Name, err)
	}
	for _, existing := range r.vaults {
		if existing.Name == v.Name {
			return &tree.OpError{Op: "add", Path: v.Name, Err: tree.ErrAlreadyExists}
		}
	}

	r.vaults = append(r.vaults, v)
	if err := r.save(); err != nil {
		r.vaults = r.vaults[:len(r.vaults)-1]
		return err
	}
	r.logger.Info("vault added", "vault", v.Name, "kind", v.Kind(), "priority", v.Priority)
	return nil
}

// Remove deletes a vault and its cached clone. An unknown name reports
// tree.ErrNotFound.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, v := range r.vaults {
		if v.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &tree.OpError{Op: "remove", Path: name, Err: tree.ErrNotFound}
	}

	removed := r.vaults[idx]
	r.vaults = append(r.vaults[:idx], r.vaults[idx+1:]...)
	if err := r.save(); err != nil {
		return err
	}

	if !removed.IsBuiltin() && !removed.IsLocal() {
		if err := os.RemoveAll(r.CachePath(removed)); err != nil {
			r.logger.Warn("vault cache not removed", "vault", name, "error", err)
		}
	}
	r.logger.Info("vault removed", "vault", name)
	return nil
}

// Get returns one vault by name.
func (r *Registry) Get(name string) (Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vaults {
		if v.Name == name {
			return v, nil
		}
	}
	return Vault{}, &tree.OpError{Op: "get", Path: name, Err: tree.ErrNotFound}
}

// List returns every vault ordered by priority. Entries with equal priority
// keep their registration order.
func (r *Registry) List() []Vault {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Vault, len(r.vaults))
	copy(out, r.vaults)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Enabled returns the enabled vaults in priority order.
func (r *Registry) Enabled() []Vault {
	all := r.List()
	out := all[:0:0]
	for _, v := range all {
		if v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// SetEnabled toggles a vault without removing its configuration.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.vaults {
		if r.vaults[i].Name != name {
			continue
		}
		if r.vaults[i].Enabled == enabled {
			return nil
		}
		r.vaults[i].Enabled = enabled
		return r.save()
	}
	return &tree.OpError{Op: "enable", Path: name, Err: tree.ErrNotFound}
}

// Source builds the Source for one vault entry.
func (r *Registry) Source(v Vault) Source {
	switch v.Kind() {
	case KindBuiltin:
		return NewBuiltinSource()
	case KindLocal:
		root, err := filepath.Abs(v.URL)
		if err != nil {
			root = v.URL
		}
		return NewLocalSource(v.Name, filepath.Join(root, v.subdirOrDefault()), v.Priority)
	default:
		return NewGitSource(v.Name, v.URL, r.CachePath(v), v.subdirOrDefault(), v.Priority)
	}
}

// Sources assembles the full merge input for a project: the project-local
// source at rank zero followed by every enabled vault in priority order.
func (r *Registry) Sources(projectRoot string) []Source {
	sources := []Source{NewProjectSource(projectRoot)}
	for _, v := range r.Enabled() {
		sources = append(sources, r.Source(v))
	}
	return sources
}

// save writes vaults.json atomically under the registry lock file. Callers
// hold r.mu.
func (r *Registry) save() error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return tree.IOFailure("save", r.path, err)
	}

	guard, err := lock.Acquire(r.path + ".lock")
	if err != nil {
		return err
	}
	defer guard.Release()

	data, err := json.MarshalIndent(registryFile{Vaults: r.vaults}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".vaults-*.json")
	if err != nil {
		return tree.IOFailure("save", r.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return tree.IOFailure("save", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return tree.IOFailure("save", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return tree.IOFailure("save", tmpName, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return tree.IOFailure("save", r.path, err)
	}
	return nil
}
