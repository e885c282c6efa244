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
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Source is one provider of canonical artifacts. The merge consumes sources
// in rank order; a lower rank wins when two sources carry the same path.
//
// # Thread Safety
//
// Implementations must be safe for concurrent List and Read calls; the merge
// hashes source content in parallel.
type Source interface {
	// Name identifies the source in provenance and log output.
	Name() string

	// Kind classifies the source.
	Kind() Kind

	// Rank is the merge precedence. Lower wins.
	Rank() int

	// List returns the normalized relative paths of every artifact the
	// source currently holds, sorted. A source whose backing directory
	// does not exist returns an empty slice, not an error.
	List(ctx context.Context) ([]string, error)

	// Read returns the content of one artifact. A missing path reports
	// tree.ErrNotFound.
	Read(ctx context.Context, rel string) ([]byte, error)
}

// Refresher is implemented by sources that pull content from somewhere else
// before it can be listed, such as git-backed vaults.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Checker is implemented by sources that can verify their backing store is
// reachable before the registry persists them.
type Checker interface {
	Check(ctx context.Context) error
}

// LocalSource serves artifacts from a directory on this machine. It backs
// both the project-local source and vaults registered with a filesystem URL.
type LocalSource struct {
	name string
	root string
	kind Kind
	rank int
}

// NewLocalSource builds a source over root, which should already include the
// vault's artifact subdirectory.
func NewLocalSource(name, root string, rank int) *LocalSource {
	return &LocalSource{name: name, root: root, kind: KindLocal, rank: rank}
}

// NewProjectSource builds the rank-zero source over the project's own
// artifact directory.
func NewProjectSource(projectRoot string) *LocalSource {
	return &LocalSource{
		name: ProjectSourceName,
		root: filepath.Join(projectRoot, DefaultSubdir),
		kind: KindProject,
		rank: ProjectPriority,
	}
}

func (s *LocalSource) Name() string { return s.name }
func (s *LocalSource) Kind() Kind   { return s.kind }
func (s *LocalSource) Rank() int    { return s.rank }

// Root exposes the backing directory, used by capture to write adopted
// artifacts back into the project source.
func (s *LocalSource) Root() string { return s.root }

func (s *LocalSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanTree(s.root)
}

func (s *LocalSource) Read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readTree(s.root, rel)
}

func (s *LocalSource) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return &tree.OpError{Op: "check", Path: s.root, Err: tree.ErrNotFound}
		}
		return tree.IOFailure("check", s.root, err)
	}
	if !info.IsDir() {
		return &tree.OpError{Op: "check", Path: s.root, Err: tree.ErrInvalidPath}
	}
	return nil
}

// scanTree lists every regular file under root as a sorted slice of
// normalized relative paths. Reserved names and non-regular files are
// skipped. A missing or non-directory root yields an empty listing.
func scanTree(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, tree.IOFailure("scan", root, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var paths []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return tree.IOFailure("scan", p, err)
		}
		if p == root {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return tree.IOFailure("scan", p, rerr)
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if tree.IsReserved(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if tree.IsReserved(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(paths)
	return paths, nil
}

// readTree reads one artifact beneath root, mapping a missing file to
// tree.ErrNotFound with path context.
func readTree(root, rel string) ([]byte, error) {
	abs, err := tree.Join(root, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &tree.OpError{Op: "read", Path: rel, Err: tree.ErrNotFound}
		}
		return nil, tree.IOFailure("read", rel, err)
	}
	return data, nil
}
