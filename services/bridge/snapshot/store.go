// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists named, restorable copies of the project-local
// canonical tree.
//
// Each snapshot lives under its own slug directory as a manifest plus a
// full file copy. Save captures by value; restore stages the copy next to
// the live tree and swaps it into place, so an interrupted restore never
// leaves a half-written tree behind.
package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Config locates the store on disk.
type Config struct {
	// Root is the directory snapshots live under, one subdirectory per
	// slug.
	Root string

	// Logger receives store events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Store reads and writes snapshots under a root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("snapshot: root directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: cfg.Root, logger: logger}, nil
}

// SaveRequest names a snapshot and the tree it captures.
type SaveRequest struct {
	// Name is the user-chosen snapshot name; its slug keys the store.
	Name string

	Description string

	// SourceRoot is the project-local canonical directory to copy. A
	// missing directory saves as an empty snapshot.
	SourceRoot string

	// SourceProject is recorded for provenance. Defaults to the parent
	// directory of SourceRoot.
	SourceProject string

	// Overwrite replaces an existing snapshot under the same slug,
	// keeping its identity and creation time and bumping its version.
	Overwrite bool
}

// Save captures the source tree by value. A taken slug without Overwrite
// reports tree.ErrAlreadyExists and leaves the existing snapshot intact.
func (s *Store) Save(ctx context.Context, req SaveRequest) (*Manifest, error) {
	slug := tree.Slugify(req.Name)
	dir := filepath.Join(s.root, slug)

	if _, err := os.Stat(dir); err == nil {
		if !req.Overwrite {
			return nil, &tree.OpError{Op: "save", Path: req.Name, Err: tree.ErrAlreadyExists}
		}
	} else if !os.IsNotExist(err) {
		return nil, tree.IOFailure("save", dir, err)
	}
	existing, _ := readManifest(dir)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = slug
	}
	sourceProject := req.SourceProject
	if sourceProject == "" && req.SourceRoot != "" {
		sourceProject = filepath.Dir(req.SourceRoot)
	}

	now := time.Now().UTC()
	m := &Manifest{
		ID:            uuid.NewString(),
		Name:          name,
		Slug:          slug,
		Description:   req.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
		SourceProject: sourceProject,
	}
	if existing != nil {
		m.CreatedAt = existing.CreatedAt
		m.Version = existing.Version + 1
		if existing.ID != "" {
			m.ID = existing.ID
		}
	}

	staged := dir + ".tmp." + strconv.FormatInt(now.UnixNano(), 10)
	files, total, err := copyTree(ctx, req.SourceRoot, filepath.Join(staged, treeDir), true)
	if err != nil {
		os.RemoveAll(staged)
		return nil, err
	}
	m.Files, m.TotalBytes = files, total
	m.Contents = collectContents(filepath.Join(staged, treeDir))
	if err := writeManifest(staged, m); err != nil {
		os.RemoveAll(staged)
		return nil, err
	}
	if err := s.swap(staged, dir); err != nil {
		os.RemoveAll(staged)
		return nil, err
	}

	s.logger.Info("snapshot saved",
		"slug", slug, "version", m.Version, "files", m.Files, "bytes", m.TotalBytes)
	return m, nil
}

// List returns every snapshot's metadata, newest first. Content is not
// loaded. A missing store directory lists as empty.
func (s *Store) List(ctx context.Context) ([]Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, tree.IOFailure("list", s.root, err)
	}

	var out []Manifest
	for _, e := range entries {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		m, merr := readManifest(dir)
		if merr != nil {
			if !strings.Contains(e.Name(), ".tmp.") && !strings.Contains(e.Name(), ".backup.") {
				s.logger.Warn("snapshot manifest unreadable", "dir", dir, "error", merr)
			}
			continue
		}
		if m.Slug != e.Name() {
			// Parked backups from an interrupted swap carry the slug of
			// their original directory.
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

// Info returns one snapshot's manifest plus the sorted relative paths of
// its stored files.
func (s *Store) Info(ctx context.Context, name string) (*Manifest, []string, error) {
	slug := tree.Slugify(name)
	dir := filepath.Join(s.root, slug)
	m, err := readManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &tree.OpError{Op: "info", Path: name, Err: tree.ErrNotFound}
		}
		return nil, nil, tree.IOFailure("info", dir, err)
	}

	root := filepath.Join(dir, treeDir)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return m, nil, nil
		}
		return nil, nil, tree.IOFailure("info", root, err)
	}
	var paths []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return tree.IOFailure("info", p, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return tree.IOFailure("info", p, rerr)
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	sort.Strings(paths)
	return m, paths, nil
}

// Restore replaces targetRoot's file set with the snapshot's stored tree.
// The copy stages next to targetRoot and swaps in with renames: either
// the whole restore lands or the live tree keeps its prior state. Files
// added to the live tree after the save are removed; the control
// directory rides across the swap as project state, not snapshot content.
func (s *Store) Restore(ctx context.Context, name, targetRoot string) error {
	slug := tree.Slugify(name)
	dir := filepath.Join(s.root, slug)
	m, err := readManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &tree.OpError{Op: "restore", Path: name, Err: tree.ErrNotFound}
		}
		return tree.IOFailure("restore", dir, err)
	}

	staged := targetRoot + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if _, _, err := copyTree(ctx, filepath.Join(dir, treeDir), staged, false); err != nil {
		os.RemoveAll(staged)
		return err
	}
	control := filepath.Join(targetRoot, tree.ControlDir)
	if _, err := os.Stat(control); err == nil {
		if _, _, err := copyTree(ctx, control, filepath.Join(staged, tree.ControlDir), false); err != nil {
			os.RemoveAll(staged)
			return err
		}
	}
	if err := s.swap(staged, targetRoot); err != nil {
		os.RemoveAll(staged)
		return err
	}

	s.logger.Info("snapshot restored",
		"slug", slug, "version", m.Version, "target", targetRoot)
	return nil
}

// Delete removes a snapshot permanently.
func (s *Store) Delete(ctx context.Context, name string) error {
	slug := tree.Slugify(name)
	dir := filepath.Join(s.root, slug)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return &tree.OpError{Op: "delete", Path: name, Err: tree.ErrNotFound}
		}
		return tree.IOFailure("delete", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return tree.IOFailure("delete", dir, err)
	}
	s.logger.Info("snapshot deleted", "slug", slug)
	return nil
}

// Uploader sends one local file to remote storage.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, remotePath string) error
}

// Push copies a snapshot's stored files, manifest included, to remote
// storage under prefix/<slug>/. Returns the number of files uploaded.
func (s *Store) Push(ctx context.Context, up Uploader, name, prefix string) (int, error) {
	slug := tree.Slugify(name)
	dir := filepath.Join(s.root, slug)
	if _, err := readManifest(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, &tree.OpError{Op: "push", Path: name, Err: tree.ErrNotFound}
		}
		return 0, tree.IOFailure("push", dir, err)
	}

	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return tree.IOFailure("push", p, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, p)
		if rerr != nil {
			return tree.IOFailure("push", p, rerr)
		}
		remote := path.Join(prefix, slug, filepath.ToSlash(rel))
		if err := up.UploadFile(ctx, p, remote); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	s.logger.Info("snapshot pushed", "slug", slug, "files", count, "prefix", prefix)
	return count, nil
}

// copyTree copies every regular file under src into dst, creating dst
// even when src does not exist. Returns the file count and total bytes.
func copyTree(ctx context.Context, src, dst string, skipReserved bool) (int, int64, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, 0, tree.IOFailure("copy", dst, err)
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, tree.IOFailure("copy", src, err)
	}

	var files int
	var total int64
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return tree.IOFailure("copy", p, err)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		relOS, rerr := filepath.Rel(src, p)
		if rerr != nil {
			return tree.IOFailure("copy", p, rerr)
		}
		if relOS == "." {
			return nil
		}
		if skipReserved && tree.IsReserved(filepath.ToSlash(relOS)) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, relOS)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return tree.IOFailure("copy", target, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return tree.IOFailure("copy", p, ierr)
		}
		data, derr := os.ReadFile(p)
		if derr != nil {
			return tree.IOFailure("copy", p, derr)
		}
		if err := os.WriteFile(target, data, info.Mode().Perm()); err != nil {
			return tree.IOFailure("copy", target, err)
		}
		files++
		total += int64(len(data))
		return nil
	})
	return files, total, err
}

// swap moves staged into live's place. The previous live directory parks
// as a backup until the staged rename lands, then goes away; if that
// rename fails the backup moves back and live keeps its prior state.
func (s *Store) swap(staged, live string) error {
	if _, err := os.Stat(live); err != nil {
		if !os.IsNotExist(err) {
			return tree.IOFailure("swap", live, err)
		}
		if err := os.MkdirAll(filepath.Dir(live), 0o755); err != nil {
			return tree.IOFailure("swap", live, err)
		}
		if err := os.Rename(staged, live); err != nil {
			return tree.IOFailure("swap", live, err)
		}
		return nil
	}

	backup := live + ".backup." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Rename(live, backup); err != nil {
		return tree.IOFailure("swap", live, err)
	}
	if err := os.Rename(staged, live); err != nil {
		if rbErr := os.Rename(backup, live); rbErr != nil {
			s.logger.Error("swap rollback failed, previous tree parked",
				"live", live, "backup", backup, "error", rbErr)
		}
		return tree.IOFailure("swap", live, err)
	}
	if err := os.RemoveAll(backup); err != nil {
		s.logger.Warn("stale swap backup not removed", "backup", backup, "error", err)
	}
	return nil
}
