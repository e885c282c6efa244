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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// lsRemoteTimeout bounds the reachability probe so a dead host does not hang
// an interactive add.
const lsRemoteTimeout = 15 * time.Second

// gitExecFunc runs one git invocation and returns its stdout. Tests swap in
// a fake to exercise clone/pull selection without a network.
type gitExecFunc func(ctx context.Context, workdir string, args ...string) ([]byte, error)

// GitSource serves artifacts from a shallow clone of a remote repository.
// The clone lives under the registry cache and is advanced by Refresh;
// List and Read never touch the network.
type GitSource struct {
	name   string
	url    string
	dir    string
	subdir string
	rank   int
	git    gitExecFunc
}

// NewGitSource builds a source for url whose clone lives at dir. subdir is
// the artifact directory inside the clone, usually DefaultSubdir.
func NewGitSource(name, url, dir, subdir string, rank int) *GitSource {
	if subdir == "" {
		subdir = DefaultSubdir
	}
	return &GitSource{
		name:   name,
		url:    url,
		dir:    dir,
		subdir: subdir,
		rank:   rank,
		git:    runGit,
	}
}

func (s *GitSource) Name() string { return s.name }
func (s *GitSource) Kind() Kind   { return KindRemote }
func (s *GitSource) Rank() int    { return s.rank }

// contentRoot is the directory the artifacts live in once cloned.
func (s *GitSource) contentRoot() string {
	return filepath.Join(s.dir, s.subdir)
}

func (s *GitSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scanTree(s.contentRoot())
}

func (s *GitSource) Read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readTree(s.contentRoot(), rel)
}

// Refresh advances the clone: a fast-forward pull when one exists, otherwise
// a fresh shallow clone. Anything at the clone path that is not a git
// checkout is replaced.
func (s *GitSource) Refresh(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.dir, ".git")); err == nil {
		if _, err := s.git(ctx, s.dir, "pull", "--ff-only"); err != nil {
			return fmt.Errorf("vault %s: %w", s.name, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
		return fmt.Errorf("vault %s: prepare cache: %w", s.name, err)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("vault %s: clear cache: %w", s.name, err)
	}
	if _, err := s.git(ctx, "", "clone", "--depth", "1", s.url, s.dir); err != nil {
		return fmt.Errorf("vault %s: %w", s.name, err)
	}
	return nil
}

// Check probes the remote without touching the cache.
func (s *GitSource) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, lsRemoteTimeout)
	defer cancel()
	if _, err := s.git(ctx, "", "ls-remote", "--exit-code", s.url); err != nil {
		return fmt.Errorf("vault %s: remote unreachable: %w", s.name, err)
	}
	return nil
}

// runGit executes git with stderr folded into the returned error.
func runGit(ctx context.Context, workdir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if workdir != "" {
		cmd.Dir = workdir
	}
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg != "" {
				return nil, fmt.Errorf("git %s: %s", args[0], msg)
			}
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}
