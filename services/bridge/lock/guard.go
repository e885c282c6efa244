// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Guard holds an exclusive advisory lock on a lock file for the lifetime of
// one CLI invocation. The file content is the holder's PID, written for
// diagnostics; the lock itself is the flock, which the OS releases even on
// unclean exit.
type Guard struct {
	path   string
	file   *os.File
	locker FileLocker
}

// Acquire takes the exclusive lock at path, creating parent directories and
// the lock file as needed. When the lock is held elsewhere the returned
// error wraps ErrFileLocked and names the holder PID when readable.
func Acquire(path string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	locker := newFileLocker()
	if err := locker.Lock(f); err != nil {
		holder := readPID(f)
		_ = f.Close()
		if errors.Is(err, ErrFileLocked) && holder > 0 {
			if !IsProcessAlive(holder) {
				return nil, fmt.Errorf("%w (stale entry, recorded pid %d is gone)", ErrFileLocked, holder)
			}
			return nil, fmt.Errorf("%w (held by pid %d)", ErrFileLocked, holder)
		}
		return nil, err
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		_ = f.Sync()
	}
	return &Guard{path: path, file: f, locker: locker}, nil
}

// Release unlocks and removes the lock file. Safe to call once per Guard.
func (g *Guard) Release() error {
	if g == nil || g.file == nil {
		return nil
	}
	unlockErr := g.locker.Unlock(g.file)
	closeErr := g.file.Close()
	g.file = nil
	// Removal is best effort; a leftover file without a flock is harmless.
	_ = os.Remove(g.path)
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// Path returns the lock file location.
func (g *Guard) Path() string {
	return g.path
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
