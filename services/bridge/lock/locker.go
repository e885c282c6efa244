// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides cross-process advisory locking for shared bridge
// state. One invocation mutates a project's tree, registry, or ledger at a
// time; a second invocation fails fast with ErrFileLocked rather than
// corrupting state.
package lock

import (
	"errors"
	"os"
)

// ErrFileLocked is returned when another process already holds the lock.
var ErrFileLocked = errors.New("file is locked by another process")

// FileLocker abstracts platform-specific file locking operations.
//
// # Description
//
// Provides a unified interface for file locking across Unix and Windows.
// Unix uses syscall.Flock, Windows uses LockFileEx.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
// Locking the same file from multiple goroutines is undefined behavior.
type FileLocker interface {
	// Lock acquires an exclusive lock on the file. Non-blocking: returns
	// ErrFileLocked immediately when the lock is held elsewhere.
	Lock(f *os.File) error

	// Unlock releases the lock on the file. Safe to call when not locked.
	Unlock(f *os.File) error
}

// IsProcessAlive checks if a process with the given PID is still running.
// Used for stale lock diagnosis. Unix sends signal 0; Windows opens the
// process handle.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// newFileLocker creates a platform-appropriate FileLocker.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
