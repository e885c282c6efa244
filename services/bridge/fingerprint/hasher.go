// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fingerprint

import (
	"fmt"
	"os"
)

// Hasher computes digests for files on disk.
type Hasher interface {
	// HashFile hashes the file at path.
	HashFile(path string) (Record, error)

	// HashFileAtomic hashes the file at path, retrying up to maxRetries
	// times when the file changes size mid-read. Returns ErrFileUnstable
	// once retries are exhausted.
	HashFileAtomic(path string, maxRetries int) (Record, error)
}

// SHA256Hasher is the default Hasher. A maxFileSize of 0 disables the
// size cap.
type SHA256Hasher struct {
	maxFileSize int64
}

// NewSHA256Hasher creates a hasher with the given file size cap in bytes.
func NewSHA256Hasher(maxFileSize int64) *SHA256Hasher {
	return &SHA256Hasher{maxFileSize: maxFileSize}
}

// HashFile implements Hasher.
func (h *SHA256Hasher) HashFile(path string) (Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Record{}, err
	}
	if h.maxFileSize > 0 && info.Size() > h.maxFileSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return Record{Path: path, Digest: Fingerprint(data), Size: int64(len(data))}, nil
}

// HashFileAtomic implements Hasher.
//
// The file is stat'ed before and after reading; a size mismatch means it was
// being written concurrently and the read is retried. Sizes that agree while
// content churns within them are indistinguishable from a stable file, which
// matches the single-writer assumption of the tool.
func (h *SHA256Hasher) HashFileAtomic(path string, maxRetries int) (Record, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		before, err := os.Stat(path)
		if err != nil {
			return Record{}, err
		}
		if h.maxFileSize > 0 && before.Size() > h.maxFileSize {
			return Record{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, before.Size())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Record{}, err
		}
		after, err := os.Stat(path)
		if err != nil {
			return Record{}, err
		}
		if before.Size() == after.Size() && int64(len(data)) == after.Size() {
			return Record{Path: path, Digest: Fingerprint(data), Size: int64(len(data))}, nil
		}
		lastErr = fmt.Errorf("%w: size moved %d -> %d", ErrFileUnstable, before.Size(), after.Size())
	}
	return Record{}, lastErr
}
