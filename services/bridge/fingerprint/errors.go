// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fingerprint computes content digests for change detection.
//
// All sync and capture decisions in the bridge rest on these digests: a file
// "changed" exactly when its SHA256 differs from the recorded one. File
// modification times are never consulted; they move on copy, restore, and
// checkout without the content changing, which is precisely the false signal
// this package exists to avoid.
//
// # Thread Safety
//
// Hashers are stateless and safe for concurrent use.
package fingerprint

import "errors"

// Sentinel errors for hashing operations.
var (
	// ErrFileUnstable is returned when a file keeps changing size during
	// hashing after exhausting all retry attempts.
	ErrFileUnstable = errors.New("file changed during hashing")

	// ErrFileTooLarge is returned when a file exceeds the hasher's size cap.
	ErrFileTooLarge = errors.New("file too large to hash")

	// ErrInvalidDigest is returned when a stored digest is malformed.
	// Valid digests are exactly 64 lowercase hexadecimal characters.
	ErrInvalidDigest = errors.New("invalid digest format")
)
