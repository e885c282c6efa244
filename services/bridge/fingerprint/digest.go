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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest is a SHA256 content fingerprint encoded as 64 lowercase hex
// characters. Digests are stable across runs and platforms; equal content
// always yields an equal digest.
type Digest string

// Fingerprint computes the digest of data.
func Fingerprint(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// FromReader computes the digest of everything readable from r.
func FromReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// Validate checks that d is a well-formed digest.
func (d Digest) Validate() error {
	if len(d) != 64 {
		return fmt.Errorf("%w: length %d, want 64", ErrInvalidDigest, len(d))
	}
	for _, c := range d {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: character %q", ErrInvalidDigest, c)
		}
	}
	return nil
}

// Record pairs a relative path with the digest and size observed for it.
// Modification times are never recorded; content is the only change signal.
type Record struct {
	Path   string `json:"path"`
	Digest Digest `json:"digest"`
	Size   int64  `json:"size"`
}

// Changed reports whether data no longer matches the recorded digest.
func Changed(rec Record, data []byte) bool {
	return Fingerprint(data) != rec.Digest
}
