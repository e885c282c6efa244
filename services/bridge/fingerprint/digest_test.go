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
	"errors"
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		d := Fingerprint([]byte("hello world"))
		want := Digest("b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9")
		if d != want {
			t.Errorf("Fingerprint = %s, want %s", d, want)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		data := []byte("the same bytes")
		if Fingerprint(data) != Fingerprint(data) {
			t.Error("same bytes produced different digests")
		}
	})

	t.Run("single byte flip changes digest", func(t *testing.T) {
		a := Fingerprint([]byte("content-a"))
		b := Fingerprint([]byte("content-b"))
		if a == b {
			t.Error("different bytes produced equal digests")
		}
	})

	t.Run("empty input is valid", func(t *testing.T) {
		d := Fingerprint(nil)
		if err := d.Validate(); err != nil {
			t.Errorf("Validate on empty-input digest: %v", err)
		}
	})
}

func TestFromReader(t *testing.T) {
	d, err := FromReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	if d != Fingerprint([]byte("hello world")) {
		t.Errorf("FromReader digest differs from Fingerprint")
	}
}

func TestDigestValidate(t *testing.T) {
	cases := []struct {
		name   string
		digest Digest
		ok     bool
	}{
		{"valid", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", true},
		{"too short", "abc123", false},
		{"uppercase rejected", "B94D27B9934D3E08A52E52D7DA7DABFAC484EFE37A5380EE9088F7ACE2EFCDE9", false},
		{"non-hex character", "z94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.digest.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tc.digest, err)
			}
			if !tc.ok {
				if err == nil {
					t.Errorf("Validate(%q) = nil, want error", tc.digest)
				} else if !errors.Is(err, ErrInvalidDigest) {
					t.Errorf("Validate(%q) = %v, want ErrInvalidDigest", tc.digest, err)
				}
			}
		})
	}
}

func TestChanged(t *testing.T) {
	data := []byte("original")
	rec := Record{Path: "agents/a.md", Digest: Fingerprint(data), Size: int64(len(data))}

	if Changed(rec, data) {
		t.Error("Changed = true for identical content")
	}
	if !Changed(rec, []byte("edited")) {
		t.Error("Changed = false for different content")
	}
}
