// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree defines the shared data model for canonical knowledge trees.
//
// A canonical tree is a hierarchy of text artifacts addressed by relative,
// slash-separated, case-sensitive paths. Every other bridge package (merge,
// capture, snapshot, project) speaks in terms of these paths and the error
// taxonomy defined here.
//
// # Error Taxonomy
//
// Structural failures surface as one of the sentinel errors below, usually
// wrapped with path and operation context via OpError. A conflict between a
// projection and the canonical tree is never an error; it is reported in the
// capture summary instead.
//
// # Thread Safety
//
// All functions in this package are pure and safe for concurrent use.
package tree

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across bridge operations.
var (
	// ErrNotFound is returned when a referenced source, snapshot, ledger
	// entry, or artifact path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a uniquely named resource
	// (vault, snapshot) whose name is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidPath is returned when a relative artifact path is empty,
	// absolute, or escapes the tree root. This is a security error that
	// prevents access to files outside the validated tree boundary.
	ErrInvalidPath = errors.New("invalid artifact path")
)

// OpError wraps an underlying failure with the operation and path that
// produced it. It is the carrier for I/O failures: callers match the
// underlying cause with errors.Is and recover the location with errors.As.
type OpError struct {
	// Op is the operation that failed, e.g. "merge", "capture", "restore".
	Op string `json:"op"`

	// Path is the path involved, relative when inside a tree.
	Path string `json:"path"`

	// Err is the underlying error.
	Err error `json:"error"`
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler.
func (e *OpError) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"op":%q,"path":%q,"error":%q}`, e.Op, e.Path, e.Err.Error())), nil
}

// IOFailure wraps err in an OpError unless it is nil.
func IOFailure(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}
