// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// keyPrefix namespaces sync entries so future record kinds can share the
// database.
const keyPrefix = "sync/"

// Entry records one file a sync wrote into an IDE target.
type Entry struct {
	// Target is the converter that produced the file, e.g. "cursor".
	Target string `json:"target"`

	// CanonicalPath is the artifact the file was projected from.
	CanonicalPath string `json:"canonical_path"`

	// TargetPath is the written file, relative to the project root.
	TargetPath string `json:"target_path"`

	// Digest fingerprints the bytes as written. Forward conversion may
	// transform content, so this is the digest of the target file, not
	// of the canonical artifact.
	Digest fingerprint.Digest `json:"digest"`

	// SyncedAt is when the file was written. Informational only; it is
	// never used to detect changes.
	SyncedAt time.Time `json:"synced_at"`
}

// Store is the sync ledger.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the ledger with the given configuration.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database. Best-effort value log GC runs first so a
// long-lived project ledger does not grow without bound.
func (s *Store) Close() error {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) &&
		!errors.Is(err, badger.ErrRejected) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		s.logger.Debug("ledger value log GC skipped", "error", err)
	}
	return s.db.Close()
}

func entryKey(target, targetPath string) []byte {
	return []byte(keyPrefix + target + "/" + targetPath)
}

func targetPrefix(target string) []byte {
	return []byte(keyPrefix + target + "/")
}

// Put stores or replaces one entry.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Target == "" || e.TargetPath == "" {
		return fmt.Errorf("ledger entry needs target and target path: %+v", e)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e.Target, e.TargetPath), data)
	})
}

// Get fetches the entry for one target file. A missing entry reports
// tree.ErrNotFound.
func (s *Store) Get(ctx context.Context, target, targetPath string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(target, targetPath))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Entry{}, &tree.OpError{Op: "get", Path: target + "/" + targetPath, Err: tree.ErrNotFound}
		}
		return Entry{}, fmt.Errorf("read ledger entry: %w", err)
	}
	return e, nil
}

// ListTarget returns every entry for one target, sorted by target path.
func (s *Store) ListTarget(ctx context.Context, target string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = targetPrefix(target)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger target %s: %w", target, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TargetPath < entries[j].TargetPath })
	return entries, nil
}

// Delete removes one entry. Deleting an absent entry is a no-op.
func (s *Store) Delete(ctx context.Context, target, targetPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(target, targetPath))
	})
}

// DeleteTarget removes every entry for one target and returns how many were
// dropped. Used when a target's projection is cleaned from the project.
func (s *Store) DeleteTarget(ctx context.Context, target string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = targetPrefix(target)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete ledger target %s: %w", target, err)
	}
	return removed, nil
}

// ReplaceTarget swaps a target's entries for the given set in a single
// transaction. Sync calls this after projecting so entries for files no
// longer written do not linger.
func (s *Store) ReplaceTarget(ctx context.Context, target string, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = targetPrefix(target)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if e.Target != target {
				return fmt.Errorf("entry for target %q in replace of %q", e.Target, target)
			}
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode ledger entry: %w", err)
			}
			if err := txn.Set(entryKey(target, e.TargetPath), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Targets lists the distinct target names present in the ledger.
func (s *Store) Targets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			rest := key[len(keyPrefix):]
			for i := 0; i < len(rest); i++ {
				if rest[i] == '/' {
					seen[rest[:i]] = true
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger targets: %w", err)
	}
	targets := make([]string, 0, len(seen))
	for t := range seen {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets, nil
}
