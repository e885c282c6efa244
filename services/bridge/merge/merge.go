// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merge computes the canonical artifact tree from a set of ranked
// sources.
//
// Each merge is a full recompute: sources are listed fresh, the winner for
// every path is chosen by rank (lower wins, ties go to the earlier
// registered source), and content digests are computed eagerly in parallel.
// The result is an immutable snapshot; nothing in this package watches for
// later changes to the underlying directories.
package merge

import (
	"context"
	"log/slog"
	"path"
	"sort"

	"github.com/AleutianAI/AgentBridge/services/bridge/fingerprint"
	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// Source is the slice of a vault source the merge consumes. The vault
// package's sources satisfy it.
type Source interface {
	Name() string
	Rank() int
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, rel string) ([]byte, error)
}

// Config tunes one merge pass.
type Config struct {
	// Excludes are path.Match patterns. A path is dropped when a pattern
	// matches either its full relative path or its base name.
	Excludes []string

	// Workers bounds the parallel digest fan-out. <= 0 selects one per
	// CPU.
	Workers int

	// Logger receives per-source listing stats. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Merge lists every source and resolves each path to its winning source.
//
// Sources are consulted in rank order with registration order breaking
// ties, so the first source holding a path wins. Listings that contain
// malformed paths skip those entries with a warning rather than failing
// the merge; a vault must not be able to poison the canonical tree.
// Digests for every winning entry are computed before Merge returns.
func Merge(ctx context.Context, sources []Source, cfg Config) (*Tree, Provenance, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank() < ordered[j].Rank() })

	entries := make(map[string]Entry)
	prov := make(Provenance)
	for _, src := range ordered {
		listed, err := src.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		won := 0
		for _, raw := range listed {
			rel, err := tree.NormalizeRel(raw)
			if err != nil {
				logger.Warn("skipping malformed path from source",
					"source", src.Name(), "path", raw, "error", err)
				continue
			}
			if tree.IsReserved(rel) || excluded(cfg.Excludes, rel) {
				continue
			}
			if _, taken := entries[rel]; taken {
				continue
			}
			entries[rel] = Entry{Path: rel, Source: src}
			prov[rel] = src.Name()
			won++
		}
		logger.Debug("source merged",
			"source", src.Name(), "rank", src.Rank(), "listed", len(listed), "won", won)
	}

	paths := make([]string, 0, len(entries))
	for rel := range entries {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	read := func(ctx context.Context, rel string) ([]byte, error) {
		return entries[rel].Source.Read(ctx, rel)
	}
	records, err := fingerprint.HashTree(ctx, read, paths, cfg.Workers)
	if err != nil {
		return nil, nil, err
	}
	for rel, rec := range records {
		e := entries[rel]
		e.Digest = rec.Digest
		e.Size = rec.Size
		entries[rel] = e
	}

	logger.Info("canonical tree merged", "sources", len(sources), "artifacts", len(paths))
	return &Tree{entries: entries, paths: paths}, prov, nil
}

// excluded reports whether rel matches any configured exclude pattern.
func excluded(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := path.Match(pat, rel); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pat, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
