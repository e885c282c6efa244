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
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ReadFunc fetches the content behind a relative path.
type ReadFunc func(ctx context.Context, rel string) ([]byte, error)

// HashTree digests many paths in parallel through read and returns one
// Record per path.
//
// The fan-out is purely data parallel: results land in disjoint slots and
// the call returns only after every worker has joined, so callers observe
// plain synchronous semantics. workers <= 0 selects one worker per CPU.
// The first read error cancels the remaining work and is returned.
func HashTree(ctx context.Context, read ReadFunc, paths []string, workers int) (map[string]Record, error) {
	if len(paths) == 0 {
		return map[string]Record{}, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	records := make([]Record, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			data, err := read(gCtx, rel)
			if err != nil {
				return err
			}
			records[i] = Record{Path: rel, Digest: Fingerprint(data), Size: int64(len(data))}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Record, len(paths))
	for i, rel := range paths {
		out[rel] = records[i]
	}
	return out, nil
}
