// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// refreshInterval spaces out git operations across vaults so a registry with
// many remotes on one host does not trip server-side throttling.
const refreshInterval = 500 * time.Millisecond

// RefreshResult reports the outcome of refreshing one vault. A vault whose
// source needs no refresh (local directories, the builtin) is skipped and
// does not appear in the results.
type RefreshResult struct {
	Vault string
	Kind  Kind
	Err   error
}

// Refresh updates the cached content of a single vault by name. Vaults whose
// sources need no refresh succeed immediately.
func (r *Registry) Refresh(ctx context.Context, name string) error {
	v, err := r.Get(name)
	if err != nil {
		return err
	}
	refresher, ok := r.Source(v).(Refresher)
	if !ok {
		return nil
	}
	return refresher.Refresh(ctx)
}

// RefreshAll updates every enabled vault that supports refreshing, running
// up to workers refreshes concurrently. Per-vault failures are collected in
// the results rather than aborting the batch; the returned error is non-nil
// only when the context is cancelled.
func (r *Registry) RefreshAll(ctx context.Context, workers int) ([]RefreshResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type job struct {
		vault     Vault
		refresher Refresher
	}
	var jobs []job
	for _, v := range r.Enabled() {
		if refresher, ok := r.Source(v).(Refresher); ok {
			jobs = append(jobs, job{vault: v, refresher: refresher})
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	limiter := rate.NewLimiter(rate.Every(refreshInterval), 1)
	results := make([]RefreshResult, len(jobs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := limiter.Wait(gCtx); err != nil {
				results[i] = RefreshResult{Vault: j.vault.Name, Kind: j.vault.Kind(), Err: err}
				return err
			}
			start := time.Now()
			err := j.refresher.Refresh(gCtx)
			results[i] = RefreshResult{Vault: j.vault.Name, Kind: j.vault.Kind(), Err: err}
			if err != nil {
				r.logger.Warn("vault refresh failed", "vault", j.vault.Name, "error", err)
			} else {
				r.logger.Info("vault refreshed", "vault", j.vault.Name, "elapsed", time.Since(start))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
