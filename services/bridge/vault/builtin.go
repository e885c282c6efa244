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
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

//go:embed assets
var builtinAssets embed.FS

const builtinRoot = "assets"

// BuiltinSource serves the starter vault compiled into the binary. It needs
// no cache and no refresh; a fresh install can sync useful defaults before
// any vault has been registered.
type BuiltinSource struct {
	rank int
}

func NewBuiltinSource() *BuiltinSource {
	return &BuiltinSource{rank: BuiltinPriority}
}

func (s *BuiltinSource) Name() string { return BuiltinName }
func (s *BuiltinSource) Kind() Kind   { return KindBuiltin }
func (s *BuiltinSource) Rank() int    { return s.rank }

func (s *BuiltinSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var paths []string
	err := fs.WalkDir(builtinAssets, builtinRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, strings.TrimPrefix(p, builtinRoot+"/"))
		return nil
	})
	if err != nil {
		return nil, tree.IOFailure("scan", builtinRoot, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *BuiltinSource) Read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := tree.NormalizeRel(rel)
	if err != nil {
		return nil, err
	}
	data, err := builtinAssets.ReadFile(path.Join(builtinRoot, norm))
	if err != nil {
		return nil, &tree.OpError{Op: "read", Path: norm, Err: tree.ErrNotFound}
	}
	return data, nil
}
