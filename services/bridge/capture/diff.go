// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capture

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const hunkContext = 3

// dpLimit caps the LCS table size. Beyond it the changed middle of the
// file renders as one replace block, which keeps previews of very large
// files cheap.
const dpLimit = 1 << 20

type editOp struct {
	kind byte // ' ', '-', '+'
	text string
}

// Unified renders a unified diff between the current canonical content and
// its restored replacement. Returns "" when nothing changed line-wise.
func Unified(path string, oldData, newData []byte) string {
	if bytes.Equal(oldData, newData) {
		return ""
	}
	ops := lineDiff(splitLines(oldData), splitLines(newData))
	hunks := buildHunks(ops)
	if len(hunks) == 0 {
		return ""
	}
	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks:    hunks,
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return fmt.Sprintf("--- a/%s\n+++ b/%s\n(preview unavailable: %v)\n", path, path, err)
	}
	return string(out)
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// lineDiff computes line edit operations. The common prefix and suffix are
// peeled off first so the LCS table only covers the changed middle.
func lineDiff(oldL, newL []string) []editOp {
	p := 0
	for p < len(oldL) && p < len(newL) && oldL[p] == newL[p] {
		p++
	}
	s := 0
	for s < len(oldL)-p && s < len(newL)-p && oldL[len(oldL)-1-s] == newL[len(newL)-1-s] {
		s++
	}

	ops := make([]editOp, 0, len(oldL)+len(newL))
	for _, l := range oldL[:p] {
		ops = append(ops, editOp{' ', l})
	}
	midOld, midNew := oldL[p:len(oldL)-s], newL[p:len(newL)-s]
	if len(midOld)*len(midNew) > dpLimit {
		for _, l := range midOld {
			ops = append(ops, editOp{'-', l})
		}
		for _, l := range midNew {
			ops = append(ops, editOp{'+', l})
		}
	} else {
		ops = append(ops, lcsOps(midOld, midNew)...)
	}
	for i := len(oldL) - s; i < len(oldL); i++ {
		ops = append(ops, editOp{' ', oldL[i]})
	}
	return ops
}

// lcsOps emits edit operations from a longest-common-subsequence table,
// deletions before insertions at each divergence.
func lcsOps(a, b []string) []editOp {
	n, m := len(a), len(b)
	dp := make([]int32, (n+1)*(m+1))
	idx := func(i, j int) int { return i*(m+1) + j }
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[idx(i, j)] = dp[idx(i+1, j+1)] + 1
			} else if dp[idx(i+1, j)] >= dp[idx(i, j+1)] {
				dp[idx(i, j)] = dp[idx(i+1, j)]
			} else {
				dp[idx(i, j)] = dp[idx(i, j+1)]
			}
		}
	}

	ops := make([]editOp, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{' ', a[i]})
			i++
			j++
		case dp[idx(i+1, j)] >= dp[idx(i, j+1)]:
			ops = append(ops, editOp{'-', a[i]})
			i++
		default:
			ops = append(ops, editOp{'+', b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{'-', a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{'+', b[j]})
	}
	return ops
}

// buildHunks groups edit operations into context hunks. Change runs whose
// gap of unchanged lines fits within twice the context merge into one
// hunk.
func buildHunks(ops []editOp) []*diff.Hunk {
	origBefore := make([]int, len(ops)+1)
	newBefore := make([]int, len(ops)+1)
	for i, op := range ops {
		origBefore[i+1] = origBefore[i]
		newBefore[i+1] = newBefore[i]
		if op.kind != '+' {
			origBefore[i+1]++
		}
		if op.kind != '-' {
			newBefore[i+1]++
		}
	}

	var hunks []*diff.Hunk
	i := 0
	for i < len(ops) {
		for i < len(ops) && ops[i].kind == ' ' {
			i++
		}
		if i == len(ops) {
			break
		}
		start := max(i-hunkContext, 0)
		last := i
		j := i + 1
		for j < len(ops) {
			if ops[j].kind != ' ' {
				last = j
				j++
				continue
			}
			k := j
			for k < len(ops) && ops[k].kind == ' ' {
				k++
			}
			if k == len(ops) || k-j > 2*hunkContext {
				break
			}
			j = k
		}
		end := min(last+hunkContext+1, len(ops))
		hunks = append(hunks, makeHunk(ops[start:end], origBefore[start], newBefore[start]))
		i = end
	}
	return hunks
}

func makeHunk(ops []editOp, origBefore, newBefore int) *diff.Hunk {
	var body bytes.Buffer
	var origLines, newLines int
	for _, op := range ops {
		body.WriteByte(op.kind)
		body.WriteString(op.text)
		body.WriteByte('\n')
		if op.kind != '+' {
			origLines++
		}
		if op.kind != '-' {
			newLines++
		}
	}
	h := &diff.Hunk{
		OrigStartLine: int32(origBefore + 1),
		OrigLines:     int32(origLines),
		NewStartLine:  int32(newBefore + 1),
		NewLines:      int32(newLines),
		Body:          body.Bytes(),
	}
	// An empty side anchors on the line before the hunk, per convention.
	if origLines == 0 {
		h.OrigStartLine = int32(origBefore)
	}
	if newLines == 0 {
		h.NewStartLine = int32(newBefore)
	}
	return h
}
