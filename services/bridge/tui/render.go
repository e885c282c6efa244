// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AgentBridge/pkg/ux"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ux.ColorTealBright)

	pathStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))

	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	addedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	hunkStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))

	helpKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(ux.ColorTealPrimary)

	acceptedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	skippedBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Background(lipgloss.Color("58")).
			Padding(0, 1)

	pendingBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)
)

func (m ReviewModel) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(
		fmt.Sprintf("Capture review (%d diverged)", len(m.items))))
	if m.viewMode == ViewDiff {
		b.WriteString(countStyle.Render(
			fmt.Sprintf("  [%d/%d]", m.idx+1, len(m.items))))
	}
	return b.String()
}

func (m ReviewModel) renderFooter() string {
	var keys []string
	switch m.viewMode {
	case ViewSummary:
		keys = []string{
			"[Enter] Apply accepted", "[Tab] Back to diffs", "[Q] Cancel",
		}
	default:
		keys = []string{
			"[Y] Accept", "[N] Skip", "[A] Accept rest",
			"[←→] File", "[J/K] Scroll", "[?] Help", "[Q] Cancel",
		}
	}
	return countStyle.Render(strings.Join(keys, "  "))
}

func (m ReviewModel) renderDiff() string {
	if m.idx >= len(m.items) {
		return "No file selected"
	}
	it := m.items[m.idx]

	var b strings.Builder
	b.WriteString(pathStyle.Render(it.Path))
	b.WriteString("  ")
	b.WriteString(m.renderBadge(m.decisions[m.idx]))
	b.WriteString("\n\n")
	if strings.TrimSpace(it.Diff) == "" {
		b.WriteString(contextStyle.Render("(no textual difference)"))
		return b.String()
	}
	for _, line := range strings.Split(strings.TrimRight(it.Diff, "\n"), "\n") {
		b.WriteString(renderDiffLine(line))
		b.WriteString("\n")
	}
	return b.String()
}

func renderDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "@@"):
		return hunkStyle.Render(line)
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return hunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return addedStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return removedStyle.Render(line)
	default:
		return contextStyle.Render(line)
	}
}

func (m ReviewModel) renderBadge(d Decision) string {
	switch d {
	case DecisionAccept:
		return acceptedBadge.Render("ACCEPT")
	case DecisionSkip:
		return skippedBadge.Render("SKIP")
	default:
		return pendingBadge.Render("PENDING")
	}
}

func (m ReviewModel) renderSummary() string {
	accepted, skipped, pending := 0, 0, 0
	for _, d := range m.decisions {
		switch d {
		case DecisionAccept:
			accepted++
		case DecisionSkip:
			skipped++
		default:
			pending++
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Review summary"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n\n",
		addedStyle.Render(fmt.Sprintf("%d accepted", accepted)),
		skippedBadge.Render(fmt.Sprintf("%d skipped", skipped)),
		countStyle.Render(fmt.Sprintf("%d pending", pending))))

	for i, it := range m.items {
		b.WriteString("  ")
		b.WriteString(m.renderBadge(m.decisions[i]))
		b.WriteString(" ")
		b.WriteString(it.Path)
		b.WriteString("\n")
	}
	if pending > 0 {
		b.WriteString("\n")
		b.WriteString(countStyle.Render(
			"Pending files are skipped when applied. Tab returns to the diffs."))
	}
	return b.String()
}

func (m ReviewModel) renderHelp() string {
	rows := [][2]string{
		{"y", "accept the current file for capture"},
		{"n / s", "skip the current file"},
		{"a", "accept every remaining file"},
		{"← / →", "previous / next file"},
		{"j / k", "scroll the diff"},
		{"ctrl+d / ctrl+u", "scroll half a page"},
		{"g / G", "jump to top / bottom"},
		{"tab", "toggle the summary"},
		{"enter", "apply accepted files (summary view)"},
		{"q", "cancel without applying"},
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Render(fmt.Sprintf("%-16s", r[0])), r[1]))
	}
	b.WriteString("\n")
	b.WriteString(countStyle.Render("q or esc closes this help."))
	return b.String()
}
