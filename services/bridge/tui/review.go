// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui implements the interactive capture review screen.
//
// # Description
//
// A review session walks the diverged target files found by a dry capture
// pass and lets the user accept or skip each one before anything is
// written back into the canonical tree. Accepted paths feed the follow-up
// capture pass; skipped paths stay on the target side untouched.
//
// # Thread Safety
//
// Models are single-threaded inside the bubbletea event loop. Do not touch
// model state from other goroutines.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ViewMode selects what the main pane shows.
type ViewMode int

const (
	// ViewDiff shows the current file's unified preview.
	ViewDiff ViewMode = iota

	// ViewSummary shows the decision roll-up before applying.
	ViewSummary
)

// Decision is the reviewer's call on one file.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccept
	DecisionSkip
)

// Item is one diverged target file up for review.
type Item struct {
	// Path is the project-root-relative target file.
	Path string

	// Diff is the unified preview of what accepting would write.
	Diff string
}

// Result collects the session outcome after the screen exits.
type Result struct {
	// Accepted holds target paths approved for capture, in review order.
	Accepted []string

	// Skipped holds target paths the reviewer declined.
	Skipped []string

	// Cancelled is set when the session ended with q or ctrl+c; nothing
	// should be applied in that case.
	Cancelled bool
}

// DoneMsg signals that every file has a decision.
type DoneMsg struct {
	Result *Result
}

// ReviewModel is the bubbletea model for one capture review session.
type ReviewModel struct {
	items     []Item
	decisions []Decision

	idx      int
	viewMode ViewMode

	viewport viewport.Model
	width    int
	height   int
	ready    bool

	showHelp bool
	quitting bool
	canceled bool
}

// NewReviewModel builds a session over the diverged files. Items keep the
// order they were handed in, which the caller sorts by path.
func NewReviewModel(items []Item) ReviewModel {
	return ReviewModel{
		items:     items,
		decisions: make([]Decision, len(items)),
		viewMode:  ViewDiff,
	}
}

// Init implements tea.Model.
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		paneHeight := m.height - headerHeight - footerHeight
		if paneHeight < 1 {
			paneHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, paneHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = paneHeight
		}
		m.refreshPane()

	case tea.KeyMsg:
		if m.showHelp {
			switch msg.String() {
			case "q", "?", "esc":
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "y", "Y":
			m.decide(DecisionAccept)
			m.advance()
			return m, nil

		case "n", "N", "s", "S":
			m.decide(DecisionSkip)
			m.advance()
			return m, nil

		case "a", "A":
			m.acceptRemaining()
			m.viewMode = ViewSummary
			m.refreshPane()
			return m, nil

		case "left", "h":
			if m.viewMode == ViewDiff && m.idx > 0 {
				m.idx--
				m.refreshPane()
			}
			return m, nil

		case "right", "l":
			if m.viewMode == ViewDiff && m.idx < len(m.items)-1 {
				m.idx++
				m.refreshPane()
			}
			return m, nil

		case "g", "home":
			m.viewport.GotoTop()
			return m, nil

		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil

		case "tab":
			if m.viewMode == ViewDiff {
				m.viewMode = ViewSummary
			} else {
				m.viewMode = ViewDiff
			}
			m.refreshPane()
			return m, nil

		case "?":
			m.showHelp = true
			return m, nil

		case "enter":
			if m.viewMode == ViewSummary {
				return m.finish()
			}
			return m, nil

		case "q", "Q", "ctrl+c", "esc":
			m.canceled = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	// Everything else, the scroll keys included, goes to the pane.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ReviewModel) View() string {
	if m.quitting {
		if m.canceled {
			return "Review cancelled, nothing applied.\n"
		}
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}
	if len(m.items) == 0 {
		return "Nothing to review.\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// Result returns the decisions made so far. After a finished session every
// item is either accepted or skipped.
func (m ReviewModel) Result() *Result {
	res := &Result{Cancelled: m.canceled}
	for i, it := range m.items {
		switch m.decisions[i] {
		case DecisionAccept:
			res.Accepted = append(res.Accepted, it.Path)
		case DecisionSkip:
			res.Skipped = append(res.Skipped, it.Path)
		}
	}
	return res
}

func (m *ReviewModel) decide(d Decision) {
	if m.viewMode != ViewDiff || m.idx >= len(m.items) {
		return
	}
	m.decisions[m.idx] = d
}

// advance moves to the next undecided file, or to the summary when none
// remain.
func (m *ReviewModel) advance() {
	for i := m.idx + 1; i < len(m.items); i++ {
		if m.decisions[i] == DecisionPending {
			m.idx = i
			m.refreshPane()
			return
		}
	}
	for i := 0; i < len(m.items); i++ {
		if m.decisions[i] == DecisionPending {
			m.idx = i
			m.refreshPane()
			return
		}
	}
	m.viewMode = ViewSummary
	m.refreshPane()
}

func (m *ReviewModel) acceptRemaining() {
	for i := range m.decisions {
		if m.decisions[i] == DecisionPending {
			m.decisions[i] = DecisionAccept
		}
	}
}

func (m ReviewModel) finish() (ReviewModel, tea.Cmd) {
	m.quitting = true
	res := m.Result()
	return m, tea.Sequence(
		func() tea.Msg { return DoneMsg{Result: res} },
		tea.Quit,
	)
}

func (m *ReviewModel) refreshPane() {
	if !m.ready {
		return
	}
	switch m.viewMode {
	case ViewSummary:
		m.viewport.SetContent(m.renderSummary())
	default:
		m.viewport.SetContent(m.renderDiff())
	}
	m.viewport.GotoTop()
}

// Review runs a full-screen session over items and blocks until the user
// finishes or cancels. An empty item list returns an empty accepted set
// without opening the screen.
func Review(items []Item) (*Result, error) {
	if len(items) == 0 {
		return &Result{}, nil
	}
	p := tea.NewProgram(NewReviewModel(items),
		tea.WithAltScreen(), tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("capture review: %w", err)
	}
	model, ok := final.(ReviewModel)
	if !ok {
		return nil, fmt.Errorf("capture review: unexpected model %T", final)
	}
	return model.Result(), nil
}
