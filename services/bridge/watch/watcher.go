// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch turns filesystem activity on the canonical tree (and on
// selected single files, such as the vault registry) into debounced
// change batches. Sync-on-save builds on it: edits arrive as one batch
// per editing pause instead of one event per keystroke.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AgentBridge/services/bridge/tree"
)

// DefaultDebounce is how long the watcher waits for further events
// before handing a batch to the handler.
const DefaultDebounce = 500 * time.Millisecond

// Op classifies a filesystem change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one observed filesystem event after filtering.
type Change struct {
	// Path is the absolute path that changed.
	Path string

	// Op is the kind of change.
	Op Op

	// At is when the event was observed.
	At time.Time
}

// Handler receives a deduplicated batch once the debounce window
// closes. It runs on the watcher's goroutine; slow handlers delay the
// next batch, not event collection.
type Handler func(changes []Change)

// Config tunes a Watcher. Zero values pick the defaults.
type Config struct {
	// Roots are directories watched recursively.
	Roots []string

	// Files are individual files watched by exact path, such as the
	// vault registry. Their siblings do not produce events.
	Files []string

	// Debounce is the quiet period that closes a batch. Defaults to
	// DefaultDebounce.
	Debounce time.Duration

	// Ignore holds base-name patterns to skip. Defaults cover editor
	// droppings plus the control and git directories, so ledger and
	// lock traffic never feeds back into a sync loop.
	Ignore []string

	// Buffer is the pending-event channel size. Defaults to 1024.
	Buffer int

	// Logger receives watcher diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func defaultIgnore() []string {
	return []string{tree.ControlDir, ".git", "*.swp", "*.tmp", "*~"}
}

// Watcher batches fsnotify events for a set of roots and files.
//
// # Thread Safety
//
// Safe for concurrent use. Start is idempotent and the handler is only
// ever invoked from a single goroutine.
type Watcher struct {
	roots    []string
	files    map[string]bool
	handler  Handler
	debounce time.Duration
	ignore   []string
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	changes chan Change
	done    chan struct{}

	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New builds a watcher. Call Start to begin delivery and Stop to shut
// it down.
func New(handler Handler, cfg Config) (*Watcher, error) {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	ignore := cfg.Ignore
	if ignore == nil {
		ignore = defaultIgnore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool, len(cfg.Files))
	for _, f := range cfg.Files {
		files[filepath.Clean(f)] = true
	}

	return &Watcher{
		roots:    cfg.Roots,
		files:    files,
		handler:  handler,
		debounce: debounce,
		ignore:   ignore,
		logger:   logger,
		fsw:      fsw,
		changes:  make(chan Change, buffer),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the watch points and begins delivering batches. It
// returns once watching is established; delivery stops when ctx is
// canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	// fsnotify watches directories; single files are covered by
	// watching their parent and filtering in processEvents.
	for f := range w.files {
		if err := w.fsw.Add(filepath.Dir(f)); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watcher started",
		"roots", len(w.roots), "files", len(w.files), "debounce", w.debounce)
	return nil
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether Start has run and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A root that does not exist yet is watchable once the
			// first sync creates it; skip rather than fail.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignored(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// ignored matches the base name (and, for directory patterns, any path
// segment) against the ignore list.
func (w *Watcher) ignored(p string) bool {
	base := filepath.Base(p)
	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if !strings.ContainsAny(pattern, "*?[") &&
			strings.Contains(p, string(filepath.Separator)+pattern+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// relevant reports whether an event path is one of the registered files
// or lives under a watched root.
func (w *Watcher) relevant(p string) bool {
	if w.files[filepath.Clean(p)] {
		return true
	}
	for _, root := range w.roots {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Permission and mtime-only changes carry no content and
			// must not trigger a sync.
			if event.Op == fsnotify.Chmod {
				continue
			}
			if w.ignored(event.Name) || !w.relevant(event.Name) {
				continue
			}

			select {
			case w.changes <- Change{Path: event.Name, Op: convertOp(event.Op), At: time.Now()}:
			default:
				w.logger.Warn("change buffer full, dropping event", "path", event.Name)
			}

			// New directories under a root need their own watch.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Warn("cannot watch new directory",
							"path", event.Name, "error", err)
					}
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// debounceLoop collects changes and flushes a deduplicated batch to the
// handler once the quiet period elapses.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the latest change per path, preserving first-seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
