// Package watch turns filesystem activity under the content root into change
// signals for the build scheduler.
//
// The watcher reports that something changed, never what: every surviving
// event collapses into an undifferentiated Change, and the downstream
// debouncer and scheduler decide when a rebuild actually runs. Filtering here
// is purely path-based: hidden files, editor droppings, configured ignore
// rules, and the output directory triple when it nests under the watch root.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
	"github.com/sitewright/sitewright/internal/metrics"
	"github.com/sitewright/sitewright/internal/observability"
)

// Change is one surviving filesystem event.
type Change struct {
	Path string
	Op   string
}

// Options configures a Watcher.
type Options struct {
	// Ignore lists substrings; a path containing any of them never signals.
	Ignore []string
	// SkipDirs lists absolute directory paths that are never watched, used to
	// keep the output triple out of the loop when it nests under the root.
	SkipDirs []string
	Recorder metrics.Recorder
}

// Watcher emits change signals for a directory tree. Directories created
// after startup are picked up from their create events.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	ignore   []string
	skip     map[string]bool
	recorder metrics.Recorder
	changes  chan Change
}

// New creates a Watcher rooted at dir and registers the existing directory
// tree. A root that does not exist or cannot be watched is a fatal watch
// error: without notifications a watch session is useless.
func New(dir string, opts Options) (*Watcher, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WatchError("failed to resolve watch root").
			WithCause(err).
			WithContext("dir", dir).
			Build()
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, errors.WatchError("watch root is not a directory").
			WithContext("dir", root).
			Build()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WatchError("failed to create filesystem watcher").
			WithCause(err).
			Build()
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[filepath.Clean(d)] = true
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		ignore:   opts.Ignore,
		skip:     skip,
		recorder: recorder,
		changes:  make(chan Change, 64),
	}
	if err := w.addDirsRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, errors.WatchError("failed to register directory tree").
			WithCause(err).
			WithContext("dir", root).
			Build()
	}
	w.recorder.SetWatchedDirs(len(fsw.WatchList()))
	return w, nil
}

// Changes returns the signal channel. It is closed when Run returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Run pumps filesystem events into the change channel until ctx is done or
// the watcher is closed. Runtime watcher errors are logged and the loop
// continues; only startup can fail a watch session.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.changes)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			observability.WarnContext(ctx, "Filesystem watcher error", logfields.Error(err))
		}
	}
}

// Close shuts the underlying watcher down, which unblocks Run.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if w.ignorePath(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addDirsRecursive(ev.Name); err != nil {
				observability.WarnContext(ctx, "Failed to watch new directory",
					logfields.Dir(ev.Name), logfields.Error(err))
			}
			w.recorder.SetWatchedDirs(len(w.fsw.WatchList()))
		}
	}

	observability.DebugContext(ctx, "Change detected",
		logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.recorder.AddChangeSignals(1)

	select {
	case w.changes <- Change{Path: ev.Name, Op: ev.Op.String()}:
	default:
		// The debouncer coalesces anyway; dropping under backpressure loses
		// nothing but a duplicate signal.
	}
}

// addDirsRecursive registers root and every directory below it, skipping
// hidden directories and the configured skip set.
func (w *Watcher) addDirsRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip[filepath.Clean(path)] {
			return filepath.SkipDir
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignorePath filters hidden files, editor temp/swap files, anything under a
// skipped directory, and configured ignore substrings.
func (w *Watcher) ignorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swo") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#")) {
		return true
	}
	clean := filepath.Clean(path)
	for dir := range w.skip {
		if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
			return true
		}
	}
	for _, sub := range w.ignore {
		if sub != "" && strings.Contains(path, sub) {
			return true
		}
	}
	return false
}
