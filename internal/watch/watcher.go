package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// Watcher emits debounced change batches for a repository tree.
// Directories in the configured exclude set are never watched.
type Watcher struct {
	root     string
	excluded map[string]bool
	window   time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher
	deb *debouncer
}

// NewWatcher creates a watcher for the tree at root.
func NewWatcher(root string, cfg config.ProcessorConfig, window time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.ErrCodeInvalidInput, "resolving watch root")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.ErrCodeInternal, "creating filesystem watcher")
	}

	excluded := make(map[string]bool)
	for _, name := range cfg.ExcludeSet() {
		excluded[name] = true
	}
	return &Watcher{
		root:     absRoot,
		excluded: excluded,
		window:   window,
		logger:   logger,
		fsw:      fsw,
		deb:      newDebouncer(window),
	}, nil
}

// Root is the absolute directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// Batches is the stream of debounced event batches.
func (w *Watcher) Batches() <-chan []Event {
	return w.deb.out
}

// Start registers the tree and pumps events until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Close releases the filesystem watcher and stops the debouncer.
func (w *Watcher) Close() error {
	w.deb.stop()
	return w.fsw.Close()
}

// addTree registers dir and every non-excluded subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (w.excluded[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if w.excluded[part] {
			return
		}
	}

	// New directories join the watch set so nested changes surface.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if !w.excluded[info.Name()] {
				_ = w.addTree(ev.Name)
			}
			return
		}
	}

	var op Op
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.deb.add(Event{Path: rel, Op: op})
}
