package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/logging"
)

// Operation is the kind of change reported for a path.
type Operation int

const (
	OpCreate Operation = iota + 1
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent is one filesystem change under a watched directory.
type ChangeEvent struct {
	Path  string
	Op    Operation
	IsDir bool
	Time  time.Time
}

// Validator decides whether a walked file is indexed.
type Validator interface {
	IsValid(path string) bool
}

// IndexFunc indexes one file found by a walk.
type IndexFunc func(ctx context.Context, id fileid.FileID, path string) error

// Config configures walks and the event channel.
type Config struct {
	// MaxDepth bounds how far below the root a walk descends. Zero or
	// negative means unbounded.
	MaxDepth int
	// Parallelism bounds concurrent index runs across all walks.
	Parallelism int
	// ExcludePatterns are doublestar globs matched against paths relative
	// to the walk root.
	ExcludePatterns []string
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Watcher owns the fsnotify watcher and the walk worker pool.
type Watcher struct {
	cfg       Config
	ids       *fileid.Registry
	validator Validator
	logger    *slog.Logger

	fsw    *fsnotify.Watcher
	pool   *semaphore.Weighted
	events chan ChangeEvent

	mu sync.RWMutex
	// watched holds every directory with an fsnotify watch.
	watched map[string]struct{}
	// filtered restricts a partially watched directory to the listed files.
	filtered map[string]map[string]struct{}

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a Watcher and starts its publisher goroutine.
func New(cfg Config, ids *fileid.Registry, validator Validator, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fserrors.New(fserrors.ErrCodeWatchFailed, "failed to create filesystem watcher", err)
	}

	w := &Watcher{
		cfg:       cfg,
		ids:       ids,
		validator: validator,
		logger:    logging.Component(logger, "watcher"),
		fsw:       fsw,
		pool:      semaphore.NewWeighted(int64(cfg.Parallelism)),
		events:    make(chan ChangeEvent, cfg.EventBuffer),
		watched:   make(map[string]struct{}),
		filtered:  make(map[string]map[string]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go w.publish()
	return w, nil
}

// Events returns the change event channel. It is closed by Close.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// watchDir attaches a watch to dir. A complete watch drops any file filter.
func (w *Watcher) watchDir(dir string, complete bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if complete {
		delete(w.filtered, dir)
	}
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fserrors.New(fserrors.ErrCodeWatchFailed, "failed to watch directory", err).
			WithDetail("path", dir)
	}
	w.watched[dir] = struct{}{}
	return nil
}

// AttachToFile watches the parent directory of file, limited to file when
// the directory is not already watched completely.
func (w *Watcher) AttachToFile(file string) error {
	dir := filepath.Dir(file)

	w.mu.Lock()
	_, watched := w.watched[dir]
	files, partial := w.filtered[dir]
	if !watched || partial {
		if files == nil {
			files = make(map[string]struct{})
			w.filtered[dir] = files
		}
		files[file] = struct{}{}
	}
	w.mu.Unlock()

	if err := w.watchDir(dir, false); err != nil {
		w.mu.Lock()
		if files := w.filtered[dir]; files != nil {
			delete(files, file)
			if len(files) == 0 {
				delete(w.filtered, dir)
			}
		}
		w.mu.Unlock()
		return err
	}
	return nil
}

// ClearFilteredFiles turns a partial watch on dir into a complete one.
func (w *Watcher) ClearFilteredFiles(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.filtered, dir)
}

// IsPartial reports whether dir is watched only for specific files.
func (w *Watcher) IsPartial(dir string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.filtered[dir]
	return ok
}

// IsWatched reports whether dir has a watch.
func (w *Watcher) IsWatched(dir string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watched[dir]
	return ok
}

// Detach removes the complete watches on root and the directories below
// it. Partial watches serving file registrations are kept.
func (w *Watcher) Detach(root string) {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)

	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.watched {
		if dir != root && !strings.HasPrefix(dir, prefix) {
			continue
		}
		if _, partial := w.filtered[dir]; partial {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil {
			w.logger.Debug("failed to remove watch", slog.String("path", dir), slog.String("error", err.Error()))
		}
		delete(w.watched, dir)
	}
}

// WatchedCount returns the number of watched directories.
func (w *Watcher) WatchedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watched)
}

// Reset removes every watch and filter. The publisher keeps running.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.watched {
		_ = w.fsw.Remove(dir)
	}
	w.watched = make(map[string]struct{})
	w.filtered = make(map[string]map[string]struct{})
}

// Close stops the publisher, releases the OS watcher and closes Events.
// Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		if cerr := w.fsw.Close(); cerr != nil {
			err = fmt.Errorf("close fsnotify watcher: %w", cerr)
		}
		<-w.doneCh
		close(w.events)
	})
	return err
}

// passesFilter reports whether path survives the partial-watch filter of
// its directory.
func (w *Watcher) passesFilter(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	files, ok := w.filtered[filepath.Dir(path)]
	if !ok || len(files) == 0 {
		return true
	}
	_, ok = files[path]
	return ok
}
