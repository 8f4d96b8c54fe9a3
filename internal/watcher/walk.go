package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
)

// Walk is the outcome of attaching to a directory tree.
type Walk struct {
	// AddedIDs are the ids of every file scheduled for indexing.
	AddedIDs []fileid.FileID
	// Dirs is the number of directories watched by the walk.
	Dirs int
	// Failed counts files whose index run returned an error.
	Failed int
	// Cancelled is set when ctx was cancelled before the walk finished.
	Cancelled bool
}

// AttachToRootAndIndex watches root and every directory below it up to
// MaxDepth, and runs index for every valid file. It returns once every
// scheduled index run has finished.
//
// ctx is the cancellation token: it is polled before each directory and
// file, and once it is done no further work is scheduled. Index runs that
// already started are never interrupted; they receive a context detached
// from ctx's cancellation.
func (w *Watcher) AttachToRootAndIndex(ctx context.Context, root string, index IndexFunc) (Walk, error) {
	root = filepath.Clean(root)
	if err := w.watchDir(root, true); err != nil {
		return Walk{}, err
	}

	var (
		result Walk
		mu     sync.Mutex
		g      errgroup.Group
	)
	runCtx := context.WithoutCancel(ctx)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if path == root {
				result.Dirs++
				return nil
			}
			if w.excluded(rel, true) || w.tooDeep(rel) {
				return filepath.SkipDir
			}
			if err := w.watchDir(path, true); err != nil {
				w.logger.Warn("failed to watch directory", fserrors.LogAttrs(err)...)
				return filepath.SkipDir
			}
			result.Dirs++
			return nil
		}

		if !d.Type().IsRegular() || w.excluded(rel, false) || !w.validator.IsValid(path) {
			return nil
		}

		// Acquire before scheduling so a cancelled walk stops promptly
		// instead of queueing the rest of the tree.
		if err := w.pool.Acquire(ctx, 1); err != nil {
			return filepath.SkipAll
		}
		id := w.ids.ToID(path)
		mu.Lock()
		result.AddedIDs = append(result.AddedIDs, id)
		mu.Unlock()

		g.Go(func() error {
			defer w.pool.Release(1)
			if err := index(runCtx, id, path); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				w.logger.Warn("failed to index file",
					append([]any{slog.String("path", path)}, fserrors.LogAttrs(err)...)...)
			}
			return nil
		})
		return nil
	})
	_ = g.Wait()

	if walkErr != nil {
		return result, fserrors.New(fserrors.ErrCodeWatchFailed, "failed to walk directory", walkErr).
			WithDetail("path", root)
	}
	result.Cancelled = ctx.Err() != nil
	w.logger.Debug("walk finished",
		slog.String("root", root),
		slog.Int("dirs", result.Dirs),
		slog.Int("files", len(result.AddedIDs)),
		slog.Int("failed", result.Failed),
		slog.Bool("cancelled", result.Cancelled))
	return result, nil
}

// tooDeep reports whether a directory at rel would put its files past
// MaxDepth. The root's files sit at depth 1.
func (w *Watcher) tooDeep(rel string) bool {
	if w.cfg.MaxDepth <= 0 {
		return false
	}
	depth := strings.Count(filepath.ToSlash(rel), "/") + 1
	return depth >= w.cfg.MaxDepth
}

// excluded matches rel against the exclude patterns. Directories are also
// tried with a trailing slash so "dir/**" style patterns prune them.
func (w *Watcher) excluded(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.cfg.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}
