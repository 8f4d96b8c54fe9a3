// Package registry registers and unregisters files and directory trees and
// keeps the indices in step with the change events the watcher publishes.
package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/locker"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/roots"
	"github.com/Aman-CERP/fsindex/internal/telemetry"
	"github.com/Aman-CERP/fsindex/internal/validation"
	"github.com/Aman-CERP/fsindex/internal/watcher"
)

// Indexer re-indexes single files.
type Indexer interface {
	Update(ctx context.Context, id fileid.FileID) error
	Clear(ctx context.Context, id fileid.FileID) error
}

// Watcher is the part of the filesystem watcher the registry drives.
type Watcher interface {
	AttachToFile(file string) error
	AttachToRootAndIndex(ctx context.Context, root string, index watcher.IndexFunc) (watcher.Walk, error)
	ClearFilteredFiles(dir string)
	Detach(root string)
}

// State records how a registered path is watched.
type State struct {
	IsDirectory bool `json:"is_directory"`
	// IsMonitoredCompletely is false for a directory watched only for
	// individually registered files.
	IsMonitoredCompletely bool `json:"is_monitored_completely"`
}

// Deps are the collaborators of a Registry.
type Deps struct {
	IDs        *fileid.Registry
	Locks      *locker.Locker
	Validator  *validation.Validator
	Watcher    Watcher
	Indexer    Indexer
	Registered *roots.Registered
	Filtered   *roots.FilteredOut
	Canceller  *roots.Canceller
	Removal    *roots.RemovalSet
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// Registry is the registration facade.
type Registry struct {
	ids        *fileid.Registry
	locks      *locker.Locker
	validator  *validation.Validator
	watcher    Watcher
	indexer    Indexer
	registered *roots.Registered
	filtered   *roots.FilteredOut
	canceller  *roots.Canceller
	removal    *roots.RemovalSet
	metrics    *telemetry.Metrics
	logger     *slog.Logger

	mu     sync.RWMutex
	states map[string]State
}

// New creates a Registry.
func New(d Deps) *Registry {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		ids:        d.IDs,
		locks:      d.Locks,
		validator:  d.Validator,
		watcher:    d.Watcher,
		indexer:    d.Indexer,
		registered: d.Registered,
		filtered:   d.Filtered,
		canceller:  d.Canceller,
		removal:    d.Removal,
		metrics:    d.Metrics,
		logger:     logging.Component(logger, "registry"),
		states:     make(map[string]State),
	}
}

// Register indexes path and starts monitoring it. A directory is walked
// recursively; the call returns once every file found has been indexed or
// the registration was cancelled.
func (r *Registry) Register(ctx context.Context, path string) Result {
	res := r.register(ctx, path)
	r.metrics.CountRegistration(res.Code.String())
	r.logger.Info("register", slog.String("path", res.Path), slog.String("result", res.Code.String()))
	return res
}

func (r *Registry) register(ctx context.Context, path string) Result {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{Code: FileNotFound, Path: path}
	}

	outcome, info := r.validator.Stat(abs)
	switch outcome {
	case validation.NotFound:
		return Result{Code: FileNotFound, Path: abs}
	case validation.Abnormal:
		return Result{Code: AbnormalFile, Path: abs}
	case validation.SizeExceeds:
		return Result{Code: FileSizeExceedsLimits, Path: abs}
	case validation.FormatUnsupported:
		return Result{Code: FileFormatUnsupported, Path: abs}
	}
	isDir := info.IsDir()

	id := r.ids.ToID(abs)
	var res Result
	err = r.locks.WithLock(ctx, string(id), func(ctx context.Context) error {
		if r.registered.IsMonitored(abs) {
			res = r.registerMonitored(ctx, abs, id, isDir)
			return nil
		}
		if !isDir {
			res = r.registerFile(ctx, abs, id)
			return nil
		}
		res = r.registerDirectory(ctx, abs, id)
		return nil
	})
	if err != nil {
		r.logger.Warn("registration interrupted", fserrors.LogAttrs(err)...)
		return Result{Code: RegistrationFailed, Path: abs}
	}
	return res
}

// registerMonitored handles a path already inside a registered tree.
func (r *Registry) registerMonitored(ctx context.Context, abs string, id fileid.FileID, isDir bool) Result {
	if r.filtered.ShouldFilterOut(abs) {
		r.filtered.Remove(abs)
		r.registered.Add(abs)
		if !isDir {
			r.update(ctx, id, abs)
			r.setState(abs, State{IsMonitoredCompletely: true})
			return Result{Code: FileRegistrationSuccessful, Path: abs}
		}
		walk, ok := r.walk(ctx, abs, id)
		if !ok {
			// Restore the filter so the half-walked tree stays hidden.
			r.filtered.Add(abs)
			r.markForRemoval(walk.AddedIDs)
			r.canceller.Reset(id)
			return Result{Code: DirectoryRegistrationCancelled, Path: abs}
		}
		r.removal.Remove(walk.AddedIDs...)
		r.markComplete(abs)
		return Result{Code: DirectoryRegistrationSuccessful, Path: abs}
	}

	if isDir {
		if st, ok := r.State(abs); ok && st.IsDirectory && !st.IsMonitoredCompletely {
			r.watcher.ClearFilteredFiles(abs)
			return r.registerDirectory(ctx, abs, id)
		}
		return Result{Code: DirectoryAlreadyRegistered, Path: abs}
	}
	return Result{Code: FileAlreadyRegistered, Path: abs}
}

func (r *Registry) registerFile(ctx context.Context, abs string, id fileid.FileID) Result {
	if err := r.watcher.AttachToFile(abs); err != nil {
		r.logger.Warn("failed to watch file", fserrors.LogAttrs(err)...)
	}
	r.update(ctx, id, abs)
	r.registered.Add(abs)
	r.removal.Remove(id)

	r.mu.Lock()
	r.states[abs] = State{IsMonitoredCompletely: true}
	if _, ok := r.states[filepath.Dir(abs)]; !ok {
		r.states[filepath.Dir(abs)] = State{IsDirectory: true}
	}
	r.mu.Unlock()
	return Result{Code: FileRegistrationSuccessful, Path: abs}
}

func (r *Registry) registerDirectory(ctx context.Context, abs string, id fileid.FileID) Result {
	walk, ok := r.walk(ctx, abs, id)
	if !ok {
		r.watcher.Detach(abs)
		r.restoreFileWatches(abs)
		r.markForRemoval(walk.AddedIDs)
		r.canceller.Reset(id)
		return Result{Code: DirectoryRegistrationCancelled, Path: abs}
	}
	r.registered.Add(abs)
	r.removal.Remove(walk.AddedIDs...)
	r.markComplete(abs)
	return Result{Code: DirectoryRegistrationSuccessful, Path: abs}
}

// markComplete records dir as completely monitored, together with every
// partially watched directory below it.
func (r *Registry) markComplete(dir string) {
	prefix := dir + string(filepath.Separator)
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, st := range r.states {
		if st.IsDirectory && !st.IsMonitoredCompletely && strings.HasPrefix(p, prefix) {
			r.states[p] = State{IsDirectory: true, IsMonitoredCompletely: true}
		}
	}
	r.states[dir] = State{IsDirectory: true, IsMonitoredCompletely: true}
}

// markForRemoval queues the ids of a cancelled walk for purging, except
// files that another live registration still covers.
func (r *Registry) markForRemoval(ids []fileid.FileID) {
	for _, id := range ids {
		path, err := r.ids.ToPath(id)
		if err == nil && r.registered.IsMonitored(path) && !r.filtered.ShouldFilterOut(path) {
			continue
		}
		r.removal.Add(id)
	}
}

// restoreFileWatches re-attaches the registered files directly inside dir
// after its complete watch was dropped.
func (r *Registry) restoreFileWatches(dir string) {
	r.mu.RLock()
	var files []string
	for p, st := range r.states {
		if !st.IsDirectory && filepath.Dir(p) == dir {
			files = append(files, p)
		}
	}
	r.mu.RUnlock()

	for _, f := range files {
		if err := r.watcher.AttachToFile(f); err != nil {
			r.logger.Warn("failed to restore file watch", fserrors.LogAttrs(err)...)
		}
	}
}

// walk attaches to abs and indexes its files under a cancellation token
// for id. ok is false when the walk was cancelled or failed.
func (r *Registry) walk(ctx context.Context, abs string, id fileid.FileID) (watcher.Walk, bool) {
	token, release := r.canceller.Token(ctx, id)
	defer release()

	walk, err := r.watcher.AttachToRootAndIndex(token, abs, r.indexFunc)
	if err != nil {
		r.logger.Warn("failed to attach to directory", fserrors.LogAttrs(err)...)
		return walk, false
	}
	if walk.Cancelled || r.canceller.IsCancelled(id) {
		return walk, false
	}
	return walk, true
}

// indexFunc runs for each file of a walk. Each file gets its own lock owner
// so the walk's hold on the directory key does not leak into it. The id
// leaves the removal set under the file lock, before the update, so a
// concurrent sweep cannot purge what the walk just indexed.
func (r *Registry) indexFunc(ctx context.Context, id fileid.FileID, _ string) error {
	return r.locks.WithLock(locker.WithOwner(ctx), string(id), func(ctx context.Context) error {
		r.removal.Remove(id)
		return r.indexer.Update(ctx, id)
	})
}

func (r *Registry) update(ctx context.Context, id fileid.FileID, path string) {
	if err := r.indexer.Update(ctx, id); err != nil {
		r.logger.Warn("failed to index file",
			append([]any{slog.String("path", path)}, fserrors.LogAttrs(err)...)...)
	}
}

// Unregister stops path from appearing in search results. A directory's
// terms stay indexed but are filtered out; a file is re-indexed as empty.
func (r *Registry) Unregister(ctx context.Context, path string) UnregistrationResult {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	id := r.ids.ToID(abs)
	res := UnregistrationResult{Code: DirectoryUnregistrationSuccessful, Path: abs}
	err = r.locks.WithLock(ctx, string(id), func(ctx context.Context) error {
		if !r.registered.IsMonitored(abs) || r.filtered.ShouldFilterOut(abs) {
			res.Code = NotRegistered
			return nil
		}
		r.filtered.Add(abs)
		r.mu.Lock()
		delete(r.states, abs)
		r.mu.Unlock()

		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return nil
		}
		res.Code = FileUnregistrationSuccessful
		if err := r.indexer.Clear(ctx, id); err != nil {
			r.logger.Warn("failed to clear file",
				append([]any{slog.String("path", abs)}, fserrors.LogAttrs(err)...)...)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("unregistration interrupted", fserrors.LogAttrs(err)...)
		return UnregistrationResult{Code: NotRegistered, Path: abs}
	}
	r.logger.Info("unregister", slog.String("path", abs), slog.String("result", res.Code.String()))
	return res
}

// HandleEvent applies one change event from the watcher.
func (r *Registry) HandleEvent(ctx context.Context, ev watcher.ChangeEvent) {
	r.metrics.CountEvent(ev.Op.String())
	r.logger.Debug("change event",
		slog.String("path", ev.Path),
		slog.String("op", ev.Op.String()),
		slog.Bool("dir", ev.IsDir))

	switch ev.Op {
	case watcher.OpCreate:
		r.handleCreate(ctx, ev)
	case watcher.OpModify:
		if ev.IsDir || r.filtered.ShouldFilterOut(ev.Path) {
			return
		}
		id := r.ids.ToID(ev.Path)
		if !r.validator.IsValid(ev.Path) {
			// Grown past the size limit or no longer text.
			r.clear(ctx, id, ev.Path)
			return
		}
		r.update(locker.WithOwner(ctx), id, ev.Path)
	case watcher.OpDelete:
		if ev.IsDir {
			if r.registered.IsRegisteredAsRoot(ev.Path) {
				r.filtered.Add(ev.Path)
				r.mu.Lock()
				delete(r.states, ev.Path)
				r.mu.Unlock()
			}
			return
		}
		r.update(locker.WithOwner(ctx), r.ids.ToID(ev.Path), ev.Path)
	}
}

// handleCreate indexes a new path inside a monitored tree, or registers it
// otherwise.
func (r *Registry) handleCreate(ctx context.Context, ev watcher.ChangeEvent) {
	if !r.registered.IsMonitored(ev.Path) {
		r.Register(ctx, ev.Path)
		return
	}
	if r.filtered.ShouldFilterOut(ev.Path) {
		return
	}

	id := r.ids.ToID(ev.Path)
	if !ev.IsDir {
		if r.validator.IsValid(ev.Path) {
			r.update(locker.WithOwner(ctx), id, ev.Path)
		}
		return
	}

	err := r.locks.WithLock(locker.WithOwner(ctx), string(id), func(ctx context.Context) error {
		walk, ok := r.walk(ctx, ev.Path, id)
		if !ok {
			r.markForRemoval(walk.AddedIDs)
			r.canceller.Reset(id)
			return nil
		}
		r.removal.Remove(walk.AddedIDs...)
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to index new directory", fserrors.LogAttrs(err)...)
	}
}

func (r *Registry) clear(ctx context.Context, id fileid.FileID, path string) {
	if err := r.indexer.Clear(locker.WithOwner(ctx), id); err != nil {
		r.logger.Warn("failed to clear file",
			append([]any{slog.String("path", path)}, fserrors.LogAttrs(err)...)...)
	}
}

// State returns the registration state of path.
func (r *Registry) State(path string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[filepath.Clean(path)]
	return st, ok
}

// States returns the registered paths in lexical order with their state.
func (r *Registry) States() ([]string, map[string]State) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.states))
	out := make(map[string]State, len(r.states))
	for p, st := range r.states {
		paths = append(paths, p)
		out[p] = st
	}
	sort.Strings(paths)
	return paths, out
}

func (r *Registry) setState(path string, st State) {
	r.mu.Lock()
	r.states[path] = st
	r.mu.Unlock()
}

// Reset forgets every registration state.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.states = make(map[string]State)
	r.mu.Unlock()
}
