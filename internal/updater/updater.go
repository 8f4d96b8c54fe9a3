// Package updater re-indexes one file: it diffs the terms last indexed for
// the file against the terms of its current content and feeds the
// difference to the indices.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/fsindex/internal/diff"
	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/index"
	"github.com/Aman-CERP/fsindex/internal/locker"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/storage"
	"github.com/Aman-CERP/fsindex/internal/telemetry"
	"github.com/Aman-CERP/fsindex/internal/tokenizer"
)

// Updater runs the file update pipeline.
type Updater struct {
	ids        *fileid.Registry
	locks      *locker.Locker
	indices    index.Set
	tokenizers []tokenizer.Tokenizer
	store      storage.Storage
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// Deps are the collaborators of an Updater.
type Deps struct {
	IDs        *fileid.Registry
	Locks      *locker.Locker
	Indices    index.Set
	Tokenizers []tokenizer.Tokenizer
	Storage    storage.Storage
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
}

// New creates an Updater.
func New(d Deps) *Updater {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Updater{
		ids:        d.IDs,
		locks:      d.Locks,
		indices:    d.Indices,
		tokenizers: d.Tokenizers,
		store:      d.Storage,
		metrics:    d.Metrics,
		logger:     logging.Component(logger, "updater"),
	}
}

// Update brings the indices in line with the current content of id's file.
// A file that no longer exists is indexed as empty, which removes every
// term it contributed.
func (u *Updater) Update(ctx context.Context, id fileid.FileID) error {
	return u.run(ctx, id, readContent)
}

// Clear indexes id's file as empty whatever is on disk. Unregistered files
// go through here so their terms stop matching.
func (u *Updater) Clear(ctx context.Context, id fileid.FileID) error {
	return u.run(ctx, id, func(string) (string, error) { return "", nil })
}

func (u *Updater) run(ctx context.Context, id fileid.FileID, read func(path string) (string, error)) (err error) {
	start := time.Now()
	defer func() { u.metrics.ObserveUpdate(start, err) }()

	path, err := u.ids.ToPath(id)
	if err != nil {
		return err
	}

	return u.locks.WithLock(ctx, string(id), func(ctx context.Context) error {
		previous, cacheErr := u.store.Get(id)
		if cacheErr != nil {
			// The forward index still holds the last terms; only the fast
			// path is lost.
			u.logger.Warn("failed to read cached content",
				append([]any{slog.String("path", path)}, fserrors.LogAttrs(cacheErr)...)...)
		}

		current, err := read(path)
		if err != nil {
			return fserrors.New(fserrors.ErrCodeIndexFailed, "failed to read file", err).
				WithDetail("path", path)
		}

		if cacheErr == nil && xxhash.Sum64String(previous) == xxhash.Sum64String(current) && u.upToDate(id, current) {
			u.logger.Debug("content unchanged", slog.String("path", path))
			return nil
		}

		changed := 0
		for _, tok := range u.tokenizers {
			terms := tok.Tokenize(current)
			for _, idx := range u.indices.For(tok.Kind()) {
				results := diff.Calculate(idx.FindByDocID(id), terms)
				for _, in := range index.FromDiff(id, results) {
					idx.Update(in)
				}
				idx.ReplaceForward(id, terms)
				changed += len(results)
			}
		}
		u.logger.Debug("file indexed",
			slog.String("path", path),
			slog.Int("changed_terms", changed),
			slog.Int("bytes", len(current)))

		if err := u.store.Put(id, current); err != nil {
			return fmt.Errorf("cache content for %s: %w", path, err)
		}
		return nil
	})
}

// upToDate reports whether the forward entries agree with content being
// indexed already: present for non-empty content, absent for empty content.
func (u *Updater) upToDate(id fileid.FileID, content string) bool {
	for _, idx := range u.indices {
		if (len(idx.FindByDocID(id)) == 0) != (content == "") {
			return false
		}
	}
	return true
}

// readContent returns "" for a file that does not exist.
func readContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
