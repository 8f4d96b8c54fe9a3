// Package engine wires the indexing components together and owns their
// lifecycle: it builds the stores from configuration, runs the change-event
// listener and the cleanup sweep, and exposes the operations the daemon
// serves.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/fsindex/internal/config"
	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/index"
	"github.com/Aman-CERP/fsindex/internal/locker"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/registry"
	"github.com/Aman-CERP/fsindex/internal/roots"
	"github.com/Aman-CERP/fsindex/internal/search"
	"github.com/Aman-CERP/fsindex/internal/storage"
	"github.com/Aman-CERP/fsindex/internal/telemetry"
	"github.com/Aman-CERP/fsindex/internal/term"
	"github.com/Aman-CERP/fsindex/internal/tokenizer"
	"github.com/Aman-CERP/fsindex/internal/updater"
	"github.com/Aman-CERP/fsindex/internal/validation"
	"github.com/Aman-CERP/fsindex/internal/watcher"
)

// Engine is the application context. Every store it owns is constructed
// in New and released in Close.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	queries *telemetry.QueryLog

	ids        *fileid.Registry
	locks      *locker.Locker
	registered *roots.Registered
	filtered   *roots.FilteredOut
	canceller  *roots.Canceller
	removal    *roots.RemovalSet
	indices    index.Set
	store      *storage.Cache
	watcher    *watcher.Watcher
	registry   *registry.Registry
	search     *search.Engine

	// resynced carries DELETE events raised by searches that found a file
	// missing. The listener merges them with the watcher's events.
	resynced chan watcher.ChangeEvent

	// resetMu serializes ResetState against itself.
	resetMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	started   time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics makes the engine record into m instead of a private registry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New builds an engine from cfg and starts its background goroutines.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logging.Component(logger, "engine"),
		queries:  telemetry.NewQueryLog(telemetry.DefaultQueryLogConfig()),
		resynced: make(chan watcher.ChangeEvent, cfg.Watcher.EventBuffer),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.NewMetrics()
	}

	e.ids = fileid.NewRegistry()
	e.locks = locker.New()
	e.registered = roots.NewRegistered()
	e.filtered = roots.NewFilteredOut(e.registered)
	e.canceller = roots.NewCanceller(e.ids)
	e.removal = roots.NewRemovalSet()
	e.indices = index.Build(cfg.Indexing.WordIndexEnabled, cfg.Indexing.SentenceIndexEnabled)

	store, err := storage.New(storage.Config{
		Dir:                  cfg.Storage.Dir,
		MemoryEntries:        cfg.Storage.MemoryEntries,
		FilesystemThreshold:  cfg.Storage.FilesystemThreshold,
		CompressionThreshold: cfg.Storage.CompressionThreshold,
	}, logger)
	if err != nil {
		return nil, err
	}
	e.store = store

	validator := validation.New(cfg.Indexing.MaxFileSize, cfg.Indexing.SupportedExtensions)
	w, err := watcher.New(watcher.Config{
		MaxDepth:        cfg.Indexing.MaxDepth,
		Parallelism:     cfg.Indexing.Parallelism,
		ExcludePatterns: cfg.Indexing.ExcludePatterns,
		EventBuffer:     cfg.Watcher.EventBuffer,
	}, e.ids, validator, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	e.watcher = w

	upd := updater.New(updater.Deps{
		IDs:        e.ids,
		Locks:      e.locks,
		Indices:    e.indices,
		Tokenizers: tokenizer.Default(cfg.Indexing.WordIndexEnabled, cfg.Indexing.SentenceIndexEnabled),
		Storage:    store,
		Metrics:    e.metrics,
		Logger:     logger,
	})
	e.registry = registry.New(registry.Deps{
		IDs:        e.ids,
		Locks:      e.locks,
		Validator:  validator,
		Watcher:    w,
		Indexer:    upd,
		Registered: e.registered,
		Filtered:   e.filtered,
		Canceller:  e.canceller,
		Removal:    e.removal,
		Metrics:    e.metrics,
		Logger:     logger,
	})
	e.search = search.New(e.indices, e.ids,
		search.WithReducers(
			search.NewFilePresence(e.resync),
			search.NewFilteredOutFileIDs(e.removal),
			search.NewFilteredOutRoots(e.filtered),
			search.NewSizeBased(cfg.Search.MaxResults),
		),
		search.WithMetrics(e.metrics),
		search.WithQueryLog(e.queries),
		search.WithLogger(logger),
	)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(2)
	go e.listen()
	go e.sweepLoop(cfg.CleanupInterval())

	e.logger.Info("engine started",
		slog.String("storage_dir", cfg.Storage.Dir),
		slog.Int("indices", len(e.indices)),
		slog.Int("parallelism", cfg.Indexing.Parallelism))
	return e, nil
}

// Register indexes path and monitors it for changes.
func (e *Engine) Register(ctx context.Context, path string) registry.Result {
	return e.registry.Register(ctx, path)
}

// Unregister hides path from search results and stops re-indexing it.
func (e *Engine) Unregister(ctx context.Context, path string) registry.UnregistrationResult {
	return e.registry.Unregister(ctx, path)
}

// Search returns the paths of files containing t.
func (e *Engine) Search(ctx context.Context, t term.Term) ([]string, error) {
	return e.search.Search(ctx, t)
}

// CancelIndexing asks a running or upcoming walk of path to stop.
func (e *Engine) CancelIndexing(path string) roots.CancellationResult {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	res := e.canceller.Cancel(path)
	e.logger.Info("cancel indexing", slog.String("path", path), slog.String("result", res.String()))
	return res
}

// ResetState drops every registration, index entry and cached content.
// File ids stay assigned. Not meant to run concurrently with registrations.
func (e *Engine) ResetState() {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()

	e.watcher.Reset()
	e.registered.Reset()
	e.filtered.Reset()
	e.removal.Reset()
	e.canceller.ResetAll()
	e.registry.Reset()
	e.indices.Reset()
	if err := e.store.Reset(); err != nil {
		e.logger.Warn("failed to reset storage", fserrors.LogAttrs(err)...)
	}
	e.queries.Reset()
	e.publishIndexStats()
	e.logger.Info("state reset")
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

// Close stops the background goroutines and releases the watcher and the
// storage directory. Safe to call multiple times.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		var errs []error
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		e.wg.Wait()
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("engine stopped")
	})
	return e.closeErr
}

// resync queues a DELETE for a file a search found missing. It never
// blocks the search; a dropped event is raised again by the next search.
func (e *Engine) resync(ev watcher.ChangeEvent) {
	select {
	case e.resynced <- ev:
	case <-e.ctx.Done():
	default:
		e.logger.Debug("resync queue full", slog.String("path", ev.Path))
	}
}

// listen applies change events one at a time, in arrival order.
func (e *Engine) listen() {
	defer e.wg.Done()
	events := e.watcher.Events()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.registry.HandleEvent(e.ctx, ev)
		case ev := <-e.resynced:
			e.registry.HandleEvent(e.ctx, ev)
		}
	}
}
