// Package search answers term queries against the inverted indices and
// narrows the matches through an ordered chain of reducers.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/index"
	"github.com/Aman-CERP/fsindex/internal/logging"
	"github.com/Aman-CERP/fsindex/internal/telemetry"
	"github.com/Aman-CERP/fsindex/internal/term"
)

// Mapper resolves file ids to paths.
type Mapper interface {
	ToPath(id fileid.FileID) (string, error)
}

// Engine runs searches.
type Engine struct {
	indices  index.Set
	mapper   Mapper
	reducers []Reducer
	metrics  *telemetry.Metrics
	queries  *telemetry.QueryLog
	logger   *slog.Logger
}

// Option configures the search engine.
type Option func(*Engine)

// WithReducers sets the reducer chain. Reducers run in the given order.
func WithReducers(r ...Reducer) Option {
	return func(e *Engine) {
		e.reducers = r
	}
}

// WithMetrics records latency and result counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithQueryLog records each search in q.
func WithQueryLog(q *telemetry.QueryLog) Option {
	return func(e *Engine) {
		e.queries = q
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = logging.Component(l, "search")
		}
	}
}

// New creates a search engine over indices. mapper may be nil, in which
// case every non-empty search fails with ERR_509_NO_MAPPER.
func New(indices index.Set, mapper Mapper, opts ...Option) *Engine {
	e := &Engine{
		indices: indices,
		mapper:  mapper,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the paths of files containing t, best match first.
// Blank terms return no results.
func (e *Engine) Search(ctx context.Context, t term.Term) ([]string, error) {
	start := time.Now()
	if strings.TrimSpace(t.Text) == "" {
		return nil, nil
	}

	candidates, err := e.collect(t)
	if err != nil {
		return nil, err
	}
	found := len(candidates)

	for _, r := range e.reducers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s, ok := r.(Selective); ok && !s.CanExecute(t) {
			continue
		}
		candidates = r.Reduce(ctx, candidates)
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}

	kind := t.Kind.String()
	e.metrics.ObserveSearch(kind, start, len(paths))
	e.queries.Record(telemetry.QueryEvent{
		Kind:    kind,
		Text:    t.Text,
		Results: len(paths),
		Latency: time.Since(start),
	})
	e.logger.Debug("search",
		slog.String("kind", kind),
		slog.String("text", t.Text),
		slog.Int("found", found),
		slog.Int("results", len(paths)),
		slog.Duration("took", time.Since(start)))
	return paths, nil
}

// collect merges the matches of every index able to run t and resolves
// each id to its path.
func (e *Engine) collect(t term.Term) ([]Candidate, error) {
	counts := make(map[fileid.FileID]int)
	for _, idx := range e.indices.Executing(t) {
		for _, m := range idx.Find(t) {
			counts[m.FileID] += m.Count
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}
	if e.mapper == nil {
		return nil, fserrors.New(fserrors.ErrCodeNoMapper, "no mapper available for search results", nil)
	}

	out := make([]Candidate, 0, len(counts))
	for id, n := range counts {
		path, err := e.mapper.ToPath(id)
		if err != nil {
			return nil, fserrors.New(fserrors.ErrCodeNoMapper, "failed to map search result", err).
				WithDetail("file_id", string(id))
		}
		out = append(out, Candidate{ID: id, Path: path, Count: n})
	}
	// Deterministic input for the reducers.
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
