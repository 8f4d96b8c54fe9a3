package search

import (
	"container/heap"
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/term"
	"github.com/Aman-CERP/fsindex/internal/watcher"
)

// Candidate is one file matching a term, with its merged occurrence count.
type Candidate struct {
	ID    fileid.FileID
	Path  string
	Count int
}

// Reducer narrows or reorders the candidates of a search.
type Reducer interface {
	Name() string
	Reduce(ctx context.Context, in []Candidate) []Candidate
}

// Selective is implemented by reducers that only apply to some terms.
type Selective interface {
	CanExecute(t term.Term) bool
}

// IDSet answers membership for file ids.
type IDSet interface {
	Contains(id fileid.FileID) bool
}

// PathFilter decides whether a path is hidden from results.
type PathFilter interface {
	ShouldFilterOut(path string) bool
}

// filter keeps the candidates for which keep returns true, reusing in.
func filter(in []Candidate, keep func(Candidate) bool) []Candidate {
	out := in[:0]
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// FilePresence drops files that no longer exist and reports each one as a
// DELETE change so its terms get purged.
type FilePresence struct {
	publish func(watcher.ChangeEvent)
}

// NewFilePresence creates the reducer. publish may be nil.
func NewFilePresence(publish func(watcher.ChangeEvent)) *FilePresence {
	return &FilePresence{publish: publish}
}

func (*FilePresence) Name() string { return "file_presence" }

func (r *FilePresence) Reduce(_ context.Context, in []Candidate) []Candidate {
	return filter(in, func(c Candidate) bool {
		_, err := os.Stat(c.Path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return true
		}
		if r.publish != nil {
			r.publish(watcher.ChangeEvent{Path: c.Path, Op: watcher.OpDelete, Time: time.Now()})
		}
		return false
	})
}

// FilteredOutFileIDs drops ids held by any of the given sets.
type FilteredOutFileIDs struct {
	sets []IDSet
}

// NewFilteredOutFileIDs creates the reducer.
func NewFilteredOutFileIDs(sets ...IDSet) *FilteredOutFileIDs {
	return &FilteredOutFileIDs{sets: sets}
}

func (*FilteredOutFileIDs) Name() string { return "filtered_out_file_ids" }

func (r *FilteredOutFileIDs) Reduce(_ context.Context, in []Candidate) []Candidate {
	return filter(in, func(c Candidate) bool {
		for _, s := range r.sets {
			if s.Contains(c.ID) {
				return false
			}
		}
		return true
	})
}

// FilteredOutRoots drops paths under an unregistered root.
type FilteredOutRoots struct {
	filter PathFilter
}

// NewFilteredOutRoots creates the reducer.
func NewFilteredOutRoots(f PathFilter) *FilteredOutRoots {
	return &FilteredOutRoots{filter: f}
}

func (*FilteredOutRoots) Name() string { return "filtered_out_roots" }

func (r *FilteredOutRoots) Reduce(_ context.Context, in []Candidate) []Candidate {
	return filter(in, func(c Candidate) bool { return !r.filter.ShouldFilterOut(c.Path) })
}

// SizeBased keeps the k candidates with the highest counts, ordered by
// count descending and then path ascending. k <= 0 keeps everything.
type SizeBased struct {
	k int
}

// NewSizeBased creates the reducer.
func NewSizeBased(k int) *SizeBased {
	return &SizeBased{k: k}
}

func (*SizeBased) Name() string { return "size_based" }

func (r *SizeBased) Reduce(_ context.Context, in []Candidate) []Candidate {
	if r.k <= 0 || len(in) <= r.k {
		sort.Slice(in, func(i, j int) bool { return better(in[i], in[j]) })
		return in
	}

	// Min-heap with the weakest kept candidate on top.
	h := make(weakestFirst, 0, r.k+1)
	for _, c := range in {
		heap.Push(&h, c)
		if h.Len() > r.k {
			heap.Pop(&h)
		}
	}
	out := []Candidate(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// better reports whether a ranks before b.
func better(a, b Candidate) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Path < b.Path
}

type weakestFirst []Candidate

func (h weakestFirst) Len() int           { return len(h) }
func (h weakestFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h weakestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *weakestFirst) Push(x any) { *h = append(*h, x.(Candidate)) }

func (h *weakestFirst) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
