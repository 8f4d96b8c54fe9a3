// Package index implements the concurrent inverted index.
//
// Each index keeps two maps: the reverse index (term -> file -> count),
// updated by additive merges, and the forward index (file -> term ->
// count), replaced wholesale after each re-tokenization. Updates for
// different terms or files commute, so writers never need a global lock.
package index

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/fsindex/internal/diff"
	"github.com/Aman-CERP/fsindex/internal/fileid"
	"github.com/Aman-CERP/fsindex/internal/term"
)

const shardCount = 32

// Match is one file containing a term.
type Match struct {
	FileID fileid.FileID
	Count  int
}

// UpdateInput is the unit of work applied to an index.
type UpdateInput struct {
	Term      term.Term
	Operation diff.Operation
	FileID    fileid.FileID
	Count     int
}

// Delta returns the signed count change.
func (u UpdateInput) Delta() int { return u.Operation.Sign() * u.Count }

// FromDiff converts diff results for id into update inputs.
func FromDiff(id fileid.FileID, results []diff.Result) []UpdateInput {
	out := make([]UpdateInput, 0, len(results))
	for _, r := range results {
		out = append(out, UpdateInput{Term: r.Token, Operation: r.Operation, FileID: id, Count: r.Count})
	}
	return out
}

// Stats summarizes index size.
type Stats struct {
	Name  string `json:"name"`
	Terms int    `json:"terms"`
	Files int    `json:"files"`
}

// Index is a term index participating in updates and searches for the
// term kinds it accepts.
type Index interface {
	// Name identifies the index in logs and status output.
	Name() string
	// CanExecute reports whether t belongs in this index.
	CanExecute(t term.Term) bool
	// Accepts reports whether terms of kind k belong in this index.
	Accepts(k term.Kind) bool
	// Find returns files with a positive count for t, ordered by file id.
	Find(t term.Term) []Match
	// FindByDocID returns a copy of the forward entry for id.
	FindByDocID(id fileid.FileID) term.Counts
	// Update merges in.Delta() into the reverse entry.
	Update(in UpdateInput)
	// ReplaceForward replaces the forward entry for id.
	ReplaceForward(id fileid.FileID, terms term.Counts)
	// Remove purges id from both maps.
	Remove(id fileid.FileID)
	// Reset clears both maps. Not safe to call concurrently with traffic.
	Reset()
	// Stats returns term and file counts.
	Stats() Stats
}

type shard struct {
	mu      sync.RWMutex
	entries map[term.Term]map[fileid.FileID]int
}

// Inverted is the in-memory Index implementation, restricted to one term kind.
type Inverted struct {
	name   string
	kind   term.Kind
	shards [shardCount]shard

	fwdMu   sync.RWMutex
	forward map[fileid.FileID]term.Counts
}

var _ Index = (*Inverted)(nil)

// New creates an index accepting terms of kind.
func New(name string, kind term.Kind) *Inverted {
	idx := &Inverted{name: name, kind: kind}
	idx.Reset()
	return idx
}

// NewWordIndex creates the index for Word terms.
func NewWordIndex() *Inverted { return New("word", term.KindWord) }

// NewSentenceIndex creates the index for Sentence terms.
func NewSentenceIndex() *Inverted { return New("sentence", term.KindSentence) }

func (idx *Inverted) Name() string { return idx.name }

func (idx *Inverted) CanExecute(t term.Term) bool { return t.Kind == idx.kind }

func (idx *Inverted) Accepts(k term.Kind) bool { return k == idx.kind }

func (idx *Inverted) shardFor(t term.Term) *shard {
	return &idx.shards[xxhash.Sum64String(t.Text)%shardCount]
}

// Find snapshots the reverse entry and then drops non-positive counts, so
// a decrement landing mid-read cannot hide other files.
func (idx *Inverted) Find(t term.Term) []Match {
	s := idx.shardFor(t)

	s.mu.RLock()
	entry := s.entries[t]
	snapshot := make([]Match, 0, len(entry))
	for id, count := range entry {
		snapshot = append(snapshot, Match{FileID: id, Count: count})
	}
	s.mu.RUnlock()

	out := snapshot[:0]
	for _, m := range snapshot {
		if m.Count > 0 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

func (idx *Inverted) FindByDocID(id fileid.FileID) term.Counts {
	idx.fwdMu.RLock()
	defer idx.fwdMu.RUnlock()
	return idx.forward[id].Clone()
}

// Update adds in.Delta() to reverse[term][file], treating an absent entry
// as zero. Entries that net to exactly zero are dropped; negative
// intermediate values are kept so merges stay order-independent.
func (idx *Inverted) Update(in UpdateInput) {
	if in.Count == 0 {
		return
	}
	s := idx.shardFor(in.Term)

	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.entries[in.Term]
	if !ok {
		files = make(map[fileid.FileID]int)
		s.entries[in.Term] = files
	}
	files[in.FileID] += in.Delta()
	if files[in.FileID] == 0 {
		delete(files, in.FileID)
		if len(files) == 0 {
			delete(s.entries, in.Term)
		}
	}
}

func (idx *Inverted) ReplaceForward(id fileid.FileID, terms term.Counts) {
	idx.fwdMu.Lock()
	defer idx.fwdMu.Unlock()
	if len(terms) == 0 {
		delete(idx.forward, id)
		return
	}
	idx.forward[id] = terms.Clone()
}

// Remove purges id. Reverse entries are located through the forward entry.
func (idx *Inverted) Remove(id fileid.FileID) {
	idx.fwdMu.Lock()
	terms := idx.forward[id]
	delete(idx.forward, id)
	idx.fwdMu.Unlock()

	for t := range terms {
		s := idx.shardFor(t)
		s.mu.Lock()
		if files, ok := s.entries[t]; ok {
			delete(files, id)
			if len(files) == 0 {
				delete(s.entries, t)
			}
		}
		s.mu.Unlock()
	}
}

func (idx *Inverted) Reset() {
	for i := range idx.shards {
		idx.shards[i].mu.Lock()
		idx.shards[i].entries = make(map[term.Term]map[fileid.FileID]int)
		idx.shards[i].mu.Unlock()
	}
	idx.fwdMu.Lock()
	idx.forward = make(map[fileid.FileID]term.Counts)
	idx.fwdMu.Unlock()
}

func (idx *Inverted) Stats() Stats {
	st := Stats{Name: idx.name}
	for i := range idx.shards {
		idx.shards[i].mu.RLock()
		st.Terms += len(idx.shards[i].entries)
		idx.shards[i].mu.RUnlock()
	}
	idx.fwdMu.RLock()
	st.Files = len(idx.forward)
	idx.fwdMu.RUnlock()
	return st
}

// Set is the statically known list of indices consulted by the update and
// search pipelines.
type Set []Index

// For returns the indices accepting kind.
func (s Set) For(kind term.Kind) Set {
	var out Set
	for _, idx := range s {
		if idx.Accepts(kind) {
			out = append(out, idx)
		}
	}
	return out
}

// Executing returns the indices whose CanExecute accepts t.
func (s Set) Executing(t term.Term) Set {
	var out Set
	for _, idx := range s {
		if idx.CanExecute(t) {
			out = append(out, idx)
		}
	}
	return out
}

// Remove purges id from every index.
func (s Set) Remove(id fileid.FileID) {
	for _, idx := range s {
		idx.Remove(id)
	}
}

// Reset clears every index.
func (s Set) Reset() {
	for _, idx := range s {
		idx.Reset()
	}
}

// Stats collects per-index stats.
func (s Set) Stats() []Stats {
	out := make([]Stats, 0, len(s))
	for _, idx := range s {
		out = append(out, idx.Stats())
	}
	return out
}

// Build returns the indices enabled by the two flags.
func Build(words, sentences bool) Set {
	var out Set
	if words {
		out = append(out, NewWordIndex())
	}
	if sentences {
		out = append(out, NewSentenceIndex())
	}
	return out
}
