// Package roots tracks which paths the user registered, which ones were
// explicitly unregistered beneath a registered ancestor, which root walks
// were asked to cancel, and which file ids are waiting to be purged.
package roots

import (
	"path/filepath"
	"sort"
	"sync"
)

// ancestors calls fn for path and each of its ancestors, leaf first,
// stopping early when fn returns false.
func ancestors(path string, fn func(p string) bool) {
	p := filepath.Clean(path)
	for {
		if !fn(p) {
			return
		}
		parent := filepath.Dir(p)
		if parent == p {
			return
		}
		p = parent
	}
}

type pathSet struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

func newPathSet() pathSet {
	return pathSet{paths: make(map[string]struct{})}
}

func (s *pathSet) add(path string) {
	s.mu.Lock()
	s.paths[filepath.Clean(path)] = struct{}{}
	s.mu.Unlock()
}

func (s *pathSet) remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := filepath.Clean(path)
	_, ok := s.paths[p]
	delete(s.paths, p)
	return ok
}

func (s *pathSet) contains(path string) bool {
	s.mu.RLock()
	_, ok := s.paths[path]
	s.mu.RUnlock()
	return ok
}

func (s *pathSet) snapshot() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *pathSet) reset() {
	s.mu.Lock()
	s.paths = make(map[string]struct{})
	s.mu.Unlock()
}

// Registered is the set of user-registered root paths.
type Registered struct {
	set pathSet
}

// NewRegistered creates an empty root set.
func NewRegistered() *Registered {
	return &Registered{set: newPathSet()}
}

// Add marks path as a registered root.
func (r *Registered) Add(path string) { r.set.add(path) }

// Remove drops path from the roots, reporting whether it was present.
func (r *Registered) Remove(path string) bool { return r.set.remove(path) }

// IsRegisteredAsRoot is an exact-match lookup.
func (r *Registered) IsRegisteredAsRoot(path string) bool {
	return r.set.contains(filepath.Clean(path))
}

// IsMonitored reports whether path or any of its ancestors is a root.
func (r *Registered) IsMonitored(path string) bool {
	found := false
	ancestors(path, func(p string) bool {
		found = r.set.contains(p)
		return !found
	})
	return found
}

// Snapshot returns the roots in sorted order.
func (r *Registered) Snapshot() []string { return r.set.snapshot() }

// Reset removes every root.
func (r *Registered) Reset() { r.set.reset() }

// FilteredOut is the set of paths the user unregistered while an ancestor
// stayed registered.
type FilteredOut struct {
	set        pathSet
	registered *Registered
}

// NewFilteredOut creates an empty set resolved against registered.
func NewFilteredOut(registered *Registered) *FilteredOut {
	return &FilteredOut{set: newPathSet(), registered: registered}
}

// Add marks path as filtered out.
func (f *FilteredOut) Add(path string) { f.set.add(path) }

// Remove clears the mark on path, reporting whether it was present.
func (f *FilteredOut) Remove(path string) bool { return f.set.remove(path) }

// Contains is an exact-match lookup.
func (f *FilteredOut) Contains(path string) bool { return f.set.contains(filepath.Clean(path)) }

// ShouldFilterOut walks from path towards the filesystem root. The first
// marker met decides: filtered-out yields true, registered root yields
// false. With neither marker the answer is false.
func (f *FilteredOut) ShouldFilterOut(path string) bool {
	result := false
	ancestors(path, func(p string) bool {
		if f.set.contains(p) {
			result = true
			return false
		}
		if f.registered.set.contains(p) {
			return false
		}
		return true
	})
	return result
}

// Snapshot returns the filtered-out paths in sorted order.
func (f *FilteredOut) Snapshot() []string { return f.set.snapshot() }

// Reset removes every mark.
func (f *FilteredOut) Reset() { f.set.reset() }
