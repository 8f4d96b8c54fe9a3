package roots

import (
	"sync"

	"github.com/Aman-CERP/fsindex/internal/fileid"
)

// RemovalSet holds file ids whose index entries must be purged by the
// periodic cleanup sweep, typically files indexed by a walk that was then
// cancelled. Search results drop these ids until the sweep runs.
type RemovalSet struct {
	mu  sync.RWMutex
	ids map[fileid.FileID]struct{}
}

// NewRemovalSet creates an empty set.
func NewRemovalSet() *RemovalSet {
	return &RemovalSet{ids: make(map[fileid.FileID]struct{})}
}

// Add schedules ids for removal.
func (s *RemovalSet) Add(ids ...fileid.FileID) {
	s.mu.Lock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()
}

// Remove unschedules ids, used when a later registration indexes them again.
func (s *RemovalSet) Remove(ids ...fileid.FileID) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.ids, id)
	}
	s.mu.Unlock()
}

// Contains reports whether id is scheduled.
func (s *RemovalSet) Contains(id fileid.FileID) bool {
	s.mu.RLock()
	_, ok := s.ids[id]
	s.mu.RUnlock()
	return ok
}

// Snapshot returns the scheduled ids without removing them.
func (s *RemovalSet) Snapshot() []fileid.FileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fileid.FileID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Len returns the number of scheduled ids.
func (s *RemovalSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Reset unschedules everything.
func (s *RemovalSet) Reset() {
	s.mu.Lock()
	s.ids = make(map[fileid.FileID]struct{})
	s.mu.Unlock()
}
