// Package fileid maps absolute paths to opaque, process-stable identifiers.
package fileid

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
)

// FileID is an opaque identifier for a path. It is a random UUID, so its
// length does not depend on the path and it is safe as a file name.
type FileID string

func (id FileID) String() string { return string(id) }

// ErrUnknownID is returned by ToPath for ids this registry never issued.
var ErrUnknownID = fserrors.New(fserrors.ErrCodeUnknownID, "unknown file id", nil)

// Registry is a bidirectional, memoized path <-> FileID mapping.
// Once issued, an id is never reassigned while the process runs.
type Registry struct {
	mu     sync.RWMutex
	byPath map[string]FileID
	byID   map[FileID]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string]FileID),
		byID:   make(map[FileID]string),
	}
}

// ToID returns the id for path, issuing one on first use. Concurrent first
// callers for the same path all observe the id stored by the winner.
func (r *Registry) ToID(path string) FileID {
	r.mu.RLock()
	id, ok := r.byPath[path]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPath[path]; ok {
		return id
	}
	id = FileID(uuid.NewString())
	r.byPath[path] = id
	r.byID[id] = path
	return id
}

// ToPath resolves an id issued by ToID.
func (r *Registry) ToPath(id FileID) (string, error) {
	r.mu.RLock()
	path, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return "", fserrors.New(fserrors.ErrCodeUnknownID, fmt.Sprintf("unknown file id %s", id), nil)
	}
	return path, nil
}

// Len returns the number of issued ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
