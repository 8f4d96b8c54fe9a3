package roots

import (
	"context"
	"fmt"
	"sync"

	"github.com/Aman-CERP/fsindex/internal/fileid"
)

// CancellationResult is the outcome of a cancellation request.
type CancellationResult int

const (
	// IndexingCancellationSuccessful means the request was recorded.
	IndexingCancellationSuccessful CancellationResult = iota + 1
	// IndexingAlreadyCancelled means a request for the path is still pending.
	IndexingAlreadyCancelled
)

func (r CancellationResult) String() string {
	switch r {
	case IndexingCancellationSuccessful:
		return "indexing_cancellation_successful"
	case IndexingAlreadyCancelled:
		return "indexing_already_cancelled"
	default:
		return "unknown"
	}
}

// Message renders the user-facing text for path.
func (r CancellationResult) Message(path string) string {
	switch r {
	case IndexingCancellationSuccessful:
		return fmt.Sprintf("Successfully requested cancellation for path: %s", path)
	case IndexingAlreadyCancelled:
		return fmt.Sprintf("Path %s has been already requested index cancellation", path)
	default:
		return path
	}
}

// Canceller records cancellation requests per root id and hands out
// cancellation tokens to the walks indexing those roots. A request stays
// pending until Reset is called for the id, which the registration facade
// does once it has torn down the cancelled registration.
type Canceller struct {
	ids *fileid.Registry

	mu        sync.Mutex
	seq       uint64
	cancelled map[fileid.FileID]struct{}
	active    map[fileid.FileID]map[uint64]context.CancelFunc
}

// NewCanceller creates a Canceller resolving paths through ids.
func NewCanceller(ids *fileid.Registry) *Canceller {
	return &Canceller{
		ids:       ids,
		cancelled: make(map[fileid.FileID]struct{}),
		active:    make(map[fileid.FileID]map[uint64]context.CancelFunc),
	}
}

// Cancel requests cancellation of indexing rooted at path.
func (c *Canceller) Cancel(path string) CancellationResult {
	id := c.ids.ToID(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cancelled[id]; ok {
		return IndexingAlreadyCancelled
	}
	c.cancelled[id] = struct{}{}
	for _, cancel := range c.active[id] {
		cancel()
	}
	return IndexingCancellationSuccessful
}

// IsCancelled reports whether a request for id is pending.
func (c *Canceller) IsCancelled(id fileid.FileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cancelled[id]
	return ok
}

// Token derives a context from parent that is cancelled when Cancel is
// called for id. It is already cancelled if a request is pending. The
// returned release func must be called once the walk is done.
func (c *Canceller) Token(parent context.Context, id fileid.FileID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cancelled[id]; ok {
		cancel()
		return ctx, func() {}
	}

	c.seq++
	slot := c.seq
	if c.active[id] == nil {
		c.active[id] = make(map[uint64]context.CancelFunc)
	}
	c.active[id][slot] = cancel

	release := func() {
		c.mu.Lock()
		delete(c.active[id], slot)
		if len(c.active[id]) == 0 {
			delete(c.active, id)
		}
		c.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Reset clears the pending request for id.
func (c *Canceller) Reset(id fileid.FileID) {
	c.mu.Lock()
	delete(c.cancelled, id)
	c.mu.Unlock()
}

// ResetAll clears every pending request.
func (c *Canceller) ResetAll() {
	c.mu.Lock()
	c.cancelled = make(map[fileid.FileID]struct{})
	c.mu.Unlock()
}

// Pending returns the number of pending requests.
func (c *Canceller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancelled)
}
