package engine

import (
	"context"
	"log/slog"
	"time"

	fserrors "github.com/Aman-CERP/fsindex/internal/errors"
	"github.com/Aman-CERP/fsindex/internal/locker"
)

func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Sweep purges the file ids left behind by cancelled registrations from
// the indices and the content cache. It returns the number purged. An id
// claimed by a later registration in the meantime is kept.
func (e *Engine) Sweep() int {
	pending := e.removal.Snapshot()
	removed := 0
	for _, id := range pending {
		err := e.locks.WithLock(locker.WithOwner(e.ctx), string(id), func(context.Context) error {
			if !e.removal.Contains(id) {
				return nil
			}
			e.indices.Remove(id)
			if err := e.store.Delete(id); err != nil {
				e.logger.Warn("failed to drop cached content",
					append([]any{slog.String("file_id", string(id))}, fserrors.LogAttrs(err)...)...)
			}
			e.removal.Remove(id)
			removed++
			return nil
		})
		if err != nil {
			// Shutting down.
			break
		}
	}

	if removed > 0 {
		e.metrics.CountCleanup(removed)
		e.logger.Debug("cleanup sweep", slog.Int("removed", removed), slog.Int("pending", e.removal.Len()))
	}
	e.publishIndexStats()
	return removed
}

func (e *Engine) publishIndexStats() {
	for _, st := range e.indices.Stats() {
		e.metrics.SetIndexTerms(st.Name, st.Terms)
	}
}
