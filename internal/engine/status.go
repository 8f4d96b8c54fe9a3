package engine

import (
	"time"

	"github.com/Aman-CERP/fsindex/internal/index"
	"github.com/Aman-CERP/fsindex/internal/registry"
	"github.com/Aman-CERP/fsindex/internal/storage"
	"github.com/Aman-CERP/fsindex/internal/telemetry"
)

// Status is a point-in-time view of the engine.
type Status struct {
	StartedAt      time.Time                 `json:"started_at"`
	Uptime         string                    `json:"uptime"`
	Roots          []string                  `json:"roots"`
	FilteredOut    []string                  `json:"filtered_out"`
	Registrations  map[string]registry.State `json:"registrations"`
	KnownFiles     int                       `json:"known_files"`
	WatchedDirs    int                       `json:"watched_dirs"`
	PendingRemoval int                       `json:"pending_removal"`
	PendingCancels int                       `json:"pending_cancellations"`
	Indices        []index.Stats             `json:"indices"`
	Storage        storage.Stats             `json:"storage"`
	Queries        telemetry.QuerySnapshot   `json:"queries"`
}

// Status reports registrations, index sizes and recent query activity.
func (e *Engine) Status() Status {
	_, states := e.registry.States()
	return Status{
		StartedAt:      e.started,
		Uptime:         time.Since(e.started).Round(time.Second).String(),
		Roots:          e.registered.Snapshot(),
		FilteredOut:    e.filtered.Snapshot(),
		Registrations:  states,
		KnownFiles:     e.ids.Len(),
		WatchedDirs:    e.watcher.WatchedCount(),
		PendingRemoval: e.removal.Len(),
		PendingCancels: e.canceller.Pending(),
		Indices:        e.indices.Stats(),
		Storage:        e.store.Stats(),
		Queries:        e.queries.Snapshot(10),
	}
}
