package watcher

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// publish drains fsnotify until Close. Events are forwarded in arrival
// order; a full Events channel applies backpressure instead of dropping.
func (w *Watcher) publish() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			change, ok := w.convert(ev)
			if !ok {
				continue
			}
			select {
			case w.events <- change:
			case <-w.stopCh:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Error("filesystem event queue overflowed, changes may be missed")
				continue
			}
			w.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))
		}
	}
}

// convert maps an fsnotify event to a ChangeEvent. Chmod events and events
// outside a partial watch's file set are dropped. A rename reports the old
// name as deleted; the new name arrives separately as a create.
func (w *Watcher) convert(ev fsnotify.Event) (ChangeEvent, bool) {
	if !w.passesFilter(ev.Name) {
		return ChangeEvent{}, false
	}

	change := ChangeEvent{Path: ev.Name, Time: time.Now()}
	switch {
	case ev.Has(fsnotify.Create):
		change.Op = OpCreate
		if info, err := os.Stat(ev.Name); err == nil {
			change.IsDir = info.IsDir()
		}
	case ev.Has(fsnotify.Write):
		change.Op = OpModify
		if info, err := os.Stat(ev.Name); err == nil {
			change.IsDir = info.IsDir()
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		change.Op = OpDelete
		change.IsDir = w.forget(ev.Name)
	default:
		return ChangeEvent{}, false
	}
	return change, true
}

// forget drops bookkeeping for a removed path and reports whether it was a
// watched directory. The kernel has already released its watch.
func (w *Watcher) forget(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, wasDir := w.watched[path]
	if wasDir {
		_ = w.fsw.Remove(path)
		delete(w.watched, path)
		delete(w.filtered, path)
	}
	return wasDir
}
