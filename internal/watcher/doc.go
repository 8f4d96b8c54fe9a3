// Package watcher attaches filesystem watches to registered paths and
// turns OS notifications into ordered change events.
//
// Directory registrations walk the tree once, attaching an fsnotify watch
// to every directory and scheduling an index run for every valid file on
// a bounded worker pool. File registrations attach a partial watch to the
// parent directory that only reports events for the registered files.
//
// A single publisher goroutine drains fsnotify and emits ChangeEvents on
// one channel:
//
//	w, err := watcher.New(cfg, ids, validator, logger)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	go func() {
//	    for ev := range w.Events() {
//	        switch ev.Op {
//	        case watcher.OpCreate:
//	            // register the new path
//	        case watcher.OpModify:
//	            // re-index the file
//	        case watcher.OpDelete:
//	            // re-index as empty
//	        }
//	    }
//	}()
//
//	walk, err := w.AttachToRootAndIndex(ctx, "/path/to/dir", indexFn)
package watcher
