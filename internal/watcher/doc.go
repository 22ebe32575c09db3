// Package watcher streams debounced filesystem changes under a root.
//
// A Watcher registers every directory below the root with fsnotify, adds
// directories as they appear, and coalesces bursts of events (editors
// saving through temp files, git checkouts) in a Debouncer before emitting
// them as batches:
//
//	w, err := watcher.New(root, watcher.Options{Skip: matcher.Match})
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx) }()
//	defer w.Stop()
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // apply ev.Operation to ev.Path
//	    }
//	}
package watcher
