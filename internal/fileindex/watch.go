package fileindex

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/looter/nuclide/internal/watcher"
)

// startWatching registers the tree with a watcher before returning so no
// change after Open is missed. Without a watcher the index stays static.
func (ix *Index) startWatching() {
	w, err := ix.newWatcher()
	if err != nil {
		ix.logger.Warn("file watching unavailable, index will not update",
			slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ix.cancel = cancel
	ix.watchDone = make(chan struct{})
	go ix.runWatch(ctx, w)
}

func (ix *Index) newWatcher() (*watcher.Watcher, error) {
	return watcher.New(ix.root.String(), watcher.Options{
		DebounceWindow: ix.opts.WatchDebounce,
		Skip:           ix.skip,
	})
}

func (ix *Index) skip(rel string, isDir bool) bool {
	return ix.matcher.Load().Match(rel, isDir)
}

// runWatch applies event batches until ctx ends. A .gitignore change or a
// dropped batch replaces the watcher so newly un-ignored directories get
// registered, then rescans.
func (ix *Index) runWatch(ctx context.Context, w *watcher.Watcher) {
	defer close(ix.watchDone)

	for {
		go func() { _ = w.Start(ctx) }()
		rebuild := ix.consume(ctx, w)
		_ = w.Stop()
		if !rebuild || ctx.Err() != nil {
			return
		}

		next, err := ix.newWatcher()
		if err != nil {
			ix.logger.Warn("file watching stopped", slog.String("error", err.Error()))
			next = nil
		}
		if err := ix.Rebuild(ctx); err != nil && !errors.Is(err, context.Canceled) {
			ix.logger.Warn("file index rebuild failed", slog.String("error", err.Error()))
		}
		if next == nil {
			return
		}
		w = next
	}
}

// consume reports true when a rebuild is needed.
func (ix *Index) consume(ctx context.Context, w *watcher.Watcher) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case batch, ok := <-w.Events():
			if !ok {
				return false
			}
			if ix.apply(ctx, batch) {
				return true
			}
		case err, ok := <-w.Errors():
			if !ok {
				return false
			}
			ix.logger.Warn("file watcher error", slog.String("error", err.Error()))
		case <-w.Resync():
			ix.logger.Warn("file watcher dropped events, rescanning",
				slog.Uint64("dropped_batches", w.DroppedBatches()))
			return true
		}
	}
}

// apply updates the path set from one batch. It returns true, without
// applying the rest, when the batch contains a .gitignore change.
func (ix *Index) apply(ctx context.Context, batch []watcher.FileEvent) bool {
	for _, ev := range batch {
		if ev.Operation == watcher.OpIgnoreChange {
			return true
		}
	}

	m := ix.matcher.Load()
	added := make(map[string]struct{})
	var removed []string

	for _, ev := range batch {
		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify:
			if m.Match(ev.Path, ev.IsDir) {
				continue
			}
			abs := filepath.Join(ix.root.String(), filepath.FromSlash(ev.Path))
			if !ix.opts.FollowSymlinks {
				if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
					continue
				}
			}
			if ev.IsDir {
				if ev.Operation != watcher.OpCreate {
					continue
				}
				w := newWalker(ix.root.String(), m, added, ix.opts, ix.logger)
				if err := w.walk(ctx, abs, ev.Path); err != nil && !errors.Is(err, errLimit) {
					ix.logger.Debug("walk new directory failed",
						slog.String("path", ev.Path),
						slog.String("error", err.Error()))
				}
				continue
			}
			added[ev.Path] = struct{}{}
		case watcher.OpDelete, watcher.OpRename:
			removed = append(removed, ev.Path)
			delete(added, ev.Path)
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return false
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.files == nil {
		return false
	}
	for _, p := range removed {
		delete(ix.files, p)
		prefix := p + "/"
		for f := range ix.files {
			if strings.HasPrefix(f, prefix) {
				delete(ix.files, f)
			}
		}
	}
	for p := range added {
		if ix.opts.MaxFiles > 0 && len(ix.files) >= ix.opts.MaxFiles {
			if _, ok := ix.files[p]; !ok {
				ix.truncated = true
				continue
			}
		}
		ix.files[p] = struct{}{}
	}
	ix.invalidateLocked()

	ix.logger.Debug("file index updated",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
		slog.Int("files", len(ix.files)))
	return false
}
