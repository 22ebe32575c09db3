package fileindex

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/looter/nuclide/internal/ignore"
)

// errLimit stops a walk once MaxFiles paths are collected.
var errLimit = errors.New("file limit reached")

// walker collects slash-separated paths relative to root into files.
type walker struct {
	root      string
	matcher   *ignore.Matcher
	gitignore bool
	follow    bool
	limit     int
	logger    *slog.Logger

	files     map[string]struct{}
	visited   map[string]struct{}
	truncated bool
}

func newWalker(root string, m *ignore.Matcher, files map[string]struct{}, opts Options, logger *slog.Logger) *walker {
	return &walker{
		root:      root,
		matcher:   m,
		gitignore: opts.RespectGitignore,
		follow:    opts.FollowSymlinks,
		limit:     opts.MaxFiles,
		logger:    logger,
		files:     files,
		visited:   make(map[string]struct{}),
	}
}

// walk adds every file under dir. prefix is dir's path relative to root
// ("" for root itself). Hitting the file limit is not an error.
func (w *walker) walk(ctx context.Context, dir, prefix string) error {
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if _, seen := w.visited[real]; seen {
			return nil
		}
		w.visited[real] = struct{}{}
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == dir {
				return err
			}
			// Unreadable entries are skipped.
			return nil
		}

		sub, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		rel := path.Join(prefix, filepath.ToSlash(sub))
		if rel == "." {
			rel = ""
		}

		if p == dir {
			w.loadGitignore(p, rel)
			return nil
		}

		isDir := d.IsDir()
		isLink := d.Type()&fs.ModeSymlink != 0
		if isLink {
			if !w.follow {
				return nil
			}
			info, err := os.Stat(p)
			if err != nil {
				return nil
			}
			isDir = info.IsDir()
		}

		if w.matcher.Match(rel, isDir) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if isDir {
			if isLink {
				return w.walk(ctx, p, rel)
			}
			w.loadGitignore(p, rel)
			return nil
		}

		w.files[rel] = struct{}{}
		if w.limit > 0 && len(w.files) >= w.limit {
			w.truncated = true
			return errLimit
		}
		return nil
	})

	if errors.Is(err, errLimit) {
		if prefix == "" {
			w.logger.Warn("file index truncated",
				slog.String("root", w.root),
				slog.Int("max_files", w.limit))
		}
		return errLimit
	}
	return err
}

func (w *walker) loadGitignore(dir, base string) {
	if !w.gitignore {
		return
	}
	file := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(file); err != nil {
		return
	}
	if err := w.matcher.AddFromFile(file, base); err != nil {
		w.logger.Warn("failed to read .gitignore",
			slog.String("file", file),
			slog.String("error", err.Error()))
	}
}

// scan walks the whole root with a fresh matcher.
func scan(ctx context.Context, root string, ignoredNames []string, opts Options, logger *slog.Logger) (*ignore.Matcher, map[string]struct{}, bool, error) {
	m := ignore.New(ignoredNames...)
	files := make(map[string]struct{})
	w := newWalker(root, m, files, opts, logger)
	err := w.walk(ctx, root, "")
	if err != nil && !errors.Is(err, errLimit) {
		return nil, nil, false, err
	}
	return m, files, w.truncated, nil
}
