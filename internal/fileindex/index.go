package fileindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	fserrors "github.com/looter/nuclide/internal/errors"
	"github.com/looter/nuclide/internal/ignore"
	"github.com/looter/nuclide/internal/search"
)

// ErrClosed is returned by Query after Dispose.
var ErrClosed = errors.New("file index closed")

const queryCacheSize = 64

// Options configures an Index.
type Options struct {
	// Watch keeps the index current from filesystem notifications.
	Watch bool

	// WatchDebounce is the quiet period before a batch of changes is applied.
	WatchDebounce time.Duration

	// RespectGitignore applies .gitignore files found while walking.
	RespectGitignore bool

	// FollowSymlinks descends into symlinked directories and indexes
	// symlinked files. Cycles are walked once.
	FollowSymlinks bool

	// MaxFiles stops indexing after this many files. 0 means no limit.
	MaxFiles int

	// MaxResults caps a query's results. 0 means no limit.
	MaxResults int

	Logger *slog.Logger
}

// DefaultOptions returns options matching the default user configuration.
func DefaultOptions() Options {
	return Options{
		Watch:            true,
		WatchDebounce:    100 * time.Millisecond,
		RespectGitignore: true,
		MaxFiles:         200000,
		MaxResults:       50,
	}
}

type cacheKey struct {
	query         string
	prefix        string
	caseSensitive bool
}

// Index is an in-memory file path index for one root. It implements
// search.Backend.
type Index struct {
	root         search.Directory
	ignoredNames []string
	opts         Options
	logger       *slog.Logger

	matcher atomic.Pointer[ignore.Matcher]

	mu        sync.RWMutex
	files     map[string]struct{}
	sorted    []string
	truncated bool
	// gen counts changes so a query never caches results from an older set.
	gen uint64

	cache *lru.Cache[cacheKey, []search.Result]

	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	watchDone chan struct{}
}

var _ search.Backend = (*Index)(nil)

// Open walks root and returns a ready index. A missing root, or one that is
// not a directory, fails with a directory-not-found error.
func Open(ctx context.Context, root search.Directory, ignoredNames []string, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("root", root.String()))

	info, err := os.Stat(root.String())
	if err != nil || !info.IsDir() {
		return nil, fserrors.DirectoryNotFoundError(root.String())
	}

	cache, err := lru.New[cacheKey, []search.Result](queryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	ix := &Index{
		root:         root,
		ignoredNames: slices.Clone(ignoredNames),
		opts:         opts,
		logger:       logger,
		cache:        cache,
	}

	start := time.Now()
	m, files, truncated, err := scan(ctx, root.String(), ix.ignoredNames, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	ix.matcher.Store(m)
	ix.files = files
	ix.truncated = truncated

	logger.Info("file index built",
		slog.Int("files", len(files)),
		slog.Bool("truncated", truncated),
		slog.Duration("duration", time.Since(start)))

	if opts.Watch {
		ix.startWatching()
	}
	return ix, nil
}

// Factory adapts Open to search.BackendFactory.
func Factory(opts Options) search.BackendFactory {
	return func(ctx context.Context, dir search.Directory, ignoredNames []string) (search.Backend, error) {
		return Open(ctx, dir, ignoredNames, opts)
	}
}

// Root returns the indexed directory.
func (ix *Index) Root() search.Directory { return ix.root }

// Len returns the number of indexed files.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.files)
}

// Truncated reports whether the last scan stopped at MaxFiles.
func (ix *Index) Truncated() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.truncated
}

// Contains reports whether rel (slash-separated, relative to the root) is indexed.
func (ix *Index) Contains(rel string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.files[rel]
	return ok
}

// Query fuzzy matches query against every indexed path.
func (ix *Index) Query(ctx context.Context, query string, opts search.QueryOptions) ([]search.Result, error) {
	if ix.closed.Load() {
		return nil, ErrClosed
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []search.Result{}, nil
	}

	prefix, err := ix.queryPrefix(opts.QueryRoot)
	if err != nil {
		return nil, err
	}
	caseSensitive := opts.SmartCase && hasUpper(query)

	key := cacheKey{query: query, prefix: prefix, caseSensitive: caseSensitive}
	if cached, ok := ix.cache.Get(key); ok {
		return slices.Clone(cached), nil
	}

	m := newMatcher(query, caseSensitive)
	paths, gen := ix.snapshot()
	results := make([]search.Result, 0)
	for i, p := range paths {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		idx, score, ok := m.match(p)
		if !ok {
			continue
		}
		results = append(results, search.Result{
			Path:         p,
			Score:        float64(score),
			MatchIndexes: idx,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Path < results[j].Path
	})
	if ix.opts.MaxResults > 0 && len(results) > ix.opts.MaxResults {
		results = results[:ix.opts.MaxResults]
	}

	ix.mu.RLock()
	if ix.gen == gen {
		ix.cache.Add(key, results)
	}
	ix.mu.RUnlock()
	return slices.Clone(results), nil
}

// queryPrefix turns a query root into a slash-separated path prefix ending
// in "/", or "" for the whole tree.
func (ix *Index) queryPrefix(queryRoot string) (string, error) {
	if queryRoot == "" {
		return "", nil
	}
	rel := queryRoot
	if filepath.IsAbs(queryRoot) {
		r, err := filepath.Rel(ix.root.String(), queryRoot)
		if err != nil {
			return "", fserrors.ValidationError("query root "+queryRoot+" is not under "+ix.root.String(), err)
		}
		rel = r
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fserrors.ValidationError("query root "+queryRoot+" is not under "+ix.root.String(), nil)
	}
	if rel == "." {
		return "", nil
	}
	return rel + "/", nil
}

// snapshot returns the sorted path list. The slice is never mutated; a
// change to the index replaces it.
func (ix *Index) snapshot() ([]string, uint64) {
	ix.mu.RLock()
	s, gen := ix.sorted, ix.gen
	ix.mu.RUnlock()
	if s != nil {
		return s, gen
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.sorted == nil {
		ix.sorted = slices.Sorted(maps.Keys(ix.files))
		if ix.sorted == nil {
			ix.sorted = []string{}
		}
	}
	return ix.sorted, ix.gen
}

// invalidateLocked drops derived state after a change. Caller holds mu.
func (ix *Index) invalidateLocked() {
	ix.gen++
	ix.sorted = nil
	ix.cache.Purge()
}

// Rebuild rescans the root from scratch, reloading .gitignore files.
func (ix *Index) Rebuild(ctx context.Context) error {
	if ix.closed.Load() {
		return ErrClosed
	}
	m, files, truncated, err := scan(ctx, ix.root.String(), ix.ignoredNames, ix.opts, ix.logger)
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", ix.root, err)
	}

	ix.matcher.Store(m)
	ix.mu.Lock()
	ix.files = files
	ix.truncated = truncated
	ix.invalidateLocked()
	ix.mu.Unlock()

	ix.logger.Info("file index rebuilt", slog.Int("files", len(files)))
	return nil
}

// Dispose stops watching and rejects later queries. Safe to call more than once.
func (ix *Index) Dispose(_ context.Context) error {
	ix.closeOnce.Do(func() {
		ix.closed.Store(true)
		if ix.cancel != nil {
			ix.cancel()
			<-ix.watchDone
		}
		ix.mu.Lock()
		ix.files = nil
		ix.invalidateLocked()
		ix.mu.Unlock()
		ix.logger.Debug("file index disposed")
	})
	return nil
}
