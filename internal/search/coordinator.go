package search

import (
	"context"
	"errors"
	"log/slog"
	"os"

	fserrors "github.com/looter/nuclide/internal/errors"
)

// Options configures a Coordinator.
type Options struct {
	// Provider resolves per-directory strategy. Nil selects DefaultProvider.
	Provider ConfigProvider

	// Factory builds default backends. Required.
	Factory BackendFactory

	// ConfigCacheSize bounds the config cache. <= 0 selects DefaultConfigCacheSize.
	ConfigCacheSize int

	// MaxResults caps QueryAll output after merging. <= 0 means no cap.
	MaxResults int

	// Parallelism bounds concurrent directory queries in QueryAll. <= 0 means unbounded.
	Parallelism int

	Logger *slog.Logger
}

// Stats is a point-in-time view of coordinator state.
type Stats struct {
	Directories   []Directory `json:"directories"`
	CachedConfigs int         `json:"cached_configs"`
	CacheCapacity int         `json:"cache_capacity"`
	Evictions     int64       `json:"evictions"`
	Constructions int64       `json:"constructions"`
}

// Coordinator routes queries to a custom search or a default backend per
// directory and merges multi-directory results.
type Coordinator struct {
	configs  *ConfigCache
	registry *Registry
	opts     Options
	logger   *slog.Logger
}

// NewCoordinator builds a Coordinator. The strategy provider is fixed here.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Factory == nil {
		return nil, fserrors.ValidationError("backend factory is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	configs, err := NewConfigCache(opts.Provider, opts.ConfigCacheSize, logger)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		configs:  configs,
		registry: NewRegistry(opts.Factory, logger),
		opts:     opts,
		logger:   logger,
	}, nil
}

// QueryOne runs a query against a single directory.
func (c *Coordinator) QueryOne(ctx context.Context, req Request) ([]Result, error) {
	if req.RootDirectory == "" {
		return nil, fserrors.ValidationError("root directory must not be empty", nil)
	}
	dir := req.RootDirectory

	cfg, err := c.configs.Resolve(ctx, dir)
	if err != nil {
		return nil, err
	}

	var results []Result
	if cfg.UseCustomSearch {
		results, err = cfg.Search(ctx, req.Query, dir)
	} else {
		var h *Handle
		h, err = c.registry.GetOrCreate(ctx, dir, req.IgnoredNames)
		if err != nil {
			return nil, err
		}
		results, err = h.Query(ctx, req.Query, QueryOptions{
			QueryRoot: req.QueryRoot,
			SmartCase: req.SmartCase,
		})
	}
	if err != nil {
		return nil, wrapQueryError(dir, err)
	}

	for i := range results {
		if results[i].Root == "" {
			results[i].Root = dir
		}
	}
	return results, nil
}

func wrapQueryError(dir Directory, err error) error {
	var se *fserrors.SearchError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fserrors.QueryExecutionError(dir.String(), err)
}

// QueryAll runs query against every directory with a live backend and
// merges the results. A failing directory is logged and skipped; an error is
// returned only when every directory fails.
func (c *Coordinator) QueryAll(ctx context.Context, query string, ignoredNames []string) ([]Result, error) {
	dirs := c.registry.Directories()
	if len(dirs) == 1 {
		return c.QueryOne(ctx, Request{RootDirectory: dirs[0], Query: query, IgnoredNames: ignoredNames})
	}

	merged, err := QueryMany(ctx, dirs, Request{Query: query, IgnoredNames: ignoredNames}, c.QueryOne, c.opts.Parallelism, c.logger)
	if err != nil {
		return nil, err
	}
	return Limit(merged, c.opts.MaxResults), nil
}

// IsAvailable reports whether dir exists and is a directory. It consults no
// caches. A missing path is not an error.
func (c *Coordinator) IsAvailable(_ context.Context, dir Directory) (bool, error) {
	info, err := os.Stat(dir.String())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// RemoveDirectory disposes the backend for dir. The cached config is kept.
func (c *Coordinator) RemoveDirectory(ctx context.Context, dir Directory) error {
	return c.registry.Dispose(ctx, dir)
}

// Directories lists directories with a live backend.
func (c *Coordinator) Directories() []Directory {
	return c.registry.Directories()
}

// Stats returns a snapshot for status reporting.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Directories:   c.registry.Directories(),
		CachedConfigs: c.configs.Len(),
		CacheCapacity: c.configs.Capacity(),
		Evictions:     c.configs.Evictions(),
		Constructions: c.registry.Constructions(),
	}
}

// Close disposes every backend and drops cached configs.
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.registry.DisposeAll(ctx)
	c.configs.Purge()
	return err
}
