package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/customsearch"
	"github.com/looter/nuclide/internal/daemon"
	"github.com/looter/nuclide/internal/fileindex"
	"github.com/looter/nuclide/internal/search"
)

// loadConfig loads the effective user configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// indexOptions maps the user config onto fileindex options.
func indexOptions(cfg *config.Config, watch bool, logger *slog.Logger) fileindex.Options {
	opts := fileindex.DefaultOptions()
	opts.Watch = watch && cfg.Index.Watch
	opts.WatchDebounce = cfg.WatchDebounce()
	opts.RespectGitignore = cfg.Index.RespectGitignore
	opts.FollowSymlinks = cfg.Index.FollowSymlinks
	opts.MaxFiles = cfg.Index.MaxFiles
	opts.MaxResults = cfg.Search.MaxResults
	opts.Logger = logger
	return opts
}

// newCoordinator builds an in-process coordinator from the user config.
// watch is false for one-shot commands, which exit before any change lands.
func newCoordinator(cfg *config.Config, watch bool, logger *slog.Logger) (*search.Coordinator, error) {
	return search.NewCoordinator(search.Options{
		Provider:        customsearch.ForConfig(cfg, logger),
		Factory:         fileindex.Factory(indexOptions(cfg, watch, logger)),
		ConfigCacheSize: cfg.Search.ConfigCacheSize,
		MaxResults:      cfg.Search.MaxResults,
		Logger:          logger,
	})
}

// session picks the daemon when it is reachable and falls back to a local
// coordinator. close releases the local coordinator, if any.
type session struct {
	query  search.QueryFunc
	client *daemon.Client
	close  func()
}

func openSession(ctx context.Context, cfg *config.Config, forceLocal, watch bool, logger *slog.Logger) (*session, error) {
	if !forceLocal {
		client := daemon.NewClient(daemon.FromConfig(cfg))
		if client.IsRunning() {
			logger.Debug("using daemon", slog.String("socket", cfg.Daemon.SocketPath))
			return &session{
				client: client,
				close:  func() {},
				query: func(ctx context.Context, req search.Request) ([]search.Result, error) {
					return client.Query(ctx, daemon.QueryParams{
						Root:         req.RootDirectory.String(),
						QueryRoot:    req.QueryRoot,
						Query:        req.Query,
						IgnoredNames: req.IgnoredNames,
						SmartCase:    req.SmartCase,
					})
				},
			}, nil
		}
	}

	coord, err := newCoordinator(cfg, watch, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("using in-process coordinator")
	return &session{
		query: coord.QueryOne,
		close: func() {
			if err := coord.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to close coordinator", slog.String("error", err.Error()))
			}
		},
	}, nil
}

// queryRoots runs base against every root, either through the daemon or an
// in-process coordinator, and caps the merged results at limit.
func queryRoots(ctx context.Context, q search.QueryFunc, roots []search.Directory, base search.Request, limit int, logger *slog.Logger) ([]search.Result, error) {
	results, err := search.QueryMany(ctx, roots, base, q, 0, logger)
	if err != nil {
		return nil, err
	}
	return search.Limit(results, limit), nil
}

// resolveRoots canonicalises the --root values. With none given the project
// root of the working directory is used.
func resolveRoots(paths []string) ([]search.Directory, error) {
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		root, err := config.FindProjectRoot(cwd)
		if err != nil {
			root = cwd
		}
		paths = []string{root}
	}

	seen := make(map[search.Directory]bool, len(paths))
	roots := make([]search.Directory, 0, len(paths))
	for _, p := range paths {
		dir, err := search.NewDirectory(p)
		if err != nil {
			return nil, err
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		roots = append(roots, dir)
	}
	return roots, nil
}
