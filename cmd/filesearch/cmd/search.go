package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/daemon"
	"github.com/looter/nuclide/internal/output"
	"github.com/looter/nuclide/internal/search"
)

type searchOptions struct {
	roots     []string
	queryRoot string
	ignore    []string
	smartCase bool
	limit     int
	format    string
	local     bool // Force local search (bypass daemon)
	all       bool // Search every root the daemon has loaded
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [flags] QUERY",
		Short: "Search file paths in one or more roots",
		Long: `Fuzzy-match QUERY against file paths.

With no --root the project root of the current directory is searched.
Several --root flags search each root and merge the results by score.
The daemon is used when it is running; otherwise roots are indexed in-process.`,
		Example: `  filesearch search main
  filesearch search --root ~/src/api --root ~/src/web handler
  filesearch search --query-root internal --format json store
  filesearch search --all config`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.roots, "root", "r", nil, "Root directory to search (repeatable)")
	cmd.Flags().StringVar(&opts.queryRoot, "query-root", "", "Restrict results to this subdirectory of the root")
	cmd.Flags().StringArrayVar(&opts.ignore, "ignore", nil, "Additional name pattern to ignore (repeatable)")
	cmd.Flags().BoolVar(&opts.smartCase, "smart-case", true, "Case-sensitive when the query has upper-case letters")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (0 uses search.max_results)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Force local search (bypass daemon)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Search every root loaded in the daemon")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must be non-negative")
	}
	if opts.all && opts.local {
		return errors.New("--all needs the daemon and cannot be combined with --local")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	limit := opts.limit
	if limit == 0 {
		limit = cfg.Search.MaxResults
	}
	ignored := append(append([]string{}, cfg.Search.IgnoredNames...), opts.ignore...)
	out := output.New(cmd.OutOrStdout())

	if opts.all {
		client := daemon.NewClient(daemon.FromConfig(cfg))
		if !client.IsRunning() {
			return errors.New("daemon is not running; start it with 'filesearch daemon start'")
		}
		results, err := client.QueryAll(ctx, daemon.QueryAllParams{Query: query, IgnoredNames: ignored, Limit: limit})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return out.Results(results, format)
	}

	roots, err := resolveRoots(opts.roots)
	if err != nil {
		return err
	}

	if cfg.Search.MaxResults > 0 && opts.limit > cfg.Search.MaxResults {
		// The in-process index caps each root at search.max_results.
		cfg.Search.MaxResults = opts.limit
	}

	// One-shot: the local index is dropped on exit, so don't watch it.
	sess, err := openSession(ctx, cfg, opts.local, false, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	results, err := queryRoots(ctx, sess.query, roots, search.Request{
		QueryRoot:    opts.queryRoot,
		Query:        query,
		IgnoredNames: ignored,
		SmartCase:    opts.smartCase,
	}, limit, logger)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	logger.Debug("search complete",
		slog.String("query", query),
		slog.Int("roots", len(roots)),
		slog.Int("results", len(results)),
		slog.Bool("daemon", sess.client != nil))
	return out.Results(results, format)
}
