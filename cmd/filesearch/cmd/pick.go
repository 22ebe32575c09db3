package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/picker"
	"github.com/looter/nuclide/internal/search"
)

func newPickCmd() *cobra.Command {
	var (
		roots     []string
		queryRoot string
		local     bool
	)

	cmd := &cobra.Command{
		Use:   "pick [QUERY]",
		Short: "Pick a file interactively",
		Long: `Open an interactive picker over the given roots and print the chosen
file's absolute path.

The picker draws on stderr so the result can be captured:

  vim "$(filesearch pick)"

Keys: type to filter, Up/Down or Ctrl+P/Ctrl+N to move, Enter to choose,
Esc to cancel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPick(cmd.Context(), cmd, strings.Join(args, " "), roots, queryRoot, local)
		},
	}

	cmd.Flags().StringArrayVarP(&roots, "root", "r", nil, "Root directory to search (repeatable)")
	cmd.Flags().StringVar(&queryRoot, "query-root", "", "Restrict results to this subdirectory of the root")
	cmd.Flags().BoolVar(&local, "local", false, "Force local search (bypass daemon)")

	return cmd
}

// errCancelled exits non-zero without printing anything.
var errCancelled = errors.New("cancelled")

func runPick(ctx context.Context, cmd *cobra.Command, query string, rootPaths []string, queryRoot string, local bool) error {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return errors.New("pick needs a terminal on stderr")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roots, err := resolveRoots(rootPaths)
	if err != nil {
		return err
	}
	logger := slog.Default()

	// The picker stays open while the user types, so keep local indexes live.
	sess, err := openSession(ctx, cfg, local, true, logger)
	if err != nil {
		return err
	}
	defer sess.close()

	provider := picker.ProviderFunc(func(ctx context.Context, q string, limit int) ([]search.Result, error) {
		return queryRoots(ctx, sess.query, roots, search.Request{
			QueryRoot:    queryRoot,
			Query:        q,
			IgnoredNames: cfg.Search.IgnoredNames,
			SmartCase:    cfg.Search.SmartCase,
		}, limit, logger)
	})

	chosen, ok, err := picker.Run(ctx, provider, query, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	if !ok {
		return errCancelled
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), picker.AbsPath(chosen))
	return err
}
