package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	grep    string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View filesearch logs",
		Long: `View and tail the filesearch log (~/.filesearch/logs/filesearch.log).

The daemon always logs there; other commands do with --debug.`,
		Example: `  filesearch logs                # Show last 50 lines
  filesearch logs -n 200         # Show last 200 lines
  filesearch logs -f             # Follow new entries
  filesearch logs --level warn   # Only warnings and errors
  filesearch logs --grep evicted # Filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.grep, "grep", "", "Only show entries matching this regex")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.file, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	explicit := opts.file
	if explicit == "" {
		if cfg, err := config.Load(); err == nil {
			explicit = cfg.Logging.File
		}
	}
	path, err := logging.FindLogFile(explicit)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.grep != "" {
		if pattern, err = regexp.Compile(opts.grep); err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
	}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor,
	}, stdout)

	fmt.Fprintf(stderr, "Log file: %s\n", path)
	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(stdout, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
