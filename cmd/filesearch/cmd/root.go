// Package cmd provides the CLI commands for filesearch.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/config"
	fserrors "github.com/looter/nuclide/internal/errors"
	"github.com/looter/nuclide/internal/logging"
	"github.com/looter/nuclide/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the filesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filesearch",
		Short: "Fuzzy filename search across project roots",
		Long: `filesearch finds files by fuzzy-matching their paths across one or more
project roots.

Each root uses either the project's own search command (from .filesearch.yaml)
or a built-in file index that honours ignored names and .gitignore. Run
'filesearch daemon start' to keep indexes warm between invocations.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("filesearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.filesearch/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPickCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newRootsCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newAvailableCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the default logger. Without --debug only warnings
// reach stderr so command output stays clean.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		logging.SetupStderr("warn")
		return nil
	}

	logCfg := logging.DebugConfig()
	if cfg, err := config.Load(); err == nil && cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// SIGINT/SIGTERM by main. Errors are printed to stderr.
func ExecuteContext(ctx context.Context) error {
	err := NewRootCmd().ExecuteContext(ctx)
	printError(os.Stderr, err)
	return err
}

// printError writes err for the terminal. Coded errors get the full
// message, cause, hint and code.
func printError(w io.Writer, err error) {
	if err == nil || errors.Is(err, errCancelled) {
		return
	}
	if fserrors.GetCode(err) != "" {
		fmt.Fprint(w, fserrors.FormatForCLI(err))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
