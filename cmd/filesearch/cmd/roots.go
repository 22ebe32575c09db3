package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/daemon"
	"github.com/looter/nuclide/internal/output"
	"github.com/looter/nuclide/internal/search"
)

var errDaemonNotRunning = errors.New("daemon is not running; start it with 'filesearch daemon start'")

// runningClient returns a client for the configured daemon, or
// errDaemonNotRunning.
func runningClient() (*daemon.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if !client.IsRunning() {
		return nil, errDaemonNotRunning
	}
	return client, nil
}

func newRootsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List roots with a live index in the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := runningClient()
			if err != nil {
				return err
			}
			roots, err := client.Roots(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list roots: %w", err)
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(roots)
			}
			for _, r := range roots {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove DIR",
		Short: "Drop the daemon's index for a root",
		Long: `Dispose the daemon's index for DIR. The next search of DIR rebuilds it.
The root's cached search configuration is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := search.NewDirectory(args[0])
			if err != nil {
				return err
			}
			client, err := runningClient()
			if err != nil {
				return err
			}
			if err := client.Remove(cmd.Context(), dir.String()); err != nil {
				return fmt.Errorf("failed to remove %s: %w", dir, err)
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %s", dir)
			return nil
		},
	}
}

func newAvailableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "available DIR",
		Short: "Report whether DIR can be searched",
		Long:  `Print "true" if DIR exists and is a directory, "false" otherwise.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := available(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

// available asks the daemon when it runs, so the answer reflects the
// daemon's view of the filesystem, and checks locally otherwise.
func available(ctx context.Context, path string) (bool, error) {
	dir, err := search.NewDirectory(path)
	if err != nil {
		return false, err
	}
	if client, err := runningClient(); err == nil {
		return client.Available(ctx, dir.String())
	}

	cfg, err := loadConfig()
	if err != nil {
		return false, err
	}
	coord, err := newCoordinator(cfg, false, slog.Default())
	if err != nil {
		return false, err
	}
	defer func() { _ = coord.Close(context.WithoutCancel(ctx)) }()
	return coord.IsAvailable(ctx, dir)
}
