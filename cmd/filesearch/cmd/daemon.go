package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/daemon"
	"github.com/looter/nuclide/internal/logging"
	"github.com/looter/nuclide/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background search daemon",
		Long: `The daemon keeps per-root file indexes warm and up to date so searches
from the CLI and editors don't re-walk the tree each time.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status

Examples:
  filesearch daemon start      # Start daemon in background
  filesearch daemon start -f   # Run in foreground (for debugging)
  filesearch daemon status     # Check if daemon is running
  filesearch daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		Long: `Start the search daemon in the background.

Use --foreground for debugging or to see logs in real-time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running search daemon.

Sends SIGTERM to the daemon process for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show whether the daemon is running, its process ID, uptime, loaded
roots and config cache usage.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	daemonCfg := daemon.FromConfig(cfg)

	client := daemon.NewClient(daemonCfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		return runDaemonForeground(ctx, out, cfg, daemonCfg)
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	bgCmd := exec.Command(execPath, "daemon", "start", "--foreground")
	bgCmd.Stdout = nil
	bgCmd.Stderr = nil
	bgCmd.Stdin = nil
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice if it dies before listening.
	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for range 30 {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w (see %s)", err, logPath(cfg))
			}
			return fmt.Errorf("daemon process exited unexpectedly (see %s)", logPath(cfg))
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Success(fmt.Sprintf("Daemon started (pid: %d)", bgCmd.Process.Pid))
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout")
}

func runDaemonForeground(ctx context.Context, out *output.Writer, cfg *config.Config, daemonCfg daemon.Config) error {
	logCfg := logging.DaemonConfig(cfg.Logging.Level, cfg.Logging.File)
	logCfg.WriteToStderr = true
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	out.Status("", "Starting daemon in foreground...")
	out.Status("", fmt.Sprintf("Socket: %s", daemonCfg.SocketPath))
	out.Status("", fmt.Sprintf("Logs: %s", logCfg.FilePath))
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	coord, err := newCoordinator(cfg, true, logger)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	d, err := daemon.NewDaemon(daemonCfg, coord, logger)
	if err != nil {
		logger.Error("failed to create daemon", slog.String("error", err.Error()))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			out.Status("", "Daemon is already running")
			return nil
		}
		logger.Error("daemon exited", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(daemon.FromConfig(cfg).PIDPath)

	if !pidFile.IsRunning() {
		if pidFile.Stale() {
			_ = pidFile.Remove()
		}
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("Daemon stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	out.Success("Daemon killed")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	daemonCfg := daemon.FromConfig(cfg)

	client := daemon.NewClient(daemonCfg)
	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(daemon.StatusResult{Running: false, Roots: []string{}})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'filesearch daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		return out.JSON(status)
	}

	out.Status("", "Daemon is running")
	out.Status("", fmt.Sprintf("  PID:           %d", status.PID))
	out.Status("", fmt.Sprintf("  Uptime:        %s", status.Uptime))
	out.Status("", fmt.Sprintf("  Roots loaded:  %d", len(status.Roots)))
	out.Status("", fmt.Sprintf("  Config cache:  %d/%d (%d evictions)", status.CachedConfigs, status.CacheCapacity, status.Evictions))
	out.Status("", fmt.Sprintf("  Backends:      %d built", status.Constructions))
	out.Status("", fmt.Sprintf("  Socket:        %s", daemonCfg.SocketPath))
	if len(status.Roots) > 0 {
		out.Status("", "  "+strings.Join(status.Roots, "\n     "))
	}

	return nil
}

func logPath(cfg *config.Config) string {
	if cfg.Logging.File != "" {
		return cfg.Logging.File
	}
	return logging.DefaultLogPath()
}
