// Package daemon keeps a search coordinator resident behind a Unix socket.
// Editor sessions and CLI invocations connect to it so per-directory
// backends are built once and reused.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/looter/nuclide/internal/config"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.filesearch/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.filesearch/daemon.pid
	PIDPath string

	// Timeout is the maximum duration for one client-daemon exchange.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod bounds backend disposal on shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// MaxResults caps query results when a request sets no limit.
	MaxResults int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	dir := config.StateDir()
	return Config{
		SocketPath:          filepath.Join(dir, "daemon.sock"),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaxResults:          50,
	}
}

// FromConfig derives the daemon settings from the user configuration.
func FromConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg.Daemon.SocketPath != "" {
		c.SocketPath = cfg.Daemon.SocketPath
	}
	if cfg.Daemon.PIDPath != "" {
		c.PIDPath = cfg.Daemon.PIDPath
	}
	if d := cfg.DaemonTimeout(); d > 0 {
		c.Timeout = d
	}
	c.MaxResults = cfg.Search.MaxResults
	return c
}

// LockPath is the flock file guarding single-instance startup.
func (c Config) LockPath() string {
	return c.PIDPath + ".lock"
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max results cannot be negative")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
