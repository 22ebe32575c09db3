package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/looter/nuclide/internal/search"
)

// Daemon serves a search.Coordinator over the socket in Config.
type Daemon struct {
	cfg     Config
	coord   *search.Coordinator
	server  *Server
	pidFile *PIDFile
	lock    *InstanceLock
	logger  *slog.Logger
}

var _ RequestHandler = (*Daemon)(nil)

// NewDaemon creates a daemon around coord. The daemon owns coord and closes
// it on shutdown.
func NewDaemon(cfg Config, coord *search.Coordinator, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := NewServer(cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	srv.SetLogger(logger)
	srv.SetConnTimeout(cfg.Timeout)

	d := &Daemon{
		cfg:     cfg,
		coord:   coord,
		server:  srv,
		pidFile: NewPIDFile(cfg.PIDPath),
		lock:    NewInstanceLock(cfg.LockPath()),
		logger:  logger,
	}
	srv.SetHandler(d)
	return d, nil
}

// Start runs the daemon until ctx is cancelled. It fails with
// ErrAlreadyRunning when another daemon holds the instance lock.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = d.lock.Unlock() }()

	if d.pidFile.Stale() {
		d.logger.Info("removing stale PID file", slog.String("path", d.pidFile.Path()))
		_ = d.pidFile.Remove()
	}
	if err := d.pidFile.Write(); err != nil {
		return err
	}
	defer func() { _ = d.pidFile.Remove() }()

	d.logger.Info("daemon started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("pid_file", d.cfg.PIDPath))

	err := d.server.ListenAndServe(ctx)
	d.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop closes the listener; Start then shuts down and returns.
func (d *Daemon) Stop() error {
	return d.server.Close()
}

func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := d.coord.Close(ctx); err != nil {
		d.logger.Warn("errors while disposing backends", slog.String("error", err.Error()))
	}
	d.logger.Info("daemon stopped")
}

// Query implements RequestHandler.
func (d *Daemon) Query(ctx context.Context, p QueryParams) ([]search.Result, error) {
	dir, err := search.NewDirectory(p.Root)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := d.coord.QueryOne(ctx, search.Request{
		RootDirectory: dir,
		QueryRoot:     p.QueryRoot,
		Query:         p.Query,
		IgnoredNames:  p.IgnoredNames,
		SmartCase:     p.SmartCase,
	})
	if err != nil {
		return nil, err
	}
	results = search.Limit(results, d.limit(p.Limit))
	d.logger.Debug("query served",
		slog.String("root", dir.String()),
		slog.String("query", p.Query),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// QueryAll implements RequestHandler.
func (d *Daemon) QueryAll(ctx context.Context, p QueryAllParams) ([]search.Result, error) {
	results, err := d.coord.QueryAll(ctx, p.Query, p.IgnoredNames)
	if err != nil {
		return nil, err
	}
	return search.Limit(results, d.limit(p.Limit)), nil
}

// Available implements RequestHandler.
func (d *Daemon) Available(ctx context.Context, p RootParams) (bool, error) {
	dir, err := search.NewDirectory(p.Root)
	if err != nil {
		return false, err
	}
	return d.coord.IsAvailable(ctx, dir)
}

// Remove implements RequestHandler.
func (d *Daemon) Remove(ctx context.Context, p RootParams) error {
	dir, err := search.NewDirectory(p.Root)
	if err != nil {
		return err
	}
	return d.coord.RemoveDirectory(ctx, dir)
}

// Roots implements RequestHandler.
func (d *Daemon) Roots() []string {
	dirs := d.coord.Directories()
	roots := make([]string, len(dirs))
	for i, dir := range dirs {
		roots[i] = dir.String()
	}
	return roots
}

// Status implements RequestHandler.
func (d *Daemon) Status() StatusResult {
	st := d.coord.Stats()
	roots := make([]string, len(st.Directories))
	for i, dir := range st.Directories {
		roots[i] = dir.String()
	}
	return StatusResult{
		Running:       true,
		Roots:         roots,
		CachedConfigs: st.CachedConfigs,
		CacheCapacity: st.CacheCapacity,
		Evictions:     st.Evictions,
		Constructions: st.Constructions,
	}
}

func (d *Daemon) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	return d.cfg.MaxResults
}
