package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	fserrors "github.com/looter/nuclide/internal/errors"
)

// DefaultConfigCacheSize is sized for the number of project roots an editor
// session typically has open at once.
const DefaultConfigCacheSize = 20

// pendingConfig is a single-assignment future for one resolution. cfg and
// err are written before done is closed and only read after.
type pendingConfig struct {
	done chan struct{}
	cfg  SearchConfig
	err  error
}

// ConfigCache memoizes the SearchConfig for each directory.
type ConfigCache struct {
	provider ConfigProvider
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	entries *lru.Cache[Directory, *pendingConfig]
	// inflight holds every unfinished resolution. Eviction never touches it,
	// so an evicted directory still has at most one resolution running.
	inflight map[Directory]*pendingConfig
	// removing is set while entries are dropped on purpose, so the evict
	// callback only reports capacity evictions.
	removing bool

	resolutions atomic.Int64
	evictions   atomic.Int64
}

// NewConfigCache creates a cache backed by provider. A nil provider selects
// DefaultProvider; capacity <= 0 selects DefaultConfigCacheSize.
func NewConfigCache(provider ConfigProvider, capacity int, logger *slog.Logger) (*ConfigCache, error) {
	if capacity <= 0 {
		capacity = DefaultConfigCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &ConfigCache{
		provider: SelectProvider(provider),
		capacity: capacity,
		logger:   logger,
		inflight: make(map[Directory]*pendingConfig),
	}

	entries, err := lru.NewWithEvict(capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create config cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// onEvict runs synchronously inside entries.Add/Remove/Purge, which are only
// called with c.mu held.
func (c *ConfigCache) onEvict(dir Directory, _ *pendingConfig) {
	if c.removing {
		return
	}
	c.evictions.Add(1)
	c.logger.Error("evicted directory from search config cache",
		slog.String("directory", dir.String()),
		slog.Int("capacity", c.capacity))
}

// Resolve returns the SearchConfig for dir. The first caller starts the
// resolution; concurrent callers wait on the same one. ctx only bounds this
// caller's wait.
func (c *ConfigCache) Resolve(ctx context.Context, dir Directory) (SearchConfig, error) {
	c.mu.Lock()
	p, ok := c.entries.Get(dir)
	if !ok {
		if p, ok = c.inflight[dir]; ok {
			// Evicted or forgotten while resolving: cache it again and join.
			c.entries.Add(dir, p)
		} else {
			p = &pendingConfig{done: make(chan struct{})}
			c.inflight[dir] = p
			c.entries.Add(dir, p)
			c.resolutions.Add(1)
			go c.resolve(context.WithoutCancel(ctx), dir, p)
		}
	}
	c.mu.Unlock()

	select {
	case <-p.done:
		return p.cfg, p.err
	case <-ctx.Done():
		return SearchConfig{}, ctx.Err()
	}
}

func (c *ConfigCache) resolve(ctx context.Context, dir Directory, p *pendingConfig) {
	cfg, err := c.provider.ResolveConfig(ctx, dir)
	if err == nil && cfg.UseCustomSearch && cfg.Search == nil {
		err = errors.New("custom search selected without a search function")
	}

	c.mu.Lock()
	if c.inflight[dir] == p {
		delete(c.inflight, dir)
	}
	if err != nil {
		p.err = fserrors.ConfigResolutionError(dir.String(), err)
		// Drop the failed call so the next Resolve retries, unless it was
		// already replaced.
		if cur, ok := c.entries.Peek(dir); ok && cur == p {
			c.removeLocked(dir)
		}
	} else {
		p.cfg = cfg
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("search config resolution failed",
			slog.String("directory", dir.String()),
			slog.String("error", err.Error()))
	} else {
		c.logger.Debug("resolved search config",
			slog.String("directory", dir.String()),
			slog.Bool("custom", cfg.UseCustomSearch))
	}
	close(p.done)
}

// Forget drops the cached config for dir.
func (c *ConfigCache) Forget(dir Directory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(dir)
}

// Purge drops every cached config without reporting evictions.
func (c *ConfigCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removing = true
	c.entries.Purge()
	c.removing = false
}

func (c *ConfigCache) removeLocked(dir Directory) {
	c.removing = true
	c.entries.Remove(dir)
	c.removing = false
}

// Contains reports whether dir has a cached or in-flight config.
func (c *ConfigCache) Contains(dir Directory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(dir)
}

// Len returns the number of cached directories.
func (c *ConfigCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity returns the fixed maximum number of entries.
func (c *ConfigCache) Capacity() int { return c.capacity }

// Resolutions returns how many provider resolutions were started.
func (c *ConfigCache) Resolutions() int64 { return c.resolutions.Load() }

// Evictions returns how many entries were evicted for capacity.
func (c *ConfigCache) Evictions() int64 { return c.evictions.Load() }
