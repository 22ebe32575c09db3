package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	fserrors "github.com/looter/nuclide/internal/errors"
)

// Handle is a live default backend owned by a Registry.
type Handle struct {
	dir     Directory
	backend Backend

	once     sync.Once
	disposed atomic.Bool
	err      error
}

// Directory returns the root this handle serves.
func (h *Handle) Directory() Directory { return h.dir }

// Query forwards to the backend. It fails with ErrBackendDisposed once the
// handle has been disposed.
func (h *Handle) Query(ctx context.Context, query string, opts QueryOptions) ([]Result, error) {
	if h.disposed.Load() {
		return nil, ErrBackendDisposed
	}
	return h.backend.Query(ctx, query, opts)
}

// Disposed reports whether dispose has run.
func (h *Handle) Disposed() bool { return h.disposed.Load() }

// dispose releases the backend once. Later calls return the first result.
func (h *Handle) dispose(ctx context.Context) error {
	h.once.Do(func() {
		h.disposed.Store(true)
		h.err = h.backend.Dispose(ctx)
	})
	return h.err
}

// Registry owns at most one default backend per directory.
type Registry struct {
	factory BackendFactory
	logger  *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	handles map[Directory]*Handle
	// building marks directories under construction; a Dispose that lands
	// meanwhile flips the mark to true so the new backend is not kept.
	building map[Directory]bool

	constructions atomic.Int64
}

// NewRegistry creates an empty registry that builds backends with factory.
func NewRegistry(factory BackendFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		handles:  make(map[Directory]*Handle),
		building: make(map[Directory]bool),
	}
}

// GetOrCreate returns the handle for dir, building it on first use.
// Concurrent callers for the same directory share one construction. A failed
// construction leaves no entry behind.
func (r *Registry) GetOrCreate(ctx context.Context, dir Directory, ignoredNames []string) (*Handle, error) {
	if h := r.lookup(dir); h != nil {
		return h, nil
	}

	names := slices.Clone(ignoredNames)
	ch := r.group.DoChan(string(dir), func() (any, error) {
		if h := r.lookup(dir); h != nil {
			return h, nil
		}

		r.constructions.Add(1)
		r.logger.Info("creating search backend", slog.String("directory", dir.String()))

		r.mu.Lock()
		r.building[dir] = false
		r.mu.Unlock()

		backend, err := r.factory(context.WithoutCancel(ctx), dir, names)

		r.mu.Lock()
		removed := r.building[dir]
		delete(r.building, dir)
		if err == nil && !removed {
			r.handles[dir] = &Handle{dir: dir, backend: backend}
		}
		h := r.handles[dir]
		r.mu.Unlock()

		if err != nil {
			r.logger.Warn("search backend construction failed",
				slog.String("directory", dir.String()),
				slog.String("error", err.Error()))
			return nil, fserrors.BackendConstructionError(dir.String(), err)
		}
		if removed {
			r.logger.Info("directory removed during backend construction", slog.String("directory", dir.String()))
			if derr := backend.Dispose(context.WithoutCancel(ctx)); derr != nil {
				r.logger.Warn("search backend disposal failed",
					slog.String("directory", dir.String()),
					slog.String("error", derr.Error()))
			}
			return nil, ErrBackendDisposed
		}
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the live handle for dir, if any.
func (r *Registry) Get(dir Directory) (*Handle, bool) {
	h := r.lookup(dir)
	return h, h != nil
}

func (r *Registry) lookup(dir Directory) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[dir]
}

// Directories lists directories with a live backend, sorted.
func (r *Registry) Directories() []Directory {
	r.mu.RLock()
	dirs := make([]Directory, 0, len(r.handles))
	for d := range r.handles {
		dirs = append(dirs, d)
	}
	r.mu.RUnlock()
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	return dirs
}

// Len returns the number of live backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Constructions returns how many times the factory has been invoked.
func (r *Registry) Constructions() int64 { return r.constructions.Load() }

// Dispose removes and disposes the backend for dir. It is a no-op for an
// unknown directory. A backend still being built is disposed as soon as its
// construction finishes and is never stored.
func (r *Registry) Dispose(ctx context.Context, dir Directory) error {
	r.mu.Lock()
	h, ok := r.handles[dir]
	delete(r.handles, dir)
	if _, building := r.building[dir]; building {
		r.building[dir] = true
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.disposeHandle(ctx, h)
}

// DisposeAll disposes every live backend and returns the joined failures.
func (r *Registry) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	clear(r.handles)
	for d := range r.building {
		r.building[d] = true
	}
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := r.disposeHandle(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) disposeHandle(ctx context.Context, h *Handle) error {
	if err := h.dispose(ctx); err != nil {
		r.logger.Warn("search backend disposal failed",
			slog.String("directory", h.dir.String()),
			slog.String("error", err.Error()))
		return fserrors.DisposalError(h.dir.String(), err)
	}
	r.logger.Info("disposed search backend", slog.String("directory", h.dir.String()))
	return nil
}
