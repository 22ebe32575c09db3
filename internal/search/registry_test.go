package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/looter/nuclide/internal/errors"
)

func TestRegistry_ConcurrentGetOrCreateBuildsOnce(t *testing.T) {
	// Given a factory that blocks until released
	factory := newFakeFactory()
	factory.release = make(chan struct{})
	reg := NewRegistry(factory.build, nil)

	// When many callers ask for the same directory
	const callers = 20
	handles := make(chan *Handle, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.GetOrCreate(context.Background(), "/proj", nil)
			assert.NoError(t, err)
			handles <- h
		}()
	}
	require.Eventually(t, func() bool { return factory.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(factory.release)
	wg.Wait()
	close(handles)

	// Then exactly one backend exists and all callers share it
	var first *Handle
	for h := range handles {
		if first == nil {
			first = h
		}
		assert.Same(t, first, h)
	}
	assert.Equal(t, int64(1), factory.calls.Load())
	assert.Equal(t, []Directory{"/proj"}, reg.Directories())
}

func TestRegistry_ReusesLiveHandle(t *testing.T) {
	factory := newFakeFactory()
	reg := NewRegistry(factory.build, nil)
	ctx := context.Background()

	h1, err := reg.GetOrCreate(ctx, "/proj", nil)
	require.NoError(t, err)
	h2, err := reg.GetOrCreate(ctx, "/proj", []string{"other"})
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int64(1), reg.Constructions())
	got, ok := reg.Get("/proj")
	assert.True(t, ok)
	assert.Same(t, h1, got)
}

func TestRegistry_PassesIgnoredNamesAndDetachedContext(t *testing.T) {
	factory := newFakeFactory()
	reg := NewRegistry(factory.build, nil)
	names := []string{"node_modules", ".git"}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := reg.GetOrCreate(ctx, "/proj", names)
	require.NoError(t, err)
	cancel()
	names[0] = "mutated"

	factory.mu.Lock()
	defer factory.mu.Unlock()
	assert.Equal(t, []string{"node_modules", ".git"}, factory.lastNames)
	assert.NoError(t, factory.lastCtx.Err())
}

func TestRegistry_CancelledCallerDoesNotAbortConstruction(t *testing.T) {
	factory := newFakeFactory()
	factory.release = make(chan struct{})
	reg := NewRegistry(factory.build, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := reg.GetOrCreate(ctx, "/proj", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return factory.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(factory.release)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, err := reg.GetOrCreate(context.Background(), "/proj", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), factory.calls.Load())
}

func TestRegistry_ConstructionFailureStoresNothing(t *testing.T) {
	// Given a factory that fails for one directory
	factory := newFakeFactory()
	factory.errs["/proj"] = errors.New("disk on fire")
	reg := NewRegistry(factory.build, nil)

	// When a backend is requested
	_, err := reg.GetOrCreate(context.Background(), "/proj", nil)

	// Then the error is typed and no handle is kept
	require.Error(t, err)
	assert.True(t, errors.Is(err, fserrors.ErrBackendConstruction))
	assert.Empty(t, reg.Directories())

	// And a later attempt tries again
	delete(factory.errs, "/proj")
	_, err = reg.GetOrCreate(context.Background(), "/proj", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), factory.calls.Load())
}

func TestRegistry_MissingDirectoryKeepsNotFoundCode(t *testing.T) {
	factory := newFakeFactory()
	factory.errs["/gone"] = fserrors.DirectoryNotFoundError("/gone")
	reg := NewRegistry(factory.build, nil)

	_, err := reg.GetOrCreate(context.Background(), "/gone", nil)

	assert.Equal(t, fserrors.ErrCodeDirectoryNotFound, fserrors.GetCode(err))
}

func TestRegistry_DisposeIsIdempotent(t *testing.T) {
	// Given a live backend
	factory := newFakeFactory()
	reg := NewRegistry(factory.build, nil)
	ctx := context.Background()
	h, err := reg.GetOrCreate(ctx, "/proj", nil)
	require.NoError(t, err)

	// When it is disposed twice
	require.NoError(t, reg.Dispose(ctx, "/proj"))
	require.NoError(t, reg.Dispose(ctx, "/proj"))

	// Then the backend saw one disposal and the handle rejects queries
	assert.Equal(t, int64(1), factory.backend("/proj").disposes.Load())
	assert.Empty(t, reg.Directories())
	assert.True(t, h.Disposed())
	_, err = h.Query(ctx, "x", QueryOptions{})
	assert.ErrorIs(t, err, ErrBackendDisposed)
	assert.Equal(t, int64(0), factory.backend("/proj").queries.Load())
}

func TestRegistry_DisposeUnknownDirectory(t *testing.T) {
	reg := NewRegistry(newFakeFactory().build, nil)

	assert.NoError(t, reg.Dispose(context.Background(), "/never"))
}

func TestRegistry_DisposeDuringConstructionDropsBackend(t *testing.T) {
	// Given a construction blocked in the factory
	factory := newFakeFactory()
	factory.release = make(chan struct{})
	reg := NewRegistry(factory.build, nil)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.GetOrCreate(ctx, "/proj", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return factory.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// When the directory is removed before construction finishes
	require.NoError(t, reg.Dispose(ctx, "/proj"))
	close(factory.release)

	// Then the new backend is disposed and never tracked
	assert.ErrorIs(t, <-errCh, ErrBackendDisposed)
	assert.Empty(t, reg.Directories())
	assert.Equal(t, int64(1), factory.backend("/proj").disposes.Load())

	// And the next use builds a fresh backend
	factory.release = nil
	h, err := reg.GetOrCreate(ctx, "/proj", nil)
	require.NoError(t, err)
	assert.False(t, h.Disposed())
	assert.Equal(t, []Directory{"/proj"}, reg.Directories())
}

func TestRegistry_DisposeErrorStillRemoves(t *testing.T) {
	factory := newFakeFactory()
	factory.set("/proj", &fakeBackend{disposeErr: errors.New("busy")})
	reg := NewRegistry(factory.build, nil)
	ctx := context.Background()
	_, err := reg.GetOrCreate(ctx, "/proj", nil)
	require.NoError(t, err)

	err = reg.Dispose(ctx, "/proj")

	assert.True(t, errors.Is(err, fserrors.ErrDisposal))
	assert.Empty(t, reg.Directories())
	assert.NoError(t, reg.Dispose(ctx, "/proj"))
}

func TestRegistry_DisposeAll(t *testing.T) {
	factory := newFakeFactory()
	factory.set("/b", &fakeBackend{disposeErr: errors.New("busy")})
	reg := NewRegistry(factory.build, nil)
	ctx := context.Background()
	for _, d := range []Directory{"/c", "/a", "/b"} {
		_, err := reg.GetOrCreate(ctx, d, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []Directory{"/a", "/b", "/c"}, reg.Directories())

	err := reg.DisposeAll(ctx)

	assert.True(t, errors.Is(err, fserrors.ErrDisposal))
	assert.Equal(t, 0, reg.Len())
	for _, d := range []Directory{"/a", "/b", "/c"} {
		assert.Equal(t, int64(1), factory.backend(d).disposes.Load(), d)
	}
}
