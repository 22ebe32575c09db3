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

func TestConfigCache_ConcurrentResolveCollapses(t *testing.T) {
	// Given a provider that blocks until released
	provider := &fakeProvider{release: make(chan struct{})}
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	// When many callers resolve the same directory at once
	const callers = 25
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Resolve(context.Background(), "/proj")
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(provider.release)
	wg.Wait()
	close(errs)

	// Then the provider ran exactly once and everyone got the answer
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), provider.calls.Load())
	assert.Equal(t, int64(1), cache.Resolutions())
}

func TestConfigCache_ReusesCompletedResolution(t *testing.T) {
	provider := &fakeProvider{}
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	for range 3 {
		cfg, err := cache.Resolve(context.Background(), "/proj")
		require.NoError(t, err)
		assert.False(t, cfg.UseCustomSearch)
	}

	assert.Equal(t, int64(1), provider.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestConfigCache_NilProviderUsesDefault(t *testing.T) {
	cache, err := NewConfigCache(nil, 0, nil)
	require.NoError(t, err)

	cfg, err := cache.Resolve(context.Background(), "/proj")

	require.NoError(t, err)
	assert.False(t, cfg.UseCustomSearch)
	assert.Nil(t, cfg.Search)
	assert.Equal(t, DefaultConfigCacheSize, cache.Capacity())
}

func TestConfigCache_CapacityEvictionIsLogged(t *testing.T) {
	// Given a cache holding two directories
	logger, logs := captureLogger()
	provider := &fakeProvider{}
	cache, err := NewConfigCache(provider, 2, logger)
	require.NoError(t, err)
	ctx := context.Background()

	// When a third directory is resolved
	for _, dir := range []Directory{"/a", "/b", "/c"} {
		_, err := cache.Resolve(ctx, dir)
		require.NoError(t, err)
	}

	// Then the least recently used entry is evicted and reported at error level
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int64(1), cache.Evictions())
	assert.False(t, cache.Contains("/a"))
	out := logs.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "evicted directory from search config cache")
	assert.Contains(t, out, "directory=/a")

	// And the evicted directory is resolved again on next use
	_, err = cache.Resolve(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), provider.calls.Load())
}

func TestConfigCache_EvictedInFlightResolutionIsJoined(t *testing.T) {
	// Given a one-entry cache whose provider blocks
	provider := &fakeProvider{release: make(chan struct{})}
	cache, err := NewConfigCache(provider, 1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	resolve := func(dir Directory) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Resolve(ctx, dir)
			assert.NoError(t, err)
		}()
	}

	// When /a is still resolving and /b evicts it
	resolve("/a")
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	resolve("/b")
	require.Eventually(t, func() bool { return cache.Evictions() == 1 }, time.Second, 5*time.Millisecond)

	// And /a is requested again before its first resolution finishes
	resolve("/a")
	require.Eventually(t, func() bool { return cache.Evictions() == 2 }, time.Second, 5*time.Millisecond)
	close(provider.release)
	wg.Wait()

	// Then /a was resolved once, joined by the second caller
	assert.Equal(t, int64(2), provider.calls.Load())
	assert.Equal(t, int64(2), cache.Resolutions())
	assert.True(t, cache.Contains("/a"))
}

func TestConfigCache_ExplicitRemovalIsNotEviction(t *testing.T) {
	logger, logs := captureLogger()
	cache, err := NewConfigCache(&fakeProvider{}, 2, logger)
	require.NoError(t, err)
	_, err = cache.Resolve(context.Background(), "/a")
	require.NoError(t, err)
	_, err = cache.Resolve(context.Background(), "/b")
	require.NoError(t, err)

	cache.Forget("/a")
	cache.Purge()

	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, int64(0), cache.Evictions())
	assert.NotContains(t, logs.String(), "evicted directory")
}

func TestConfigCache_FailedResolutionIsRetried(t *testing.T) {
	// Given a provider that fails once
	boom := errors.New("boom")
	provider := &fakeProvider{resolve: func(call int64, _ Directory) (SearchConfig, error) {
		if call == 1 {
			return SearchConfig{}, boom
		}
		return SearchConfig{}, nil
	}}
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	// When the first resolution fails
	_, err = cache.Resolve(context.Background(), "/proj")

	// Then the failure is wrapped and not cached
	require.Error(t, err)
	assert.True(t, errors.Is(err, fserrors.ErrConfigResolution))
	assert.ErrorIs(t, err, boom)
	assert.False(t, cache.Contains("/proj"))

	// And the next call starts a new resolution
	_, err = cache.Resolve(context.Background(), "/proj")
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestConfigCache_FailureBroadcastToAllWaiters(t *testing.T) {
	provider := &fakeProvider{
		release: make(chan struct{}),
		resolve: func(int64, Directory) (SearchConfig, error) {
			return SearchConfig{}, errors.New("no config")
		},
	}
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Resolve(context.Background(), "/proj")
			results <- err
		}()
	}
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(provider.release)
	wg.Wait()
	close(results)

	for err := range results {
		assert.True(t, errors.Is(err, fserrors.ErrConfigResolution))
	}
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestConfigCache_CancelledWaiterDoesNotCancelResolution(t *testing.T) {
	// Given a slow provider
	provider := &fakeProvider{release: make(chan struct{})}
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	// When the first caller gives up
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Resolve(ctx, "/proj")
		done <- err
	}()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// Then the shared resolution still completes for later callers
	close(provider.release)
	_, err = cache.Resolve(context.Background(), "/proj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestConfigCache_CustomWithoutSearchFuncFails(t *testing.T) {
	provider := ConfigProviderFunc(func(context.Context, Directory) (SearchConfig, error) {
		return SearchConfig{UseCustomSearch: true}, nil
	})
	cache, err := NewConfigCache(provider, 4, nil)
	require.NoError(t, err)

	_, err = cache.Resolve(context.Background(), "/proj")

	assert.True(t, errors.Is(err, fserrors.ErrConfigResolution))
}

func TestSelectProvider(t *testing.T) {
	custom := ConfigProviderFunc(func(context.Context, Directory) (SearchConfig, error) {
		return SearchConfig{}, nil
	})

	assert.IsType(t, DefaultProvider{}, SelectProvider(nil))
	assert.NotNil(t, SelectProvider(custom))
	_, isDefault := SelectProvider(custom).(DefaultProvider)
	assert.False(t, isDefault)
}
