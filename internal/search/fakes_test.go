package search

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger() (*slog.Logger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// fakeProvider counts resolutions and can block until released.
type fakeProvider struct {
	calls   atomic.Int64
	release chan struct{}
	resolve func(call int64, dir Directory) (SearchConfig, error)
}

func (p *fakeProvider) ResolveConfig(ctx context.Context, dir Directory) (SearchConfig, error) {
	n := p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.resolve != nil {
		return p.resolve(n, dir)
	}
	return SearchConfig{}, nil
}

// fakeBackend returns canned results and counts calls.
type fakeBackend struct {
	results    []Result
	queryErr   error
	disposeErr error

	queries  atomic.Int64
	disposes atomic.Int64
	lastOpts atomic.Pointer[QueryOptions]
}

func (b *fakeBackend) Query(_ context.Context, _ string, opts QueryOptions) ([]Result, error) {
	b.queries.Add(1)
	b.lastOpts.Store(&opts)
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	out := make([]Result, len(b.results))
	copy(out, b.results)
	return out, nil
}

func (b *fakeBackend) Dispose(context.Context) error {
	b.disposes.Add(1)
	return b.disposeErr
}

// fakeFactory hands out one fakeBackend per directory.
type fakeFactory struct {
	mu       sync.Mutex
	backends map[Directory]*fakeBackend
	errs     map[Directory]error

	calls   atomic.Int64
	release chan struct{}

	lastNames []string
	lastCtx   context.Context
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		backends: make(map[Directory]*fakeBackend),
		errs:     make(map[Directory]error),
	}
}

func (f *fakeFactory) set(dir Directory, b *fakeBackend) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[dir] = b
}

func (f *fakeFactory) backend(dir Directory) *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backends[dir]
}

func (f *fakeFactory) build(ctx context.Context, dir Directory, names []string) (Backend, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastNames = names
	f.lastCtx = ctx
	if err := f.errs[dir]; err != nil {
		return nil, err
	}
	b, ok := f.backends[dir]
	if !ok {
		b = &fakeBackend{}
		f.backends[dir] = b
	}
	return b, nil
}
