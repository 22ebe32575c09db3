package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/looter/nuclide/internal/search"
)

// testSocketPath creates a unique socket path that's short enough for Unix sockets.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join("/tmp", fmt.Sprintf("filesearch-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(socketPath) })
	return socketPath
}

// fakeHandler records calls and returns canned answers.
type fakeHandler struct {
	mu        sync.Mutex
	lastQuery QueryParams
	lastAll   QueryAllParams
	removed   []string

	results []search.Result
	err     error
	avail   bool
	roots   []string
}

func (h *fakeHandler) Query(_ context.Context, p QueryParams) ([]search.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastQuery = p
	return h.results, h.err
}

func (h *fakeHandler) QueryAll(_ context.Context, p QueryAllParams) ([]search.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAll = p
	return h.results, h.err
}

func (h *fakeHandler) Available(context.Context, RootParams) (bool, error) {
	return h.avail, h.err
}

func (h *fakeHandler) Remove(_ context.Context, p RootParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, p.Root)
	return h.err
}

func (h *fakeHandler) Roots() []string { return h.roots }

func (h *fakeHandler) Status() StatusResult {
	return StatusResult{Roots: h.roots, CachedConfigs: 2, CacheCapacity: 20}
}

// startServer runs srv until the test ends and waits for its socket.
func startServer(t *testing.T, h RequestHandler) (*Server, string) {
	t.Helper()
	socketPath := testSocketPath(t)
	srv, err := NewServer(socketPath)
	require.NoError(t, err)
	if h != nil {
		srv.SetHandler(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitForSocket(t, socketPath)
	return srv, socketPath
}

func waitForSocket(t *testing.T, socketPath string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

// roundTrip sends one raw request and decodes the response.
func roundTrip(t *testing.T, socketPath string, req any) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(req))
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}
