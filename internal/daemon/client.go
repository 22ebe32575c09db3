package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/looter/nuclide/internal/search"
)

// Client talks to a running daemon. Each call opens one connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return err
	}
	if !res.Pong {
		return fmt.Errorf("ping failed: unexpected response")
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Query searches a single root.
func (c *Client) Query(ctx context.Context, params QueryParams) ([]search.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res QueryResult
	if err := c.call(ctx, MethodQuery, params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// QueryAll searches every root the daemon has a backend for.
func (c *Client) QueryAll(ctx context.Context, params QueryAllParams) ([]search.Result, error) {
	var res QueryResult
	if err := c.call(ctx, MethodQueryAll, params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Available reports whether root exists as a directory.
func (c *Client) Available(ctx context.Context, root string) (bool, error) {
	params := RootParams{Root: root}
	if err := params.Validate(); err != nil {
		return false, fmt.Errorf("invalid params: %w", err)
	}
	var res AvailableResult
	if err := c.call(ctx, MethodAvailable, params, &res); err != nil {
		return false, err
	}
	return res.Available, nil
}

// Remove disposes the daemon's backend for root.
func (c *Client) Remove(ctx context.Context, root string) error {
	params := RootParams{Root: root}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	var res RemoveResult
	return c.call(ctx, MethodRemove, params, &res)
}

// Roots lists roots with a live backend.
func (c *Client) Roots(ctx context.Context) ([]string, error) {
	var res RootsResult
	if err := c.call(ctx, MethodRoots, nil, &res); err != nil {
		return nil, err
	}
	return res.Roots, nil
}

// call performs one request/response exchange and decodes the result into out.
// A JSON-RPC error is returned as *Error.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock the exchange if ctx is cancelled first.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
