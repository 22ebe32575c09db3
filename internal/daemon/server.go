package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	fserrors "github.com/looter/nuclide/internal/errors"
	"github.com/looter/nuclide/internal/search"
)

// RequestHandler serves the search methods.
type RequestHandler interface {
	Query(ctx context.Context, params QueryParams) ([]search.Result, error)
	QueryAll(ctx context.Context, params QueryAllParams) ([]search.Result, error)
	Available(ctx context.Context, params RootParams) (bool, error)
	Remove(ctx context.Context, params RootParams) error
	Roots() []string
	Status() StatusResult
}

// Server listens on a Unix socket and handles one request per connection.
type Server struct {
	socketPath  string
	connTimeout time.Duration
	logger      *slog.Logger
	listener    net.Listener
	handler     RequestHandler
	started     time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path cannot be empty")
	}
	return &Server{
		socketPath:  socketPath,
		connTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}, nil
}

// SetHandler sets the request handler for search operations.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// SetLogger replaces the default logger.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetConnTimeout bounds how long one connection may take.
func (s *Server) SetConnTimeout(d time.Duration) {
	if d > 0 {
		s.connTimeout = d
	}
}

// ListenAndServe starts the server and blocks until ctx is cancelled or
// Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A socket left by a crashed daemon would make Listen fail.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server listening", slog.String("socket", s.socketPath))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.shutdown = true
			s.mu.Unlock()
			_ = listener.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection reads one request and writes one response.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.connTimeout)); err != nil {
		s.logger.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	if err := encoder.Encode(resp); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}

	attrs := []any{slog.String("method", req.Method), slog.Duration("duration", time.Since(start))}
	if resp.Error != nil {
		attrs = append(attrs, slog.Int("code", resp.Error.Code), slog.String("error", resp.Error.Message))
	}
	s.logger.Debug("handled request", attrs...)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status())
	}

	if s.handler == nil {
		if isKnownMethod(req.Method) {
			return NewErrorResponse(req.ID, ErrCodeInternalError, "no search handler configured")
		}
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}

	switch req.Method {
	case MethodQuery:
		var p QueryParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		results, err := s.handler.Query(ctx, p)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return NewSuccessResponse(req.ID, QueryResult{Results: nonNil(results)})

	case MethodQueryAll:
		var p QueryAllParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		results, err := s.handler.QueryAll(ctx, p)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return NewSuccessResponse(req.ID, QueryResult{Results: nonNil(results)})

	case MethodAvailable:
		var p RootParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		ok, err := s.handler.Available(ctx, p)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return NewSuccessResponse(req.ID, AvailableResult{Available: ok})

	case MethodRemove:
		var p RootParams
		if resp, ok := decodeParams(req, &p, p.Validate); !ok {
			return resp
		}
		if err := s.handler.Remove(ctx, p); err != nil {
			return s.errorResponse(req, err)
		}
		return NewSuccessResponse(req.ID, RemoveResult{Removed: true})

	case MethodRoots:
		return NewSuccessResponse(req.ID, RootsResult{Roots: nonNil(s.handler.Roots())})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func isKnownMethod(m string) bool {
	switch m {
	case MethodQuery, MethodQueryAll, MethodAvailable, MethodRemove, MethodRoots:
		return true
	}
	return false
}

// decodeParams round-trips req.Params into dst and validates it.
func decodeParams(req Request, dst any, validate func() error) (Response, bool) {
	data, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	if err := validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error()), false
	}
	return Response{}, true
}

// errorResponse maps a handler error to a JSON-RPC error and logs it.
func (s *Server) errorResponse(req Request, err error) Response {
	attrs := []any{slog.String("method", req.Method)}
	for k, v := range fserrors.FormatForLog(err) {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.Warn("request failed", attrs...)

	code := ErrCodeSearchFailed
	switch {
	case errors.Is(err, fserrors.ErrDirectoryNotFound):
		code = ErrCodeDirectoryNotFound
	case errors.Is(err, fserrors.ErrInvalidInput):
		code = ErrCodeInvalidParams
	}

	resp := NewErrorResponse(req.ID, code, err.Error())
	if c := fserrors.GetCode(err); c != "" {
		resp.Error.Data = &ErrorData{ErrorCode: c}
	}
	return resp
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// status returns the current server status.
func (s *Server) status() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Roots:   []string{},
	}
	if s.handler != nil {
		hs := s.handler.Status()
		status.Roots = nonNil(hs.Roots)
		status.CachedConfigs = hs.CachedConfigs
		status.CacheCapacity = hs.CacheCapacity
		status.Evictions = hs.Evictions
		status.Constructions = hs.Constructions
	}
	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		return l.Close()
	}
	return nil
}
