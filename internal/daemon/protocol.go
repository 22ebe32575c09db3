package daemon

import (
	"fmt"

	"github.com/looter/nuclide/internal/search"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing      = "ping"
	MethodStatus    = "status"
	MethodQuery     = "query"
	MethodQueryAll  = "query_all"
	MethodAvailable = "available"
	MethodRemove    = "remove"
	MethodRoots     = "roots"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeSearchFailed      = -32002
	ErrCodeDirectoryNotFound = -32003
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. Data carries the filesearch error
// code when one is known.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData is the structured part of an Error.
type ErrorData struct {
	ErrorCode string `json:"error_code,omitempty"`
}

// Error implements the error interface so clients can return it directly.
func (e *Error) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// QueryParams are the parameters for the query method.
type QueryParams struct {
	// Root is the project root to search (required).
	Root string `json:"root"`

	// QueryRoot restricts results to a subtree of Root.
	QueryRoot string `json:"query_root,omitempty"`

	Query        string   `json:"query"`
	IgnoredNames []string `json:"ignored_names,omitempty"`
	SmartCase    bool     `json:"smart_case,omitempty"`

	// Limit caps the result count. 0 uses the daemon's configured maximum.
	Limit int `json:"limit,omitempty"`
}

// Validate checks that required fields are present.
func (p *QueryParams) Validate() error {
	if p.Root == "" {
		return fmt.Errorf("root is required")
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return nil
}

// QueryAllParams are the parameters for the query_all method.
type QueryAllParams struct {
	Query        string   `json:"query"`
	IgnoredNames []string `json:"ignored_names,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// Validate normalises the params. Every field is optional.
func (p *QueryAllParams) Validate() error {
	if p.Limit < 0 {
		p.Limit = 0
	}
	return nil
}

// RootParams are the parameters for available and remove.
type RootParams struct {
	Root string `json:"root"`
}

// Validate checks that required fields are present.
func (p *RootParams) Validate() error {
	if p.Root == "" {
		return fmt.Errorf("root is required")
	}
	return nil
}

// QueryResult is the result of query and query_all.
type QueryResult struct {
	Results []search.Result `json:"results"`
}

// AvailableResult is the result of available.
type AvailableResult struct {
	Available bool `json:"available"`
}

// RemoveResult is the result of remove.
type RemoveResult struct {
	Removed bool `json:"removed"`
}

// RootsResult lists the roots with a live backend.
type RootsResult struct {
	Roots []string `json:"roots"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running       bool     `json:"running"`
	PID           int      `json:"pid"`
	Uptime        string   `json:"uptime"`
	Roots         []string `json:"roots"`
	CachedConfigs int      `json:"cached_configs"`
	CacheCapacity int      `json:"cache_capacity"`
	Evictions     int64    `json:"evictions"`
	Constructions int64    `json:"constructions"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
