package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looter/nuclide/internal/search"
)

func TestRequest_JSON(t *testing.T) {
	req := Request{
		JSONRPC: "2.0",
		Method:  MethodQuery,
		Params: QueryParams{
			Root:      "/path/to/project",
			QueryRoot: "src",
			Query:     "main",
			SmartCase: true,
		},
		ID: "req-1",
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	params := raw["params"].(map[string]any)
	assert.Equal(t, "/path/to/project", params["root"])
	assert.Equal(t, "src", params["query_root"])
	assert.Equal(t, true, params["smart_case"])
	assert.NotContains(t, params, "limit")

	var decoded Request
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.0", decoded.JSONRPC)
	assert.Equal(t, MethodQuery, decoded.Method)
	assert.Equal(t, "req-1", decoded.ID)
}

func TestResponse_Success(t *testing.T) {
	resp := NewSuccessResponse("req-1", QueryResult{Results: []search.Result{{Path: "a.go", Score: 3}}})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
}

func TestResponse_Error(t *testing.T) {
	resp := NewErrorResponse("req-1", ErrCodeInvalidParams, "invalid query")

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, "invalid query", resp.Error.Message)
	assert.Nil(t, resp.Error.Data)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"data"`)
}

func TestError_Error(t *testing.T) {
	err := &Error{Code: ErrCodeDirectoryNotFound, Message: "directory not found: /x"}
	assert.Equal(t, "daemon error -32003: directory not found: /x", err.Error())
}

func TestQueryParams_Validate(t *testing.T) {
	tests := []struct {
		name      string
		params    QueryParams
		wantErr   bool
		wantLimit int
	}{
		{name: "valid", params: QueryParams{Root: "/p", Query: "x", Limit: 5}, wantLimit: 5},
		{name: "empty query is allowed", params: QueryParams{Root: "/p"}},
		{name: "negative limit reset", params: QueryParams{Root: "/p", Limit: -3}},
		{name: "missing root", params: QueryParams{Query: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, tt.params.Limit)
		})
	}
}

func TestQueryAllParams_Validate(t *testing.T) {
	p := QueryAllParams{Limit: -1}
	require.NoError(t, p.Validate())
	assert.Zero(t, p.Limit)
}

func TestRootParams_Validate(t *testing.T) {
	assert.NoError(t, (&RootParams{Root: "/p"}).Validate())
	assert.Error(t, (&RootParams{}).Validate())
}

func TestStatusResult_JSON(t *testing.T) {
	status := StatusResult{
		Running:       true,
		PID:           42,
		Uptime:        "1m0s",
		Roots:         []string{"/a"},
		CachedConfigs: 1,
		CacheCapacity: 20,
		Evictions:     3,
		Constructions: 4,
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded StatusResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, status, decoded)
	assert.Contains(t, string(data), `"cache_capacity":20`)
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, -32700, ErrCodeParseError)
	assert.Equal(t, -32600, ErrCodeInvalidRequest)
	assert.Equal(t, -32601, ErrCodeMethodNotFound)
	assert.Equal(t, -32602, ErrCodeInvalidParams)
	assert.Equal(t, -32603, ErrCodeInternalError)
	assert.Equal(t, -32002, ErrCodeSearchFailed)
	assert.Equal(t, -32003, ErrCodeDirectoryNotFound)
}
