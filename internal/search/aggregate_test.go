package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fserrors "github.com/looter/nuclide/internal/errors"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name   string
		groups [][]Result
		want   []Result
	}{
		{
			name:   "no groups",
			groups: nil,
			want:   []Result{},
		},
		{
			name: "orders by score across directories",
			groups: [][]Result{
				{{Path: "a", Score: 10, Root: "/one"}},
				{{Path: "b", Score: 20, Root: "/two"}},
				{{Path: "c", Score: 5, Root: "/three"}},
			},
			want: []Result{
				{Path: "b", Score: 20, Root: "/two"},
				{Path: "a", Score: 10, Root: "/one"},
				{Path: "c", Score: 5, Root: "/three"},
			},
		},
		{
			name: "ties break on path then root",
			groups: [][]Result{
				{{Path: "z.go", Score: 7, Root: "/b"}, {Path: "main.go", Score: 7, Root: "/b"}},
				{{Path: "main.go", Score: 7, Root: "/a"}},
			},
			want: []Result{
				{Path: "main.go", Score: 7, Root: "/a"},
				{Path: "main.go", Score: 7, Root: "/b"},
				{Path: "z.go", Score: 7, Root: "/b"},
			},
		},
		{
			name: "duplicates are kept",
			groups: [][]Result{
				{{Path: "x", Score: 1, Root: "/r"}},
				{{Path: "x", Score: 1, Root: "/r"}},
			},
			want: []Result{
				{Path: "x", Score: 1, Root: "/r"},
				{Path: "x", Score: 1, Root: "/r"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.groups...))
		})
	}
}

func TestLimit(t *testing.T) {
	rs := []Result{{Path: "a"}, {Path: "b"}, {Path: "c"}}

	assert.Len(t, Limit(rs, 0), 3)
	assert.Len(t, Limit(rs, 2), 2)
	assert.Len(t, Limit(rs, 10), 3)
}

func TestQueryMany(t *testing.T) {
	answers := map[Directory][]Result{
		"/a": {{Path: "x", Score: 10, Root: "/a"}, {Path: "y", Score: 1, Root: "/a"}},
		"/b": {{Path: "z", Score: 20, Root: "/b"}, {Path: "x", Score: 10, Root: "/b"}},
	}
	query := func(_ context.Context, req Request) ([]Result, error) {
		// The first directory answers last so completion order differs from input order.
		if req.RootDirectory == "/a" {
			time.Sleep(10 * time.Millisecond)
		}
		if res, ok := answers[req.RootDirectory]; ok {
			return res, nil
		}
		return nil, fserrors.DirectoryNotFoundError(req.RootDirectory.String())
	}

	tests := []struct {
		name    string
		dirs    []Directory
		want    []Result
		wantErr bool
	}{
		{name: "no directories", dirs: nil, want: []Result{}},
		{
			name: "single directory unchanged",
			dirs: []Directory{"/a"},
			want: answers["/a"],
		},
		{
			name: "merged with ties by root",
			dirs: []Directory{"/a", "/b"},
			want: []Result{
				{Path: "z", Score: 20, Root: "/b"},
				{Path: "x", Score: 10, Root: "/a"},
				{Path: "x", Score: 10, Root: "/b"},
				{Path: "y", Score: 1, Root: "/a"},
			},
		},
		{
			name: "failing directory skipped",
			dirs: []Directory{"/missing", "/b"},
			want: answers["/b"],
		},
		{name: "single failing directory", dirs: []Directory{"/missing"}, wantErr: true},
		{name: "every directory fails", dirs: []Directory{"/missing", "/gone"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QueryMany(context.Background(), tt.dirs, Request{Query: "q"}, query, 0, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, fserrors.ErrDirectoryNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryMany_PassesRequestPerDirectory(t *testing.T) {
	seen := make(chan Request, 2)
	query := func(_ context.Context, req Request) ([]Result, error) {
		seen <- req
		return nil, nil
	}

	_, err := QueryMany(context.Background(), []Directory{"/a", "/b"},
		Request{Query: "q", QueryRoot: "src", IgnoredNames: []string{"vendor"}, SmartCase: true}, query, 1, nil)
	require.NoError(t, err)
	close(seen)

	roots := []Directory{}
	for req := range seen {
		assert.Equal(t, "q", req.Query)
		assert.Equal(t, "src", req.QueryRoot)
		assert.Equal(t, []string{"vendor"}, req.IgnoredNames)
		assert.True(t, req.SmartCase)
		roots = append(roots, req.RootDirectory)
	}
	assert.ElementsMatch(t, []Directory{"/a", "/b"}, roots)
}
