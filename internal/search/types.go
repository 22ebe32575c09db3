package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	fserrors "github.com/looter/nuclide/internal/errors"
)

// ErrBackendDisposed is returned by a Handle queried after disposal.
var ErrBackendDisposed = errors.New("search backend disposed")

// Directory identifies a project root. It is an absolute, cleaned path with
// symlinks resolved when the path exists, so two spellings of the same root
// compare equal.
type Directory string

// NewDirectory canonicalises path into a Directory.
func NewDirectory(path string) (Directory, error) {
	if path == "" {
		return "", fserrors.ValidationError("directory must not be empty", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fserrors.ValidationError("resolve directory "+path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if !os.IsNotExist(err) {
		return "", fserrors.ValidationError("resolve directory "+path, err)
	}
	return Directory(filepath.Clean(abs)), nil
}

// MustDirectory is NewDirectory for paths known to be valid.
func MustDirectory(path string) Directory {
	d, err := NewDirectory(path)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the directory path.
func (d Directory) String() string { return string(d) }

// Result is one matched file.
type Result struct {
	// Path is relative to Root.
	Path  string  `json:"path"`
	Score float64 `json:"score"`
	// MatchIndexes are rune offsets into Path that matched the query.
	MatchIndexes []int `json:"match_indexes,omitempty"`
	// Root is the directory the result came from. Filled by the Coordinator.
	Root Directory `json:"root,omitempty"`
}

// QueryOptions are passed through to a backend query.
type QueryOptions struct {
	// QueryRoot restricts results to a subtree, absolute or relative to the root.
	QueryRoot string
	// SmartCase makes a query with an upper-case letter case-sensitive.
	SmartCase bool
}

// Request is a single-directory query.
type Request struct {
	RootDirectory Directory
	QueryRoot     string
	Query         string
	IgnoredNames  []string
	SmartCase     bool
}

// CustomSearchFunc runs a project-supplied search for dir.
type CustomSearchFunc func(ctx context.Context, query string, dir Directory) ([]Result, error)

// SearchConfig is the resolved strategy for a directory. Immutable once resolved.
type SearchConfig struct {
	UseCustomSearch bool
	// Search is set when UseCustomSearch is true.
	Search CustomSearchFunc
}

// Backend is a live search engine scoped to one directory.
type Backend interface {
	Query(ctx context.Context, query string, opts QueryOptions) ([]Result, error)
	Dispose(ctx context.Context) error
}

// BackendFactory builds the default backend for dir, excluding ignoredNames.
type BackendFactory func(ctx context.Context, dir Directory, ignoredNames []string) (Backend, error)
