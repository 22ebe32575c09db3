// Package customsearch runs a project-supplied search command in place of
// the default file index.
//
// A root opts in with a .filesearch.yaml file:
//
//	custom_search:
//	  command: rg --files --glob '*{query}*' {root}
//	  timeout: 5s
//
// The command must print a JSON array of {"path": "...", "score": 1.0}
// objects.
package customsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/looter/nuclide/internal/config"
	fserrors "github.com/looter/nuclide/internal/errors"
	"github.com/looter/nuclide/internal/search"
)

const (
	placeholderQuery = "{query}"
	placeholderRoot  = "{root}"

	// stderrLimit bounds how much stderr is kept for error messages.
	stderrLimit = 4 << 10

	// waitDelay bounds how long a killed command's children may hold its pipes.
	waitDelay = time.Second
)

// Command is a parsed custom search command.
type Command struct {
	argv    []string
	timeout time.Duration
	env     []string
}

// hit is one element of the command's JSON output.
type hit struct {
	Path         string  `json:"path"`
	Score        float64 `json:"score"`
	MatchIndexes []int   `json:"match_indexes,omitempty"`
}

// ParseCommand splits cfg.Command into an argument list. No shell is involved.
func ParseCommand(cfg config.CustomSearchConfig) (*Command, error) {
	argv, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("split custom search command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("custom search command is empty")
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return &Command{
		argv:    argv,
		timeout: cfg.TimeoutDuration(),
		env:     env,
	}, nil
}

// Args returns the argument list with placeholders substituted.
func (c *Command) Args(query string, dir search.Directory) []string {
	r := strings.NewReplacer(placeholderQuery, query, placeholderRoot, dir.String())
	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		args[i] = r.Replace(a)
	}
	return args
}

// Run executes the command in dir and decodes its results. Absolute result
// paths under dir are made relative to it.
func (c *Command) Run(ctx context.Context, query string, dir search.Directory) ([]search.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := c.Args(query, dir)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir.String()
	cmd.Env = append(os.Environ(), c.env...)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, commandError(dir, fmt.Sprintf("timed out after %s", c.timeout), err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := "command failed"
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += ": " + s
		}
		return nil, commandError(dir, msg, err)
	}

	var hits []hit
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &hits); err != nil {
		return nil, commandError(dir, "output is not a JSON array of results", err)
	}

	results := make([]search.Result, 0, len(hits))
	for i, h := range hits {
		if h.Path == "" {
			return nil, commandError(dir, fmt.Sprintf("result %d has no path", i), nil)
		}
		results = append(results, search.Result{
			Path:         relativeTo(dir, h.Path),
			Score:        h.Score,
			MatchIndexes: h.MatchIndexes,
		})
	}
	return results, nil
}

func relativeTo(dir search.Directory, p string) string {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(dir.String(), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func commandError(dir search.Directory, msg string, cause error) error {
	return fserrors.New(fserrors.ErrCodeCustomSearch, "custom search "+msg, cause).
		WithDetail("directory", dir.String())
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
