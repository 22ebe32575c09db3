package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Merge concatenates per-directory results and orders them by score
// descending. Equal scores fall back to Path, then Root, so the order is
// deterministic regardless of which directory answered first.
func Merge(groups ...[]Result) []Result {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	merged := make([]Result, 0, n)
	for _, g := range groups {
		merged = append(merged, g...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Root < b.Root
	})
	return merged
}

// Limit truncates results to at most n entries. n <= 0 means no limit.
func Limit(results []Result, n int) []Result {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}

// QueryFunc runs one single-directory query.
type QueryFunc func(ctx context.Context, req Request) ([]Result, error)

// QueryMany runs req against each of dirs through query and merges the
// results. A failing directory is logged and skipped; an error is returned
// only when every directory fails. With one directory its results are
// returned unchanged. parallelism <= 0 means unbounded.
func QueryMany(ctx context.Context, dirs []Directory, req Request, query QueryFunc, parallelism int, logger *slog.Logger) ([]Result, error) {
	switch len(dirs) {
	case 0:
		return []Result{}, nil
	case 1:
		req.RootDirectory = dirs[0]
		return query(ctx, req)
	}
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	lists := make([][]Result, len(dirs))
	errs := make([]error, len(dirs))

	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, dir := range dirs {
		r := req
		r.RootDirectory = dir
		g.Go(func() error {
			res, err := query(ctx, r)
			if err != nil {
				logger.Warn("skipping directory in multi-directory search",
					slog.String("directory", dir.String()),
					slog.String("error", err.Error()))
				errs[i] = fmt.Errorf("%s: %w", dir, err)
				return nil
			}
			lists[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(dirs) {
		return nil, errors.Join(errs...)
	}

	merged := Merge(lists...)
	logger.Debug("multi-directory search complete",
		slog.String("query", req.Query),
		slog.Int("directories", len(dirs)),
		slog.Int("failed", failed),
		slog.Int("results", len(merged)),
		slog.Duration("duration", time.Since(start)))
	return merged, nil
}
