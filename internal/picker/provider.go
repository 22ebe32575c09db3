// Package picker is an interactive fuzzy file picker. It queries a Provider
// as the user types and returns the chosen result.
package picker

import (
	"context"

	"github.com/looter/nuclide/internal/search"
)

// Provider supplies results for a query.
type Provider interface {
	Fetch(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string, limit int) ([]search.Result, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return f(ctx, query, limit)
}
