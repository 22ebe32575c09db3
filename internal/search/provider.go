package search

import "context"

// ConfigProvider resolves the search strategy for a directory.
type ConfigProvider interface {
	ResolveConfig(ctx context.Context, dir Directory) (SearchConfig, error)
}

// ConfigProviderFunc adapts a function to ConfigProvider.
type ConfigProviderFunc func(ctx context.Context, dir Directory) (SearchConfig, error)

// ResolveConfig calls f.
func (f ConfigProviderFunc) ResolveConfig(ctx context.Context, dir Directory) (SearchConfig, error) {
	return f(ctx, dir)
}

// DefaultProvider always selects the default backend.
type DefaultProvider struct{}

// ResolveConfig returns {UseCustomSearch: false}.
func (DefaultProvider) ResolveConfig(context.Context, Directory) (SearchConfig, error) {
	return SearchConfig{UseCustomSearch: false}, nil
}

// SelectProvider returns custom when one is available and DefaultProvider
// otherwise. The choice is made once, when the Coordinator is built.
func SelectProvider(custom ConfigProvider) ConfigProvider {
	if custom == nil {
		return DefaultProvider{}
	}
	return custom
}
