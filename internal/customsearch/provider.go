package customsearch

import (
	"context"
	"log/slog"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/search"
)

// Provider selects a custom search for roots whose project config names a
// command, and the default backend for all others.
type Provider struct {
	logger *slog.Logger
	load   func(dir string) (*config.ProjectConfig, error)
}

var _ search.ConfigProvider = (*Provider)(nil)

// NewProvider returns a Provider reading .filesearch.yaml files.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{logger: logger, load: config.LoadProject}
}

// ResolveConfig reads the project config for dir. A malformed config is an
// error; a missing one selects the default backend.
func (p *Provider) ResolveConfig(_ context.Context, dir search.Directory) (search.SearchConfig, error) {
	pc, err := p.load(dir.String())
	if err != nil {
		return search.SearchConfig{}, err
	}
	if pc == nil || !pc.CustomSearch.Enabled() {
		return search.SearchConfig{UseCustomSearch: false}, nil
	}

	cmd, err := ParseCommand(pc.CustomSearch)
	if err != nil {
		return search.SearchConfig{}, err
	}

	p.logger.Info("using custom search",
		slog.String("directory", dir.String()),
		slog.String("config", pc.Path))
	return search.SearchConfig{UseCustomSearch: true, Search: cmd.Run}, nil
}

// ForConfig returns the provider selected by the user's
// search.custom_provider setting, or nil for the default provider.
func ForConfig(cfg *config.Config, logger *slog.Logger) search.ConfigProvider {
	if cfg.Search.CustomProvider == config.CustomProviderNone {
		return nil
	}
	return NewProvider(logger)
}
