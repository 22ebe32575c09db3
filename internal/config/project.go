package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// projectConfigNames are checked in order; .yaml takes precedence.
var projectConfigNames = []string{".filesearch.yaml", ".filesearch.yml"}

// DefaultCustomSearchTimeout bounds a custom search command when the
// project config does not set one.
const DefaultCustomSearchTimeout = 10 * time.Second

// ProjectConfig is the per-root .filesearch.yaml file.
type ProjectConfig struct {
	CustomSearch CustomSearchConfig `yaml:"custom_search" json:"custom_search"`

	// Path is the file the config was read from.
	Path string `yaml:"-" json:"-"`
}

// CustomSearchConfig names an external command that replaces the default
// file index for this root.
//
// The command is split like a POSIX shell word list. {query} and {root} are
// substituted in each argument. It must print a JSON array of
// {"path": "...", "score": 1.0} objects on stdout.
type CustomSearchConfig struct {
	Command string            `yaml:"command" json:"command"`
	Timeout string            `yaml:"timeout" json:"timeout"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
}

// Enabled reports whether the project supplies a custom search command.
func (c CustomSearchConfig) Enabled() bool {
	return c.Command != ""
}

// TimeoutDuration returns the parsed timeout, or DefaultCustomSearchTimeout.
func (c CustomSearchConfig) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return DefaultCustomSearchTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultCustomSearchTimeout
	}
	return d
}

// ProjectConfigPath returns the project config file in dir, or "" if there is none.
func ProjectConfigPath(dir string) string {
	for _, name := range projectConfigNames {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// LoadProject reads the project config for dir.
// Returns nil config and nil error if the root has no config file.
func LoadProject(dir string) (*ProjectConfig, error) {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config %s: %w", path, err)
	}

	var pc ProjectConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("failed to parse project config %s: %w", path, err)
	}
	pc.Path = path

	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project config %s: %w", path, err)
	}
	return &pc, nil
}

// Validate checks the project config.
func (p *ProjectConfig) Validate() error {
	if p.CustomSearch.Timeout != "" {
		d, err := time.ParseDuration(p.CustomSearch.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("custom_search.timeout must be a positive duration, got %q", p.CustomSearch.Timeout)
		}
	}
	return nil
}
