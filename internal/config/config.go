// Package config loads filesearch configuration.
//
// Settings are layered in order of increasing precedence: built-in defaults,
// the user config file, then FILESEARCH_* environment variables. Per-root
// project settings live in .filesearch.yaml and are loaded separately by
// LoadProject.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Custom provider modes for SearchConfig.CustomProvider.
const (
	CustomProviderProject = "project"
	CustomProviderNone    = "none"
)

// Config represents the complete filesearch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SearchConfig configures the search coordinator.
type SearchConfig struct {
	// ConfigCacheSize bounds the number of directories whose search
	// configuration is cached. Evictions are logged at error level.
	ConfigCacheSize int `yaml:"config_cache_size" json:"config_cache_size"`

	// MaxResults caps results per directory. 0 means unlimited.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// IgnoredNames are gitignore-style patterns excluded from default backends.
	// Values from the user config are appended to the defaults.
	IgnoredNames []string `yaml:"ignored_names" json:"ignored_names"`

	// CustomProvider selects the strategy provider: "project" reads
	// .filesearch.yaml in each root, "none" always uses the default backend.
	CustomProvider string `yaml:"custom_provider" json:"custom_provider"`

	// SmartCase makes queries containing upper-case letters case-sensitive.
	SmartCase bool `yaml:"smart_case" json:"smart_case"`
}

// IndexConfig configures the default file index backend.
type IndexConfig struct {
	Watch            bool   `yaml:"watch" json:"watch"`
	WatchDebounce    string `yaml:"watch_debounce" json:"watch_debounce"`
	RespectGitignore bool   `yaml:"respect_gitignore" json:"respect_gitignore"`
	FollowSymlinks   bool   `yaml:"follow_symlinks" json:"follow_symlinks"`
	MaxFiles         int    `yaml:"max_files" json:"max_files"`
}

// DaemonConfig configures the background daemon and its clients.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File overrides the default log path (~/.filesearch/logs/filesearch.log).
	File string `yaml:"file" json:"file"`
}

// defaultIgnoredNames are always excluded from default backends.
var defaultIgnoredNames = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	".DS_Store",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	stateDir := StateDir()
	return &Config{
		Version: 1,
		Search: SearchConfig{
			ConfigCacheSize: 20,
			MaxResults:      50,
			IgnoredNames:    slices.Clone(defaultIgnoredNames),
			CustomProvider:  CustomProviderProject,
			SmartCase:       true,
		},
		Index: IndexConfig{
			Watch:            true,
			WatchDebounce:    "100ms",
			RespectGitignore: true,
			FollowSymlinks:   false,
			MaxFiles:         200000,
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(stateDir, "daemon.sock"),
			PIDPath:    filepath.Join(stateDir, "daemon.pid"),
			Timeout:    "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// StateDir returns ~/.filesearch, where the daemon keeps its socket, pid and logs.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".filesearch")
	}
	return filepath.Join(home, ".filesearch")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/filesearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/filesearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filesearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "filesearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "filesearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration:
//  1. Hardcoded defaults
//  2. User config (~/.config/filesearch/config.yaml)
//  3. Environment variables (FILESEARCH_*)
func Load() (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadUserConfig loads only the user configuration file on top of defaults.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays a YAML file onto c. Keys absent from the file keep
// their current values; ignored_names is appended rather than replaced.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	base := c.Search.IgnoredNames
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Search.IgnoredNames = mergeNames(base, c.Search.IgnoredNames)
	return nil
}

// applyEnvOverrides applies FILESEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FILESEARCH_CONFIG_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.ConfigCacheSize = n
		}
	}
	if v := os.Getenv("FILESEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("FILESEARCH_IGNORED_NAMES"); v != "" {
		c.Search.IgnoredNames = mergeNames(c.Search.IgnoredNames, strings.Split(v, ","))
	}
	if v := os.Getenv("FILESEARCH_CUSTOM_PROVIDER"); v != "" {
		c.Search.CustomProvider = strings.ToLower(v)
	}
	if v := os.Getenv("FILESEARCH_SMART_CASE"); v != "" {
		c.Search.SmartCase = parseBool(v)
	}
	if v := os.Getenv("FILESEARCH_WATCH"); v != "" {
		c.Index.Watch = parseBool(v)
	}
	if v := os.Getenv("FILESEARCH_SOCKET_PATH"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("FILESEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FILESEARCH_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// mergeNames appends extra to base, dropping blanks and duplicates.
func mergeNames(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.ConfigCacheSize <= 0 {
		return fmt.Errorf("search.config_cache_size must be positive, got %d", c.Search.ConfigCacheSize)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	switch strings.ToLower(c.Search.CustomProvider) {
	case CustomProviderProject, CustomProviderNone:
	default:
		return fmt.Errorf("search.custom_provider must be 'project' or 'none', got %s", c.Search.CustomProvider)
	}

	if c.Index.MaxFiles < 0 {
		return fmt.Errorf("index.max_files must be non-negative, got %d", c.Index.MaxFiles)
	}
	if _, err := time.ParseDuration(c.Index.WatchDebounce); err != nil {
		return fmt.Errorf("index.watch_debounce is not a duration: %w", err)
	}

	if c.Daemon.SocketPath == "" {
		return fmt.Errorf("daemon.socket_path cannot be empty")
	}
	if d, err := time.ParseDuration(c.Daemon.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("daemon.timeout must be a positive duration, got %q", c.Daemon.Timeout)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WatchDebounce returns the parsed index.watch_debounce.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Index.WatchDebounce)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// DaemonTimeout returns the parsed daemon.timeout.
func (c *Config) DaemonTimeout() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// project config file. Returns the absolute startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !dirExists(absDir) {
		return "", fmt.Errorf("directory does not exist: %s", absDir)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		for _, name := range projectConfigNames {
			if fileExists(filepath.Join(currentDir, name)) {
				return currentDir, nil
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
