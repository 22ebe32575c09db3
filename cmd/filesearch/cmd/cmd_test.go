package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/looter/nuclide/internal/search"
)

// isolate points HOME and XDG_CONFIG_HOME at temp dirs so tests see default
// config and no running daemon.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, key := range []string{
		"FILESEARCH_CONFIG_CACHE_SIZE", "FILESEARCH_MAX_RESULTS", "FILESEARCH_IGNORED_NAMES",
		"FILESEARCH_CUSTOM_PROVIDER", "FILESEARCH_SMART_CASE", "FILESEARCH_WATCH",
		"FILESEARCH_SOCKET_PATH", "FILESEARCH_LOG_LEVEL", "FILESEARCH_LOG_FILE",
	} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// newProject writes files under a temp dir and returns its canonical root.
func newProject(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return search.MustDirectory(dir).String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
