package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looter/nuclide/internal/config"
	"github.com/looter/nuclide/internal/daemon"
	fserrors "github.com/looter/nuclide/internal/errors"
	"github.com/looter/nuclide/pkg/version"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"search", "pick", "daemon", "roots", "remove", "available", "config", "logs", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
}

func TestAvailableCmd(t *testing.T) {
	isolate(t)
	root := newProject(t, "a.go")

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{name: "existing directory", dir: root, want: "true\n"},
		{name: "missing directory", dir: filepath.Join(root, "gone"), want: "false\n"},
		{name: "regular file", dir: filepath.Join(root, "a.go"), want: "false\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "available", tt.dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDaemonOnlyCmds_WithoutDaemon(t *testing.T) {
	isolate(t)
	root := newProject(t)

	for _, args := range [][]string{{"roots"}, {"roots", "--json"}, {"remove", root}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, args...)
			assert.ErrorIs(t, err, errDaemonNotRunning)
		})
	}
}

func TestDaemonStatusCmd_NotRunning(t *testing.T) {
	isolate(t)

	out, err := execute(t, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	out, err = execute(t, "daemon", "status", "--json")
	require.NoError(t, err)
	var status daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Running)
	assert.Empty(t, status.Roots)
}

func TestDaemonStopCmd_StalePID(t *testing.T) {
	// Given: a pid file left by a daemon that no longer exists
	isolate(t)
	cfg := config.NewConfig()
	pidPath := daemon.FromConfig(cfg).PIDPath
	require.NoError(t, os.MkdirAll(filepath.Dir(pidPath), 0o755))
	require.NoError(t, os.WriteFile(pidPath, []byte("4194304\n"), 0o644))

	// When: stopping
	out, err := execute(t, "daemon", "stop")

	// Then: it reports not running and clears the stale file
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
	assert.NoFileExists(t, pidPath)
}

func TestConfigPathCmd(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath()+"\n", out)
}

func TestConfigInitCmd(t *testing.T) {
	// Given: no user config
	isolate(t)
	path := config.GetUserConfigPath()

	// When: init runs
	out, err := execute(t, "config", "init")

	// Then: a default config is written
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote user configuration")
	require.FileExists(t, path)
	loaded, err := config.LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search.MaxResults, loaded.Search.MaxResults)

	// When: init runs again without --force
	out, err = execute(t, "config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	backups, _ := filepath.Glob(path + config.BackupSuffix + ".*")
	assert.Empty(t, backups)
}

func TestConfigInitCmd_ForceKeepsValues(t *testing.T) {
	isolate(t)
	path := config.GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("search:\n  max_results: 7\n"), 0o644))

	out, err := execute(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")

	backups, err := filepath.Glob(path + config.BackupSuffix + ".*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "search:\n  max_results: 7\n", string(data))

	loaded, err := config.LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.MaxResults)
	assert.Equal(t, config.NewConfig().Search.ConfigCacheSize, loaded.Search.ConfigCacheSize)
}

func TestConfigShowCmd(t *testing.T) {
	isolate(t)

	t.Run("defaults as yaml", func(t *testing.T) {
		out, err := execute(t, "config", "show", "--source", "defaults")
		require.NoError(t, err)
		assert.Contains(t, out, "max_results:")
		assert.Contains(t, out, "node_modules")
	})

	t.Run("merged as json honours env", func(t *testing.T) {
		t.Setenv("FILESEARCH_MAX_RESULTS", "12")
		out, err := execute(t, "config", "show", "--json")
		require.NoError(t, err)

		var cfg config.Config
		require.NoError(t, json.Unmarshal([]byte(out), &cfg))
		assert.Equal(t, 12, cfg.Search.MaxResults)
	})

	t.Run("user without file", func(t *testing.T) {
		out, err := execute(t, "config", "show", "--source", "user")
		require.NoError(t, err)
		assert.Contains(t, out, "No user configuration file found")
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := execute(t, "config", "show", "--source", "remote")
		assert.ErrorContains(t, err, "unknown source")
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "filesearch")
}

func TestLogsCmd(t *testing.T) {
	isolate(t)
	logFile := filepath.Join(t.TempDir(), "filesearch.log")
	lines := []string{
		`{"time":"2026-01-02T15:04:05Z","level":"INFO","msg":"backend constructed","directory":"/a"}`,
		`{"time":"2026-01-02T15:04:06Z","level":"WARN","msg":"skipping root","root":"/b"}`,
		`{"time":"2026-01-02T15:04:07Z","level":"ERROR","msg":"config cache eviction","directory":"/c"}`,
	}
	require.NoError(t, os.WriteFile(logFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all entries",
			args: []string{"--no-color"},
			want: []string{"backend constructed", "skipping root", "config cache eviction"},
		},
		{
			name:    "level filter",
			args:    []string{"--no-color", "--level", "warn"},
			want:    []string{"skipping root", "config cache eviction"},
			notWant: []string{"backend constructed"},
		},
		{
			name:    "grep filter",
			args:    []string{"--no-color", "--grep", "evict"},
			want:    []string{"config cache eviction"},
			notWant: []string{"skipping root"},
		},
		{
			name:    "last line",
			args:    []string{"--no-color", "-n", "1"},
			want:    []string{"config cache eviction"},
			notWant: []string{"backend constructed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--file", logFile}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestLogsCmd_Errors(t *testing.T) {
	isolate(t)

	_, err := execute(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	assert.ErrorContains(t, err, "log file not found")

	logFile := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(logFile, nil, 0o644))
	_, err = execute(t, "logs", "--file", logFile, "--grep", "(")
	assert.ErrorContains(t, err, "invalid --grep pattern")
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{name: "nil", err: nil},
		{name: "cancelled", err: errCancelled},
		{name: "plain", err: errDaemonNotRunning, want: []string{"Error: daemon is not running"}},
		{
			name: "coded",
			err:  fmt.Errorf("search failed: %w", fserrors.DirectoryNotFoundError("/gone")),
			want: []string{"Error:", "Code: " + fserrors.ErrCodeDirectoryNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			if len(tt.want) == 0 {
				assert.Empty(t, buf.String())
				return
			}
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
