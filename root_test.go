package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/config"
)

// newRootCmd binds flags with StringVar/BoolVar, which resets the global
// flag variables. Tests either run commands through SetArgs + Execute or
// call the helpers with explicit CLIFlags.

func TestBuildLogger_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfgLevel string
		flags    CLIFlags
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default info", "info", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config error", "error", CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose beats config", "error", CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 4},
		{"quiet beats config", "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Logging.LogLevel = tt.cfgLevel

			logger, closer, err := buildLogger(cfg, tt.flags)
			require.NoError(t, err)
			assert.Nil(t, closer)

			h := logger.Handler()
			assert.True(t, h.Enabled(context.Background(), tt.enabled))
			assert.False(t, h.Enabled(context.Background(), tt.disabled))
		})
	}
}

func TestBuildLogger_RotatedFile(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Logging.LogFile = filepath.Join(t.TempDir(), "logs", "docsync.log")
	cfg.Logging.LogFormat = "json"

	logger, closer, err := buildLogger(cfg, CLIFlags{Quiet: true})
	require.NoError(t, err)
	require.NotNil(t, closer)

	logger.Error("disk full", slog.String("path", "a.md"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.Logging.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"disk full"`)
	assert.Contains(t, string(data), `"path":"a.md"`)
}

func TestMustCLIContext(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { mustCLIContext(context.Background()) })

	cc := &CLIContext{Flags: CLIFlags{Quiet: true}}
	assert.Same(t, cc, mustCLIContext(withCLIContext(context.Background(), cc)))
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{
		"init", "login", "logout", "sync", "watch", "status", "projects",
		"project", "ask", "questions", "serve", "mcp", "config",
	} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	sub, _, err := cmd.Find([]string{"project", "delete"})
	require.NoError(t, err)
	assert.Equal(t, "delete", sub.Name())
}

func TestRootCmd_BrokenConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[filter]\nskip_dir = [\"x\"]\n"), 0o600))

	t.Setenv(config.EnvDataDir, t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "status", "--project", "p"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip_dirs", "did-you-mean suggestion")
}

func TestRootCmd_LogoutToleratesBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("nonsense = 1\n"), 0o600))

	t.Setenv(config.EnvDataDir, t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--quiet", "logout"})

	require.NoError(t, cmd.Execute())
}
