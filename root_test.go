package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

		"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/appdist/internal/config"
)

// newRootCmd binds flags with StringVar/BoolVar, which resets the global
// flag variables. Tests that run commands go through SetArgs + Execute and
// must not run in parallel.

func resolvedWithLevel(level string) *config.Resolved {
	return &config.Resolved{Config: config.Config{
		LoggingConfig: config.LoggingConfig{LogLevel: level, LogFormat: "text"},
	}}
}

func TestBuildLogger_Levels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     *config.Resolved
		flags   CLIFlags
		enabled slog.Level
		blocked slog.Level
	}{
		{name: "nil config", cfg: nil, enabled: slog.LevelInfo, blocked: slog.LevelDebug},
		{name: "config debug", cfg: resolvedWithLevel("debug"), enabled: slog.LevelDebug, blocked: slog.LevelDebug - 1},
		{name: "config warn", cfg: resolvedWithLevel("warn"), enabled: slog.LevelWarn, blocked: slog.LevelInfo},
		{name: "verbose wins", cfg: resolvedWithLevel("error"), flags: CLIFlags{Verbose: true}, enabled: slog.LevelDebug, blocked: slog.LevelDebug - 1},
		{name: "quiet wins", cfg: resolvedWithLevel("debug"), flags: CLIFlags{Quiet: true}, enabled: slog.LevelError, blocked: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger := buildLogger(tt.cfg, tt.flags, os.Stderr)
			assert.True(t, logger.Handler().Enabled(ctx, tt.enabled))
			assert.False(t, logger.Handler().Enabled(ctx, tt.blocked))
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	t.Parallel()

	cfg := resolvedWithLevel("info")
	cfg.LogFormat = "json"

	_, ok := buildLogger(cfg, CLIFlags{}, os.Stderr).Handler().(*slog.JSONHandler)
	assert.True(t, ok)

	cfg.LogFormat = "text"

	_, ok = buildLogger(cfg, CLIFlags{}, os.Stderr).Handler().(*slog.TextHandler)
	assert.True(t, ok)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"forms", "session", "submit", "map", "app", "history", "serve", "reload", "config"}
	for _, name := range expected {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "employee-id", "base-url", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q", name)
	}
}

func TestLoadConfig_AppliesFlags(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:1", "")

	out, err := runCLI(t, cfgPath, "--employee-id", "2002", "--json", "config", "show")
	require.NoError(t, err)

	var shown struct {
		Path    string `json:"config_path"`
		Session struct {
			EmployeeID string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))

	assert.Equal(t, cfgPath, shown.Path)
	assert.Equal(t, "2002", shown.Session.EmployeeID)

	out, err = runCLI(t, cfgPath, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "config.toml", "log_levle = \"debug\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "config", "path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean")
}

func TestLoadConfig_DryRunFlag(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://localhost:1", "")

	cmd := newRootCmd()

	sub, _, err := cmd.Find([]string{"submit"})
	require.NoError(t, err)
	require.NoError(t, sub.Flags().Set("dry-run", "true"))

	flagConfigPath = cfgPath
	require.NoError(t, loadConfig(sub))

	cc := mustCLIContext(sub.Context())
	assert.True(t, cc.Cfg.DryRun)
}

func TestExitError(t *testing.T) {
	t.Parallel()

	inner := assert.AnError
	err := &exitError{code: 2, err: inner}

	assert.Equal(t, inner.Error(), err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "exit status 3", (&exitError{code: 3}).Error())
}
