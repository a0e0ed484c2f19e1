package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "debug"
log_format = "json"

[backend]
base_url = "https://dist.example.com"
lookup_path = "/api/gets"
update_path = "/api/updates"
timeout = "10s"
max_retries = 5
user_agent = "appdist-test"

[auth]
mode = "client_credentials"
client_id = "cli"
token_url = "https://auth.example.com/token"
scopes = ["dist.read", "dist.write"]

[session]
employee_id = "4711"
default_academic_year = "2026-27"
settle_timeout = "5s"

[status]
default = "UNKNOWN"

[status.aliases]
left = "AVAILABLE"
returned = "AVAILABLE"

[journal]
enabled = false
path = "/tmp/j.db"

[serve]
listen = ":9000"
allowed_origins = ["https://ui.example.com"]
metrics = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "https://dist.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/gets", cfg.Backend.LookupPath)
	assert.Equal(t, 5, cfg.Backend.MaxRetries)
	assert.Equal(t, AuthClientCredentials, cfg.Auth.Mode)
	assert.Equal(t, []string{"dist.read", "dist.write"}, cfg.Auth.Scopes)
	assert.Equal(t, "4711", cfg.Session.EmployeeID)
	assert.Equal(t, "2026-27", cfg.Session.DefaultAcademicYear)
	assert.Equal(t, "UNKNOWN", cfg.Status.Default)
	assert.Equal(t, "AVAILABLE", cfg.Status.Aliases["returned"])
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, ":9000", cfg.Serve.Listen)
	assert.False(t, cfg.Serve.Metrics)
}

func TestLoad_EmptyFileYieldsDefaults(t *testing.T) {
	path := writeTestConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[backend\nbase_url = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "loud"

[backend]
timeout = "soon"
max_retries = 99
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "backend.timeout")
	assert.Contains(t, err.Error(), "backend.max_retries")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[backend]
base_url = "https://file.example.com"

[session]
employee_id = "from-file"
`)

	t.Run("file", func(t *testing.T) {
		r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "from-file", r.Session.EmployeeID)
		assert.Equal(t, path, r.Path)
		assert.Equal(t, 30*time.Second, r.Timeout)
	})

	t.Run("env beats file", func(t *testing.T) {
		r, err := Resolve(EnvOverrides{ConfigPath: path, EmployeeID: "from-env", BaseURL: "https://env.example.com"}, CLIOverrides{})
		require.NoError(t, err)
		assert.Equal(t, "from-env", r.Session.EmployeeID)
		assert.Equal(t, "https://env.example.com", r.Backend.BaseURL)
	})

	t.Run("cli beats env", func(t *testing.T) {
		dry := true
		r, err := Resolve(
			EnvOverrides{ConfigPath: path, EmployeeID: "from-env"},
			CLIOverrides{EmployeeID: "from-cli", DryRun: &dry},
		)
		require.NoError(t, err)
		assert.Equal(t, "from-cli", r.Session.EmployeeID)
		assert.True(t, r.DryRun)
	})

	t.Run("cli config path beats env", func(t *testing.T) {
		other := writeTestConfig(t, "[session]\nemployee_id = \"other\"\n")
		r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{ConfigPath: other})
		require.NoError(t, err)
		assert.Equal(t, "other", r.Session.EmployeeID)
	})
}

func TestResolve_EnvTokenSwitchesAuthMode(t *testing.T) {
	path := writeTestConfig(t, "")

	r, err := Resolve(EnvOverrides{ConfigPath: path, Token: "secret"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, AuthToken, r.Auth.Mode)
	assert.Equal(t, "secret", r.Auth.Token)
}

func TestResolve_InvalidOverride(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{LogLevel: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestResolve_DerivedPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	path := writeTestConfig(t, `
[auth]
mode = "client_credentials"
client_id = "cli"
token_url = "https://auth.example.com/token"
`)

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultJournalPath(), r.Journal.Path)
	assert.Equal(t, DefaultTokenCachePath(), r.Auth.CachePath)
}
