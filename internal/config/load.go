package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the effective configuration after the override chain, with
// durations parsed and derived paths filled in.
type Resolved struct {
	Config
	Path          string        `json:"config_path"`
	Timeout       time.Duration `json:"-"`
	SettleTimeout time.Duration `json:"-"`
	DryRun        bool          `json:"dry_run"`
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return finish(cfg, cfgPath, cli), nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.EmployeeID != "" {
		cfg.Session.EmployeeID = env.EmployeeID
	}

	if env.BaseURL != "" {
		cfg.Backend.BaseURL = env.BaseURL
	}

	if env.Token != "" {
		cfg.Auth.Token = env.Token
		if cfg.Auth.Mode == AuthNone {
			cfg.Auth.Mode = AuthToken
		}
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.EmployeeID != "" {
		cfg.Session.EmployeeID = cli.EmployeeID
	}

	if cli.BaseURL != "" {
		cfg.Backend.BaseURL = cli.BaseURL
	}

	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
}

// finish derives the values Validate has already proven parseable.
func finish(cfg *Config, path string, cli CLIOverrides) *Resolved {
	r := &Resolved{Config: *cfg, Path: path}

	r.Timeout, _ = time.ParseDuration(cfg.Backend.Timeout)
	r.SettleTimeout, _ = time.ParseDuration(cfg.Session.SettleTimeout)

	if cli.DryRun != nil {
		r.DryRun = *cli.DryRun
	}

	if r.Journal.Path == "" {
		r.Journal.Path = DefaultJournalPath()
	}

	if r.Auth.Mode == AuthClientCredentials && r.Auth.CachePath == "" {
		r.Auth.CachePath = DefaultTokenCachePath()
	}

	return r
}
