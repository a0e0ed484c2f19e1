package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	maxRetries       = 10
	minTimeout       = 1 * time.Second
	minSettleTimeout = 1 * time.Second
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
	validAuthModes  = map[string]bool{AuthNone: true, AuthToken: true, AuthClientCredentials: true}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateStatus(&cfg.Status)...)
	errs = append(errs, validateServe(&cfg.Serve)...)

	return errors.Join(errs...)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateBackend(b *BackendConfig) []error {
	var errs []error

	if u, err := url.Parse(b.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url: must be an absolute URL, got %q", b.BaseURL))
	}

	for name, p := range map[string]string{"lookup_path": b.LookupPath, "update_path": b.UpdatePath} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("backend.%s: must start with /, got %q", name, p))
		}
	}

	errs = append(errs, checkDuration("backend.timeout", b.Timeout, minTimeout)...)

	if b.MaxRetries < 0 || b.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("backend.max_retries: must be between 0 and %d, got %d", maxRetries, b.MaxRetries))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	if !validAuthModes[a.Mode] {
		return []error{fmt.Errorf("auth.mode: must be one of none, token, client_credentials; got %q", a.Mode)}
	}

	// Secrets may arrive later through the environment, so only the
	// non-secret fields are required here.
	var errs []error

	if a.Mode == AuthClientCredentials {
		if a.ClientID == "" {
			errs = append(errs, errors.New("auth.client_id: required for client_credentials"))
		}

		if a.TokenURL == "" {
			errs = append(errs, errors.New("auth.token_url: required for client_credentials"))
		}
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	return checkDuration("session.settle_timeout", s.SettleTimeout, minSettleTimeout)
}

func validateStatus(s *StatusConfig) []error {
	var errs []error

	if strings.TrimSpace(s.Default) == "" {
		errs = append(errs, errors.New("status.default: must not be empty"))
	}

	for k, v := range s.Aliases {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("status.aliases.%s: must not be empty", k))
		}
	}

	return errs
}

func validateServe(s *ServeConfig) []error {
	if s.Listen == "" {
		return []error{errors.New("serve.listen: must not be empty")}
	}

	return nil
}

func checkDuration(name, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", name, minimum, d)}
	}

	return nil
}
