package config

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. Secrets
// are never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (%s)\n\n", r.Path)

	ew.printf("log_level  = %q\n", r.LogLevel)
	ew.printf("log_format = %q\n\n", r.LogFormat)

	renderBackendSection(ew, &r.Backend)
	renderAuthSection(ew, &r.Auth)
	renderSessionSection(ew, &r.Session)
	renderStatusSection(ew, &r.Status)
	renderJournalSection(ew, &r.Journal)
	renderServeSection(ew, &r.Serve)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderBackendSection(ew *errWriter, b *BackendConfig) {
	ew.printf("[backend]\n")
	ew.printf("  base_url    = %q\n", b.BaseURL)
	ew.printf("  lookup_path = %q\n", b.LookupPath)
	ew.printf("  update_path = %q\n", b.UpdatePath)
	ew.printf("  timeout     = %q\n", b.Timeout)
	ew.printf("  max_retries = %d\n", b.MaxRetries)
	ew.printf("  user_agent  = %q\n\n", b.UserAgent)
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  mode = %q\n", a.Mode)

	switch a.Mode {
	case AuthToken:
		ew.printf("  token = %q\n", secret(a.Token))
	case AuthClientCredentials:
		ew.printf("  client_id     = %q\n", a.ClientID)
		ew.printf("  client_secret = %q\n", secret(a.ClientSecret))
		ew.printf("  token_url     = %q\n", a.TokenURL)
		ew.printf("  cache_path    = %q\n", a.CachePath)

		if len(a.Scopes) > 0 {
			ew.printf("  scopes        = [%s]\n", joinQuoted(a.Scopes))
		}
	}

	ew.printf("\n")
}

func renderSessionSection(ew *errWriter, s *SessionConfig) {
	ew.printf("[session]\n")
	ew.printf("  employee_id           = %q\n", s.EmployeeID)
	ew.printf("  default_academic_year = %q\n", s.DefaultAcademicYear)
	ew.printf("  settle_timeout        = %q\n\n", s.SettleTimeout)
}

func renderStatusSection(ew *errWriter, s *StatusConfig) {
	ew.printf("[status]\n")
	ew.printf("  default = %q\n", s.Default)

	keys := make([]string, 0, len(s.Aliases))
	for k := range s.Aliases {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		ew.printf("  aliases.%s = %q\n", k, s.Aliases[k])
	}

	ew.printf("\n")
}

func renderJournalSection(ew *errWriter, j *JournalConfig) {
	ew.printf("[journal]\n")
	ew.printf("  enabled = %t\n", j.Enabled)
	ew.printf("  path    = %q\n\n", j.Path)
}

func renderServeSection(ew *errWriter, s *ServeConfig) {
	ew.printf("[serve]\n")
	ew.printf("  listen  = %q\n", s.Listen)
	ew.printf("  metrics = %t\n", s.Metrics)

	if len(s.AllowedOrigins) > 0 {
		ew.printf("  allowed_origins = [%s]\n", joinQuoted(s.AllowedOrigins))
	}
}

func secret(v string) string {
	if v == "" {
		return ""
	}

	return redacted
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
