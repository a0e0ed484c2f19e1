// Package config implements TOML configuration loading, validation, and the
// override chain (defaults -> file -> environment -> CLI flags) for appdist.
package config

// Auth modes for the distribution backend.
const (
	AuthNone              = "none"
	AuthToken             = "token"
	AuthClientCredentials = "client_credentials"
)

// Config is the top-level configuration structure. Logging settings live at
// the top level of the file; everything else is grouped in sections.
type Config struct {
	LoggingConfig
	Backend BackendConfig `toml:"backend"`
	Auth    AuthConfig    `toml:"auth"`
	Session SessionConfig `toml:"session"`
	Status  StatusConfig  `toml:"status"`
	Journal JournalConfig `toml:"journal"`
	Serve   ServeConfig   `toml:"serve"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// BackendConfig locates the distribution service and tunes the HTTP client.
type BackendConfig struct {
	BaseURL    string `toml:"base_url"`
	LookupPath string `toml:"lookup_path"`
	UpdatePath string `toml:"update_path"`
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
	UserAgent  string `toml:"user_agent"`
}

// AuthConfig selects how requests to the backend are authorized.
type AuthConfig struct {
	Mode         string   `toml:"mode"`
	Token        string   `toml:"token" json:"-"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret" json:"-"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
	CachePath    string   `toml:"cache_path"`
}

// SessionConfig holds the defaults every form session starts from.
type SessionConfig struct {
	EmployeeID          string `toml:"employee_id"`
	DefaultAcademicYear string `toml:"default_academic_year"`
	SettleTimeout       string `toml:"settle_timeout"`
}

// StatusConfig is the application status alias table. Keys are matched
// case-insensitively against the raw backend status.
type StatusConfig struct {
	Default string            `toml:"default"`
	Aliases map[string]string `toml:"aliases"`
}

// JournalConfig controls the local submission journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServeConfig configures the websocket bridge.
type ServeConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
	Metrics        bool     `toml:"metrics"`
}

// CLIOverrides holds values from command-line flags that override config
// file and environment settings. Pointer fields distinguish "not specified"
// from "set to zero value".
type CLIOverrides struct {
	ConfigPath string
	EmployeeID string
	BaseURL    string
	LogLevel   string
	DryRun     *bool
}
