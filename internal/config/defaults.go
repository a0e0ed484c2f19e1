package config

// Default values for configuration options.
const (
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultBaseURL            = "http://localhost:8080"
	defaultLookupPath         = "/distribution/gets"
	defaultUpdatePath         = "/distribution/updates"
	defaultTimeout            = "30s"
	defaultMaxRetries         = 3
	defaultUserAgent          = "appdist/dev"
	defaultAcademicYear       = "2025-26"
	defaultSettleTimeout      = "30s"
	defaultStatus             = "AVAILABLE"
	defaultListen             = "127.0.0.1:8787"
	defaultJournalFileName    = "journal.db"
	defaultTokenCacheFileName = "token.json"
	defaultPIDFileName        = "serve.pid"
)

// DefaultConfig returns a Config populated with all default values.
// A missing config file yields exactly this configuration.
func DefaultConfig() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Backend: BackendConfig{
			BaseURL:    defaultBaseURL,
			LookupPath: defaultLookupPath,
			UpdatePath: defaultUpdatePath,
			Timeout:    defaultTimeout,
			MaxRetries: defaultMaxRetries,
			UserAgent:  defaultUserAgent,
		},
		Auth: AuthConfig{
			Mode: AuthNone,
		},
		Session: SessionConfig{
			DefaultAcademicYear: defaultAcademicYear,
			SettleTimeout:       defaultSettleTimeout,
		},
		Status: StatusConfig{
			Default: defaultStatus,
			Aliases: map[string]string{
				"left":      "AVAILABLE",
				"confirmed": "AVAILABLE",
			},
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Serve: ServeConfig{
			Listen:  defaultListen,
			Metrics: true,
		},
	}
}
