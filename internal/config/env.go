package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "APPDIST_CONFIG"
	EnvEmployeeID   = "APPDIST_EMPLOYEE_ID"
	EnvBaseURL      = "APPDIST_BASE_URL"
	EnvToken        = "APPDIST_TOKEN"
	EnvClientSecret = "APPDIST_CLIENT_SECRET"
	EnvLogLevel     = "APPDIST_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // APPDIST_CONFIG: override config file path
	EmployeeID   string // APPDIST_EMPLOYEE_ID: session identity
	BaseURL      string // APPDIST_BASE_URL: backend base URL
	Token        string // APPDIST_TOKEN: static bearer token
	ClientSecret string // APPDIST_CLIENT_SECRET: keeps secrets out of the file
	LogLevel     string // APPDIST_LOG_LEVEL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		EmployeeID:   os.Getenv(EnvEmployeeID),
		BaseURL:      os.Getenv(EnvBaseURL),
		Token:        os.Getenv(EnvToken),
		ClientSecret: os.Getenv(EnvClientSecret),
		LogLevel:     os.Getenv(EnvLogLevel),
	}
}
