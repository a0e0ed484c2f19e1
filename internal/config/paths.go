package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

const (
	appName        = "appdist"
	configFileName = "config.toml"
)

// location is one class of per-user directory: config, data or cache.
type location struct {
	xdgVar   string   // Linux override, e.g. XDG_DATA_HOME
	fallback []string // under $HOME when the variable is unset
	darwin   []string // under $HOME on macOS
}

var (
	configLocation = location{
		xdgVar:   "XDG_CONFIG_HOME",
		fallback: []string{".config"},
		darwin:   []string{"Library", "Application Support"},
	}
	dataLocation = location{
		xdgVar:   "XDG_DATA_HOME",
		fallback: []string{".local", "share"},
		darwin:   []string{"Library", "Application Support"},
	}
	cacheLocation = location{
		xdgVar:   "XDG_CACHE_HOME",
		fallback: []string{".cache"},
		darwin:   []string{"Library", "Caches"},
	}
)

// file returns name inside the appdist directory for loc, or "" when the
// home directory is unknown. XDG variables are honored on Linux only; macOS
// uses ~/Library and everything else the Linux fallbacks.
func (loc location) file(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	var base string

	switch runtime.GOOS {
	case platformDarwin:
		base = filepath.Join(append([]string{home}, loc.darwin...)...)
	case platformLinux:
		if xdg := os.Getenv(loc.xdgVar); xdg != "" {
			base = xdg
			break
		}

		fallthrough
	default:
		base = filepath.Join(append([]string{home}, loc.fallback...)...)
	}

	return filepath.Join(base, appName, name)
}

// DefaultConfigPath is the config file used when neither APPDIST_CONFIG nor
// --config is given.
func DefaultConfigPath() string {
	return configLocation.file(configFileName)
}

// DefaultJournalPath is the submission journal under the data directory.
func DefaultJournalPath() string {
	return dataLocation.file(defaultJournalFileName)
}

// DefaultPIDPath is the PID file of a running bridge, used by
// "appdist reload" to find it.
func DefaultPIDPath() string {
	return dataLocation.file(defaultPIDFileName)
}

// DefaultTokenCachePath is where client-credentials tokens are cached.
func DefaultTokenCachePath() string {
	return cacheLocation.file(defaultTokenCacheFileName)
}
