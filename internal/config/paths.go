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

// Application directory name used across all platforms.
const appName = "docsync"

// File names inside the config and data directories.
const (
	configFileName     = "config.toml"
	metadataDBName     = "metadata.db"
	credentialFileName = "credentials.json"
	locksDirName       = "locks"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/docsync).
// On macOS, uses ~/Library/Application Support/docsync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (metadata database, credentials, logs, locks).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envName, fallbackBase string) string {
	if xdg := os.Getenv(envName); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallbackBase, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// MetadataDBPath returns the SQLite metadata database path under dataDir.
func MetadataDBPath(dataDir string) string {
	return filepath.Join(dataDir, metadataDBName)
}

// CredentialPath returns the API key file path under dataDir.
func CredentialPath(dataDir string) string {
	return filepath.Join(dataDir, credentialFileName)
}

// LockPath returns the per-project lock file path. The project name is
// reduced to a filesystem-safe token.
func LockPath(dataDir, project string) string {
	return filepath.Join(dataDir, locksDirName, safeFileName(project)+".lock")
}

func safeFileName(s string) string {
	out := make([]rune, 0, len(s))

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}

	if len(out) == 0 {
		return "_"
	}

	return string(out)
}
