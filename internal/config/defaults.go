package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform data directory.
//
//   - macOS:   ~/Library/Application Support/tcime/
//   - Linux:   $XDG_DATA_HOME/tcime/ or ~/.local/share/tcime/
//   - Windows: %APPDATA%\tcime\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "tcime")
	case "windows":
		return windowsAppData()
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	default:
		return filepath.Join(homeDir(), ".tcime")
	}
}

// PlatformConfigDir returns the platform configuration directory. macOS and
// Windows keep configuration next to the data.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return PlatformDataDir()
	case "linux":
		return xdgDir("XDG_CONFIG_HOME", ".config")
	default:
		return filepath.Join(homeDir(), ".tcime")
	}
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "tcime")
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, "tcime")...)
}

func windowsAppData() string {
	if dir := os.Getenv("APPDATA"); dir != "" {
		return filepath.Join(dir, "tcime")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "tcime")
}

// SupportedConfigFormats lists the accepted configuration file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile returns the first config.<ext> in the working directory or
// the configuration directory, or "".
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
