package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under the per-user data directory.
const AppName = "xcheck"

// GetDataDir returns the default per-user data directory for the given appName.
//
// Behavior by platform:
//
//   - Windows: returns "%LOCALAPPDATA%\<appName>\data" when LOCALAPPDATA is set.
//     If LOCALAPPDATA is unset an error is returned to signal the missing environment.
//
//   - Unix-like (Linux, macOS, etc.): if XDG_DATA_HOME is set, returns
//     "$XDG_DATA_HOME/<appName>". Otherwise falls back to "$HOME/.local/share/<appName>".
//     If the user's home directory cannot be determined an error is returned.
//
// The directory is not created.
func GetDataDir(appName string) (string, error) {
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName, "data"), nil
		}
		return "", fmt.Errorf("LOCALAPPDATA environment variable not set")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// DefaultHashLogPath returns where the hash log database lives when no path
// is given.
func DefaultHashLogPath() (string, error) {
	dir, err := GetDataDir(AppName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hashlog.db"), nil
}
