// Package paths resolves the per-user locations dittosmb keeps files in.
package paths

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the user config directory.
const AppName = "dittosmb"

// ConfigDir returns $XDG_CONFIG_HOME/dittosmb, falling back to
// ~/.config/dittosmb, or "." when no home directory is known.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile joins name onto ConfigDir.
func ConfigFile(name string) string {
	return filepath.Join(ConfigDir(), name)
}
