package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.ember.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ember")
}

// Dir returns the per-user data directory.
func Dir(userID string) string {
	return filepath.Join(BaseDir(), "users", userID)
}

// DBPath returns the engine-owned ember.db path for a user.
func DBPath(userID string) string {
	return filepath.Join(Dir(userID), "ember.db")
}

// LogDir returns the log directory for a user.
func LogDir(userID string) string {
	return filepath.Join(Dir(userID), "logs")
}

// LogPath returns the daemon log file path for a user.
func LogPath(userID string) string {
	return filepath.Join(LogDir(userID), "emberd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the per-user directory tree with proper permissions.
func EnsureDir(userID string) error {
	dirs := []string{
		Dir(userID),
		LogDir(userID),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
