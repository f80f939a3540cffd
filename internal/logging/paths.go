package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.chaekko/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chaekko", "logs")
	}
	return filepath.Join(home, ".chaekko", "logs")
}

// DefaultLogPath returns the default service log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "chaekko.log")
}

// EnsureLogDir creates the directory for the given log path.
func EnsureLogDir(logPath string) error {
	return os.MkdirAll(filepath.Dir(logPath), 0o755)
}
