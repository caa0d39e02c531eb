package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "OFFSYNC_HOME"

// BaseDir returns $OFFSYNC_HOME, or ~/.offsync.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".offsync")
}

// Dir returns the directory holding everything owned by user.
func Dir(user string) string {
	return filepath.Join(BaseDir(), "users", user)
}

// SocketPath returns the UDS socket path of the user's daemon.
func SocketPath(user string) string {
	return filepath.Join(Dir(user), "daemon.sock")
}

// LockPath returns the lock file path for a user.
func LockPath(user string) string {
	return filepath.Join(Dir(user), "LOCK")
}

// QueueDBPath returns the SQLite database holding the user's queue.
func QueueDBPath(user string) string {
	return filepath.Join(Dir(user), "queue.db")
}

// LogDir returns the log directory for a user.
func LogDir(user string) string {
	return filepath.Join(Dir(user), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(user string) string {
	return filepath.Join(LogDir(user), "offsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the user directory tree with owner-only permissions.
func EnsureDir(user string) error {
	for _, d := range []string{Dir(user), LogDir(user)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
