package session

import "github.com/matheus3301/offsync/internal/config"

// DefaultUser owns the queue when nobody is named.
const DefaultUser = "local"

// Resolve determines the active user using precedence:
// 1. flagOverride (--user flag)
// 2. config.toml default_user
// 3. "local"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultUser != "" {
		return cfg.DefaultUser
	}
	return DefaultUser
}
