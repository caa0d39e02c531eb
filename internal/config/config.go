// Package config reads and writes the global ~/.offsync/config.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.offsync/config.toml.
type Config struct {
	DefaultUser  string             `toml:"default_user"`
	Remote       RemoteConfig       `toml:"remote"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Sync         SyncConfig         `toml:"sync"`
}

// RemoteConfig locates the hosted record store.
type RemoteConfig struct {
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Timeout Duration `toml:"timeout"`
}

// ConnectivityConfig controls reachability probing. An empty ProbeURL probes
// the remote store itself.
type ConnectivityConfig struct {
	ProbeURL string   `toml:"probe_url"`
	Interval Duration `toml:"interval"`
}

// SyncConfig controls when passes run.
type SyncConfig struct {
	Schedule    string `toml:"schedule"`
	OnReconnect bool   `toml:"on_reconnect"`
	OnEnqueue   bool   `toml:"on_enqueue"`
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Timeout: Duration{30 * time.Second},
		},
		Connectivity: ConnectivityConfig{
			Interval: Duration{30 * time.Second},
		},
		Sync: SyncConfig{
			Schedule:    "@every 5m",
			OnReconnect: true,
			OnEnqueue:   true,
		},
	}
}

// Load reads config from the given path over the defaults. Returns the
// error from the filesystem if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, with a missing file yielding Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
