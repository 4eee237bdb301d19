package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dir returns the tasksync data directory (~/.tasksync).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".tasksync")
}

// Path returns the config file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// DBPath returns the database file location for cfg.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// SessionPath returns the persisted-session file location for cfg.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.yaml")
}

// Load reads the configuration for the given data directory (empty = the
// default ~/.tasksync). A missing config file is not an error; defaults and
// environment variables still apply.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = Dir()
	}
	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(dataDir, "tasksync.log")
	}

	v := newViper(dataDir)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func newViper(dataDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(Path(dataDir))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults registered here so environment overrides bind even when the
	// key is absent from the file.
	defaults := DefaultConfig()
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("remote.url", defaults.Remote.URL)
	v.SetDefault("hub.port", defaults.Hub.Port)
	v.SetDefault("connectivity.probe_url", defaults.Connectivity.ProbeURL)
	v.SetDefault("connectivity.probe_interval", defaults.Connectivity.ProbeInterval)
	v.SetDefault("connectivity.probe_timeout", defaults.Connectivity.ProbeTimeout)
	v.SetDefault("log.file", filepath.Join(dataDir, "tasksync.log"))
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.Log.MaxAgeDays)
	return v
}

// WriteDefault writes cfg to its config file, creating the data directory
// if needed. Used by `tasksync init` and the first daemon start.
func WriteDefault(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	header := []byte("# tasksync configuration\n")
	if err := os.WriteFile(Path(cfg.DataDir), append(header, out...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Watch reloads the config file on change and calls fn with the fresh
// Config. It returns once watching is established; events arrive on
// viper's watcher goroutine. Used by the daemon so edits to config.yaml
// apply without a restart.
func Watch(dataDir string, fn func(*Config)) error {
	if dataDir == "" {
		dataDir = Dir()
	}
	v := newViper(dataDir)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg := DefaultConfig()
		cfg.DataDir = dataDir
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}
