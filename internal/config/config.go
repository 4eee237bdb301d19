// Package config holds runtime configuration for tasksync: file locations,
// the remote hub endpoint, connectivity probing, and log rotation.
//
// Configuration merges three layers, later layers overriding earlier ones:
// built-in defaults, ~/.tasksync/config.yaml, and TASKSYNC_* environment
// variables (TASKSYNC_REMOTE_URL, TASKSYNC_LOG_FILE, ...).
package config

import (
	"time"
)

// Config is the full tasksync configuration.
type Config struct {
	// DataDir is where the database, session, and logs live.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Remote       RemoteConfig       `yaml:"remote" mapstructure:"remote"`
	Hub          HubConfig          `yaml:"hub" mapstructure:"hub"`
	Connectivity ConnectivityConfig `yaml:"connectivity" mapstructure:"connectivity"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// RemoteConfig points at the sync hub.
type RemoteConfig struct {
	// URL is the hub's WebSocket endpoint.
	URL string `yaml:"url" mapstructure:"url"`
}

// HubConfig configures the built-in hub server (tasksync hub).
type HubConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ConnectivityConfig configures online detection.
type ConnectivityConfig struct {
	// ProbeURL is fetched to judge internet reachability. Defaults to the
	// hub's health endpoint.
	ProbeURL string `yaml:"probe_url" mapstructure:"probe_url"`
	// ProbeInterval is how often the daemon re-checks connectivity.
	ProbeInterval time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
	// ProbeTimeout bounds a single probe request.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
}

// LogConfig configures the daemon's rotating log file.
type LogConfig struct {
	// File is the log path; empty means stderr only.
	File string `yaml:"file" mapstructure:"file"`
	// MaxSizeMB rotates the file once it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups"`
	// MaxAgeDays prunes rotated files older than this.
	MaxAgeDays int `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns the built-in defaults. DataDir and derived paths
// are left empty here; Load fills them in from the home directory.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			URL: "ws://localhost:7432/sync",
		},
		Hub: HubConfig{
			Port: 7432,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      "http://localhost:7432/health",
			ProbeInterval: 5 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}
