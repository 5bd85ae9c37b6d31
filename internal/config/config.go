// Package config loads service configuration, environment-first with
// defaults.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Port the HTTP listener binds to.
	Port string

	// DBPath is the SQLite file backing command history. Empty disables
	// history recording.
	DBPath string

	// ExecTimeout is the hard deadline on one command's execution.
	ExecTimeout time.Duration

	// ExecWorkers bounds concurrent command execution across all sessions.
	ExecWorkers int
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "data/history.db")
	v.SetDefault("exec_timeout", "10s")
	v.SetDefault("exec_workers", 4)
	v.AutomaticEnv()

	cfg := &Config{
		Port:        v.GetString("port"),
		DBPath:      v.GetString("db_path"),
		ExecTimeout: v.GetDuration("exec_timeout"),
		ExecWorkers: v.GetInt("exec_workers"),
	}
	return cfg, nil
}
