// Package config loads the miner's JSON configuration file, following the
// struct-of-documented-defaults style dilithiumcoin's config.go uses for
// its NetworkConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

// Config is the top-level miner configuration, loadable from a JSON file
// and overridable by CLI flags.
type Config struct {
	// Pool is the Stratum pool host:port to mine against.
	Pool string `json:"pool"`

	// Username is the pool worker name, typically address.workername.
	Username string `json:"username"`

	// Password is the pool worker password; most Verus pools ignore it.
	Password string `json:"password"`

	// Threads is the number of CPU mining worker goroutines. It defaults
	// to runtime.NumCPU(); Validate rejects zero or a negative value.
	Threads int `json:"threads"`

	// StatsAPIAddr, when non-empty, serves the JSON stats endpoint on
	// this address (e.g. "127.0.0.1:4028").
	StatsAPIAddr string `json:"stats_api_addr"`

	// LogLevel is one of trace/debug/info/warn/error/critical/off.
	LogLevel string `json:"log_level"`

	// ReconnectInitialBackoff and ReconnectMaxBackoff bound the pool
	// reconnect delay after a lost connection.
	ReconnectInitialBackoff time.Duration `json:"reconnect_initial_backoff"`
	ReconnectMaxBackoff     time.Duration `json:"reconnect_max_backoff"`
}

// Default returns the built-in defaults, applied before a config file and
// CLI flags are layered on top.
func Default() Config {
	return Config{
		Pool:                    "",
		Username:                "",
		Password:                "x",
		Threads:                 runtime.NumCPU(),
		StatsAPIAddr:            "",
		LogLevel:                "info",
		ReconnectInitialBackoff: time.Second,
		ReconnectMaxBackoff:     30 * time.Second,
	}
}

// Load reads a JSON config file, applying it on top of Default(). A
// missing path is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields required to start mining.
func (c Config) Validate() error {
	if c.Pool == "" {
		return fmt.Errorf("config: pool is required")
	}
	if c.Username == "" {
		return fmt.Errorf("config: username is required")
	}
	if c.Threads <= 0 {
		return fmt.Errorf("config: threads must be positive")
	}
	return nil
}
