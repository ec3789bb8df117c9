// Package config loads runtime configuration for the majisync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file, path given via the --config flag.
//  3. Environment variables (a .env file in the working directory is
//     loaded first when present), which override earlier values.
//
// Supported environment variables
//
//	MAJISYNC_SERVER_URL       base URL of the billing server API
//	MAJISYNC_API_TOKEN        device bearer token
//	MAJISYNC_DEVICE_ID        stable identifier of this device
//	MAJISYNC_DB_PATH          path of the local SQLite cache
//	MAJISYNC_RETAINED_CYCLES  size of the local retention window
//	MAJISYNC_MAX_READING      largest accepted reading value, e.g. "99999.9999"
//	MAJISYNC_SYNC_INTERVAL    daemon pass interval, e.g. "5m"
//	MAJISYNC_REQUEST_TIMEOUT  per-request HTTP timeout, e.g. "30s"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmaganga/majisync/internal/models"
)

// Config holds runtime settings for the majisync client.
type Config struct {
	ServerBaseURL  string        `json:"server_base_url"`
	APIToken       string        `json:"api_token"`
	DeviceID       string        `json:"device_id"`
	DatabasePath   string        `json:"database_path"`
	RetainedCycles int           `json:"retained_cycles"`
	MaxReading     models.Volume `json:"-"`
	SyncInterval   time.Duration `json:"-"`
	RequestTimeout time.Duration `json:"-"`

	// Typed fields arrive as strings in JSON ("99999.9999", "5m", "30s").
	MaxReadingStr     string `json:"max_reading,omitempty"`
	SyncIntervalStr   string `json:"sync_interval,omitempty"`
	RequestTimeoutStr string `json:"request_timeout,omitempty"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.ServerBaseURL = "http://localhost:8000"
	c.DatabasePath = filepath.Join(home, ".majisync", "cache.db")
	c.RetainedCycles = 12
	c.MaxReading = models.MaxMeterVolume
	c.SyncInterval = 5 * time.Minute
	c.RequestTimeout = 30 * time.Second
}

// Load constructs a Config by applying defaults, then the JSON file at path
// (if path is non-empty), then environment variables. Later sources take
// precedence over earlier ones.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := cfg.loadJSON(path); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() error {
	// A .env beside the binary is a convenience for field installs; a
	// missing file is not an error.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if v := os.Getenv("MAJISYNC_SERVER_URL"); v != "" {
		c.ServerBaseURL = v
	}
	if v := os.Getenv("MAJISYNC_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("MAJISYNC_DEVICE_ID"); v != "" {
		c.DeviceID = v
	}
	if v := os.Getenv("MAJISYNC_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("MAJISYNC_RETAINED_CYCLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAJISYNC_RETAINED_CYCLES %q: %w", v, err)
		}
		c.RetainedCycles = n
	}
	if v := os.Getenv("MAJISYNC_MAX_READING"); v != "" {
		vol, err := models.ParseVolume(v)
		if err != nil {
			return fmt.Errorf("invalid MAJISYNC_MAX_READING %q: %w", v, err)
		}
		c.MaxReading = vol
	}
	if v := os.Getenv("MAJISYNC_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAJISYNC_SYNC_INTERVAL %q: %w", v, err)
		}
		c.SyncInterval = d
	}
	if v := os.Getenv("MAJISYNC_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAJISYNC_REQUEST_TIMEOUT %q: %w", v, err)
		}
		c.RequestTimeout = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.ServerBaseURL == "" {
		return fmt.Errorf("server base URL must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.RetainedCycles < 1 {
		return fmt.Errorf("retained cycles must be at least 1, got %d", c.RetainedCycles)
	}
	if c.MaxReading <= 0 {
		return fmt.Errorf("max reading must be positive, got %s", c.MaxReading)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("sync interval must be at least 1s, got %s", c.SyncInterval)
	}
	return nil
}
