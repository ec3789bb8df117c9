package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmaganga/majisync/internal/models"
)

// loadJSON overlays c with values from the JSON file at path. An empty path
// means no file was requested; a named file that does not exist is an error,
// because the operator asked for it explicitly.
func (c *Config) loadJSON(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var jc Config
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if jc.ServerBaseURL != "" {
		c.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.APIToken != "" {
		c.APIToken = jc.APIToken
	}
	if jc.DeviceID != "" {
		c.DeviceID = jc.DeviceID
	}
	if jc.DatabasePath != "" {
		c.DatabasePath = jc.DatabasePath
	}
	if jc.RetainedCycles != 0 {
		c.RetainedCycles = jc.RetainedCycles
	}
	if jc.MaxReadingStr != "" {
		vol, err := models.ParseVolume(jc.MaxReadingStr)
		if err != nil {
			return fmt.Errorf("invalid max_reading %q: %w", jc.MaxReadingStr, err)
		}
		c.MaxReading = vol
	}
	if jc.SyncIntervalStr != "" {
		d, err := time.ParseDuration(jc.SyncIntervalStr)
		if err != nil {
			return fmt.Errorf("invalid sync_interval %q: %w", jc.SyncIntervalStr, err)
		}
		c.SyncInterval = d
	}
	if jc.RequestTimeoutStr != "" {
		d, err := time.ParseDuration(jc.RequestTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid request_timeout %q: %w", jc.RequestTimeoutStr, err)
		}
		c.RequestTimeout = d
	}
	return nil
}
