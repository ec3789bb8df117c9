package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaganga/majisync/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.ServerBaseURL)
	assert.Equal(t, 12, cfg.RetainedCycles)
	assert.Equal(t, models.MaxMeterVolume, cfg.MaxReading)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.NotEmpty(t, cfg.DatabasePath)
}

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server_base_url": "https://billing.example.com",
		"device_id": "kiosk-3",
		"retained_cycles": 6,
		"max_reading": "2000.0000",
		"sync_interval": "2m"
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com", cfg.ServerBaseURL)
	assert.Equal(t, "kiosk-3", cfg.DeviceID)
	assert.Equal(t, 6, cfg.RetainedCycles)
	assert.Equal(t, models.Volume(20000000), cfg.MaxReading)
	assert.Equal(t, 2*time.Minute, cfg.SyncInterval)
	// Untouched fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvOverridesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_base_url": "https://from-json"}`), 0o600))

	t.Setenv("MAJISYNC_SERVER_URL", "https://from-env")
	t.Setenv("MAJISYNC_API_TOKEN", "secret")
	t.Setenv("MAJISYNC_RETAINED_CYCLES", "3")
	t.Setenv("MAJISYNC_MAX_READING", "50000.0000")
	t.Setenv("MAJISYNC_SYNC_INTERVAL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env", cfg.ServerBaseURL)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.Equal(t, 3, cfg.RetainedCycles)
	assert.Equal(t, models.Volume(500000000), cfg.MaxReading)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
}

func TestLoad_MissingNamedFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("MAJISYNC_RETAINED_CYCLES", "zero")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_ValidationRejectsBadWindow(t *testing.T) {
	t.Setenv("MAJISYNC_RETAINED_CYCLES", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_RejectsBadMaxReading(t *testing.T) {
	t.Setenv("MAJISYNC_MAX_READING", "not-a-number")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("MAJISYNC_MAX_READING", "-5")
	_, err = Load("")
	assert.Error(t, err)
}
