package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "service:\n  device_id: lab-1\n"))
	require.NoError(t, err)

	assert.Equal(t, "scand", cfg.Service.Name)
	assert.Equal(t, "lab-1", cfg.Service.DeviceID)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, wifi.BandBoth, cfg.Scan.Band())
	assert.Equal(t, 10*time.Second, cfg.Scan.WaitResultTimeout)
	assert.Equal(t, 60*time.Second, cfg.Scan.SoftwarePnoInterval)
	assert.Equal(t, 20*time.Second, cfg.Scan.SystemScanMinInterval)
	assert.Equal(t, 160*time.Second, cfg.Scan.SystemScanMaxInterval)
	assert.Equal(t, 5, cfg.Scan.MaxPnoFailures)
	assert.Equal(t, -80, cfg.Scan.PnoMinRssi2Dot4GHz)
	assert.Equal(t, -77, cfg.Scan.PnoMinRssi5GHz)
	assert.True(t, cfg.Device.ScreenOn)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel())
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
scan:
  default_band: 2.4ghz
  system_scan_min_interval: 30s
  system_scan_max_interval: 2m
driver:
  scan_latency: 500ms
  air:
    - bssid: "AA:BB:CC:00:00:01"
      ssid: home
      frequency: 2412
      rssi: -50
device:
  screen_on: false
  saved_networks:
    - id: 1
      ssid: home
    - id: 2
      ssid: attic
      hidden: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logger.LevelDebug, cfg.LogLevel())
	assert.Equal(t, wifi.Band24GHz, cfg.Scan.Band())
	assert.Equal(t, 30*time.Second, cfg.Scan.SystemScanMinInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scan.SystemScanMaxInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Driver.ScanLatency)
	assert.False(t, cfg.Device.ScreenOn)

	air := cfg.Driver.AirNetworks()
	require.Len(t, air, 1)
	assert.Equal(t, "aa:bb:cc:00:00:01", air[0].BSSID)

	assert.Equal(t, []wifi.NetworkConfig{
		{NetworkID: 1, SSID: "home"},
		{NetworkID: 2, SSID: "attic", HiddenSSID: true},
	}, cfg.Device.NetworkConfigs())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SCAND_HTTP_ADDR", ":9999")
	t.Setenv("SCAND_SCAN_MAX_PNO_FAILURES", "7")

	cfg, err := Load(writeConfig(t, "http:\n  addr: \":8081\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 7, cfg.Scan.MaxPnoFailures)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown_band", body: "scan:\n  default_band: 60ghz\n"},
		{name: "max_below_min", body: "scan:\n  system_scan_min_interval: 1m\n  system_scan_max_interval: 30s\n"},
		{name: "positive_rssi_floor", body: "scan:\n  pno_min_rssi_5g: 10\n"},
		{name: "bad_log_level", body: "log:\n  level: loud\n"},
		{name: "bad_air_bssid", body: "driver:\n  air:\n    - bssid: nope\n      frequency: 2412\n"},
		{name: "saved_network_without_ssid", body: "device:\n  saved_networks:\n    - id: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
