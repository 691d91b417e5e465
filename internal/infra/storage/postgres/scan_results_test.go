package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/internal/infra/storage"
)

func setupScanResultTest(t *testing.T) (context.Context, *ScanResultStore, func()) {
	t.Helper()

	pool, cleanup := storage.SetupTestContainer(t)
	return context.Background(), NewScanResultStore(pool, storage.NoOpTracer()), cleanup
}

func TestScanResultStore_SaveAndLatest(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupScanResultTest(t)
	defer cleanup()

	seen := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	first := []wifi.ScanInfo{
		{BSSID: "aa:bb:cc:00:00:01", SSID: "old", Frequency: 2412, RSSI: -70, Timestamp: seen},
	}
	second := []wifi.ScanInfo{
		{BSSID: "aa:bb:cc:00:00:02", SSID: "weak", Frequency: 2437, RSSI: -80, Capabilities: "[WPA2-PSK]", Timestamp: seen},
		{BSSID: "aa:bb:cc:00:00:03", SSID: "strong", Frequency: 5180, RSSI: -40, Timestamp: seen},
		{BSSID: "aa:bb:cc:00:00:04", SSID: "", Frequency: 5200, RSSI: -60},
	}

	require.NoError(t, store.SaveScanResults(ctx, first))
	require.NoError(t, store.SaveScanResults(ctx, second))

	got, err := store.LatestScanResults(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "strong", got[0].SSID)
	assert.Equal(t, seen, got[0].Timestamp)
	assert.Equal(t, "aa:bb:cc:00:00:04", got[1].BSSID)
	assert.True(t, got[1].Timestamp.IsZero())
	assert.Equal(t, "[WPA2-PSK]", got[2].Capabilities)

	limited, err := store.LatestScanResults(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "strong", limited[0].SSID)
}

func TestScanResultStore_EmptyBatchReplacesLatest(t *testing.T) {
	t.Parallel()

	ctx, store, cleanup := setupScanResultTest(t)
	defer cleanup()

	require.NoError(t, store.SaveScanResults(ctx, []wifi.ScanInfo{
		{BSSID: "aa:bb:cc:00:00:01", Frequency: 2412, RSSI: -50},
	}))
	require.NoError(t, store.SaveScanResults(ctx, nil))

	got, err := store.LatestScanResults(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanResultStore_LatestRejectsBadLimit(t *testing.T) {
	t.Parallel()

	store := NewScanResultStore(nil, storage.NoOpTracer())
	_, err := store.LatestScanResults(context.Background(), 0)
	require.Error(t, err)
}
