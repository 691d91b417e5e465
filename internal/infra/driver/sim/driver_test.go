package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

var simEpoch = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

type eventRecorder struct {
	mu     sync.Mutex
	events []wifi.DriverEventKind
}

func (r *eventRecorder) handle(ev wifi.DriverEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Kind)
}

func (r *eventRecorder) kinds() []wifi.DriverEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wifi.DriverEventKind(nil), r.events...)
}

func airNetworks() []wifi.ScanInfo {
	return []wifi.ScanInfo{
		{BSSID: "aa:bb:cc:00:00:01", SSID: "home", Frequency: 2412, RSSI: -55},
		{BSSID: "aa:bb:cc:00:00:02", SSID: "home", Frequency: 5180, RSSI: -85},
		{BSSID: "aa:bb:cc:00:00:03", SSID: "cafe", Frequency: 2437, RSSI: -60},
	}
}

func newTestDriver(t *testing.T) (*Driver, *timeutil.ManualClock, *eventRecorder) {
	t.Helper()

	clock := timeutil.NewManualClock(simEpoch)
	d := New(Config{ScanLatency: time.Second, PnoLatency: 5 * time.Second, HardwarePno: true}, clock, clock, logger.Noop())
	rec := new(eventRecorder)
	d.Subscribe(rec.handle)
	d.SetAirNetworks(airNetworks())
	require.NoError(t, d.LoadDriver(context.Background()))
	return d, clock, rec
}

func TestDriver_NotLoaded(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(simEpoch)
	d := New(DefaultConfig(), clock, clock, logger.Noop())
	ctx := context.Background()

	assert.ErrorIs(t, d.StartScan(ctx, wifi.HardwareScanParams{}), wifi.ErrDriverNotLoaded)
	assert.ErrorIs(t, d.StartPnoScan(ctx, wifi.PnoScanConfig{}), wifi.ErrDriverNotLoaded)
	assert.ErrorIs(t, d.StopPnoScan(ctx), wifi.ErrDriverNotLoaded)
	_, err := d.QueryScanResults(ctx)
	assert.ErrorIs(t, err, wifi.ErrDriverNotLoaded)

	loadErr := assert.AnError
	d.SetLoadError(loadErr)
	assert.ErrorIs(t, d.LoadDriver(ctx), loadErr)
}

func TestDriver_ScanCompletesAfterLatency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		freqs []int
		want  []string
	}{
		{name: "all_channels", freqs: nil, want: []string{"aa:bb:cc:00:00:01", "aa:bb:cc:00:00:02", "aa:bb:cc:00:00:03"}},
		{name: "filtered_channels", freqs: []int{2437, 5180}, want: []string{"aa:bb:cc:00:00:02", "aa:bb:cc:00:00:03"}},
		{name: "no_match", freqs: []int{5955}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, clock, rec := newTestDriver(t)
			ctx := context.Background()

			require.NoError(t, d.StartScan(ctx, wifi.HardwareScanParams{Frequencies: tt.freqs}))
			assert.ErrorIs(t, d.StartScan(ctx, wifi.HardwareScanParams{}), ErrScanBusy)

			clock.Advance(500 * time.Millisecond)
			assert.Empty(t, rec.kinds())

			clock.Advance(500 * time.Millisecond)
			assert.Equal(t, []wifi.DriverEventKind{wifi.DriverEventScanResultReady}, rec.kinds())

			results, err := d.QueryScanResults(ctx)
			require.NoError(t, err)
			var got []string
			for _, r := range results {
				got = append(got, r.BSSID)
				assert.Equal(t, simEpoch.Add(time.Second), r.Timestamp)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDriver_FailureInjection(t *testing.T) {
	t.Parallel()

	d, clock, rec := newTestDriver(t)
	ctx := context.Background()

	d.FailNextScans(1)
	require.NoError(t, d.StartScan(ctx, wifi.HardwareScanParams{}))
	clock.Advance(time.Second)
	require.NoError(t, d.StartScan(ctx, wifi.HardwareScanParams{}))
	clock.Advance(time.Second)

	assert.Equal(t, []wifi.DriverEventKind{
		wifi.DriverEventScanFailed,
		wifi.DriverEventScanResultReady,
	}, rec.kinds())

	d.SetStartScanError(assert.AnError)
	assert.ErrorIs(t, d.StartScan(ctx, wifi.HardwareScanParams{}), assert.AnError)
}

func TestDriver_UnloadCancelsScan(t *testing.T) {
	t.Parallel()

	d, clock, rec := newTestDriver(t)
	ctx := context.Background()

	require.NoError(t, d.StartScan(ctx, wifi.HardwareScanParams{}))
	d.UnloadDriver(ctx)
	clock.Advance(time.Minute)

	assert.Empty(t, rec.kinds())
}

func TestDriver_HardwarePno(t *testing.T) {
	t.Parallel()

	d, clock, rec := newTestDriver(t)
	ctx := context.Background()

	cfg := wifi.PnoScanConfig{
		ScanInterval:      30 * time.Second,
		MinRssi2Dot4GHz:   -80,
		MinRssi5GHz:       -77,
		SavedNetworkSSIDs: []string{"office"},
	}
	require.NoError(t, d.StartPnoScan(ctx, cfg))
	assert.True(t, d.PnoRunning())

	// Nothing saved is on the air, so sweeps keep rescheduling.
	clock.Advance(5 * time.Second)
	clock.Advance(30 * time.Second)
	assert.Empty(t, rec.kinds())
	assert.True(t, d.PnoRunning())

	d.SetAirNetworks(append(airNetworks(), wifi.ScanInfo{BSSID: "aa:bb:cc:00:00:09", SSID: "office", Frequency: 2462, RSSI: -70}))
	clock.Advance(30 * time.Second)

	assert.Equal(t, []wifi.DriverEventKind{wifi.DriverEventPnoResultReady}, rec.kinds())
	assert.False(t, d.PnoRunning())

	results, err := d.QueryScanResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "office", results[0].SSID)
}

func TestDriver_PnoBelowThresholdIgnored(t *testing.T) {
	t.Parallel()

	d, clock, rec := newTestDriver(t)
	ctx := context.Background()

	// The only 5 GHz "home" entry is at -85 and 2.4 GHz is excluded.
	require.NoError(t, d.StartPnoScan(ctx, wifi.PnoScanConfig{
		ScanInterval:      30 * time.Second,
		MinRssi2Dot4GHz:   -80,
		MinRssi5GHz:       -77,
		SavedNetworkSSIDs: []string{"home"},
		Frequencies:       []int{5180},
	}))
	clock.Advance(5 * time.Second)
	assert.Empty(t, rec.kinds())

	require.NoError(t, d.StopPnoScan(ctx))
	assert.False(t, d.PnoRunning())
	clock.Advance(time.Minute)
	assert.Empty(t, rec.kinds())
}

func TestDriver_PnoStartErrors(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDriver(t)
	ctx := context.Background()

	d.FailNextPnoStarts(1)
	err := d.StartPnoScan(ctx, wifi.PnoScanConfig{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, wifi.ErrPnoNotSupported)
	require.NoError(t, d.StartPnoScan(ctx, wifi.PnoScanConfig{}))

	d.SetHardwarePno(false)
	assert.ErrorIs(t, d.StartPnoScan(ctx, wifi.PnoScanConfig{}), wifi.ErrPnoNotSupported)
}
