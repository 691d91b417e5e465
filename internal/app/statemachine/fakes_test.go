package statemachine

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

type fakeDriver struct {
	mu sync.Mutex

	loadErr      error
	startScanErr error
	startPnoErr  error
	queryErr     error
	results      []wifi.ScanInfo

	loads     int
	unloads   int
	scans     []wifi.HardwareScanParams
	pnoStarts []wifi.PnoScanConfig
	pnoStops  int
}

var _ wifi.Driver = (*fakeDriver)(nil)

func (d *fakeDriver) LoadDriver(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	return d.loadErr
}

func (d *fakeDriver) UnloadDriver(context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unloads++
}

func (d *fakeDriver) StartScan(_ context.Context, p wifi.HardwareScanParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startScanErr != nil {
		return d.startScanErr
	}
	d.scans = append(d.scans, p)
	return nil
}

func (d *fakeDriver) StartPnoScan(_ context.Context, cfg wifi.PnoScanConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startPnoErr != nil {
		return d.startPnoErr
	}
	d.pnoStarts = append(d.pnoStarts, cfg)
	return nil
}

func (d *fakeDriver) StopPnoScan(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pnoStops++
	return nil
}

func (d *fakeDriver) QueryScanResults(context.Context) ([]wifi.ScanInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.results), d.queryErr
}

func (d *fakeDriver) set(fn func(d *fakeDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDriver) scanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scans)
}

type fakeCaps struct{ hwPno bool }

func (c fakeCaps) GetSupportHwPnoFlag(context.Context) bool { return c.hwPno }

var machineEpoch = time.Date(2025, time.April, 7, 9, 30, 0, 0, time.UTC)

// harness runs a Machine on a live loop driven by a manual clock. Reports are
// appended on the loop and read by the test after a barrier.
type harness struct {
	t       *testing.T
	clock   *timeutil.ManualClock
	driver  *fakeDriver
	m       *Machine
	reports []wifi.ScanStatusReport
}

func newHarness(t *testing.T, hwPno bool, opts ...Option) *harness {
	t.Helper()

	h := &harness{t: t, clock: timeutil.NewManualClock(machineEpoch), driver: new(fakeDriver)}
	opts = append(opts, WithReporter(func(_ context.Context, r wifi.ScanStatusReport) {
		h.reports = append(h.reports, r)
	}))
	h.m = NewMachine(NewLoop(), h.driver, fakeCaps{hwPno: hwPno}, h.clock, h.clock, Config{
		WaitResultTimeout:   10 * time.Second,
		SoftwarePnoInterval: 30 * time.Second,
	}, logger.Noop(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) do(fn func(ctx context.Context)) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.m.Loop().Do(ctx, fn))
}

func (h *harness) prepare() {
	h.t.Helper()
	var err error
	h.do(func(ctx context.Context) { err = h.m.Prepare(ctx) })
	require.NoError(h.t, err)
}

func (h *harness) send(msg Message) {
	h.t.Helper()
	h.do(func(ctx context.Context) { h.m.Dispatch(ctx, msg) })
}

func (h *harness) scan(index int, style wifi.ScanStyle, freqs ...int) {
	h.t.Helper()
	h.send(Message{Kind: CmdCommonScan, Index: index, Request: wifi.InterScanConfig{
		ScanFreqs: freqs,
		ScanStyle: style,
		Extern:    true,
		AppID:     wifi.AppID(index),
	}})
}

func (h *harness) driverEvent(kind wifi.DriverEventKind) {
	h.t.Helper()
	h.m.OnDriverEvent(wifi.DriverEvent{Kind: kind})
	h.do(func(context.Context) {})
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.do(func(context.Context) {})
}

func (h *harness) state() StateID {
	h.t.Helper()
	var s StateID
	h.do(func(context.Context) { s = h.m.State() })
	return s
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	var s Snapshot
	h.do(func(context.Context) { s = h.m.Snapshot() })
	return s
}

func (h *harness) lastReport() wifi.ScanStatusReport {
	h.t.Helper()
	require.NotEmpty(h.t, h.reports)
	return h.reports[len(h.reports)-1]
}

func (h *harness) reportsWith(status wifi.ScanStatus) []wifi.ScanStatusReport {
	var out []wifi.ScanStatusReport
	for _, r := range h.reports {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func testPnoConfig() wifi.PnoScanConfig {
	return wifi.PnoScanConfig{
		ScanInterval:      30 * time.Second,
		MinRssi2Dot4GHz:   -80,
		MinRssi5GHz:       -75,
		SavedNetworkSSIDs: []string{"home"},
		Frequencies:       []int{2412, 5180},
	}
}
