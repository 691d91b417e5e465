package orchestration

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/scand/internal/app/policy"
	"github.com/ahrav/scand/internal/app/statemachine"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

type fakeDriver struct {
	mu sync.Mutex

	loadErr      error
	startScanErr error
	startPnoErr  error
	results      []wifi.ScanInfo

	loads       int
	unloads     int
	scans       []wifi.HardwareScanParams
	pnoAttempts int
	pnoStarts   []wifi.PnoScanConfig
	pnoStops    int
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
	d.pnoAttempts++
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
	return slices.Clone(d.results), nil
}

func (d *fakeDriver) set(fn func(d *fakeDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDriver) read(fn func(d *fakeDriver)) { d.set(fn) }

// fakeStore is only touched on the loop; tests read it after a barrier.
type fakeStore struct {
	control     wifi.ScanControlInfo
	freqs       map[wifi.Band][]int
	hwPno       bool
	screenOn    bool
	saved       []wifi.NetworkConfig
	savedErr    error
	stored      [][]wifi.ScanInfo
	switchovers int
}

var _ wifi.ConfigStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		freqs: map[wifi.Band][]int{
			wifi.Band24GHz: {2412, 2437, 2462},
			wifi.Band5GHz:  {5180, 5200},
			wifi.BandBoth:  {2412, 2437, 2462, 5180, 5200},
		},
		hwPno:    true,
		screenOn: true,
		saved: []wifi.NetworkConfig{
			{NetworkID: 1, SSID: "home"},
			{NetworkID: 2, SSID: "attic", HiddenSSID: true},
		},
	}
}

func (s *fakeStore) GetScanControlInfo(context.Context) (wifi.ScanControlInfo, error) {
	return s.control, nil
}

func (s *fakeStore) GetSupportedFrequencies(_ context.Context, band wifi.Band) ([]int, error) {
	return slices.Clone(s.freqs[band]), nil
}

func (s *fakeStore) GetSupportHwPnoFlag(context.Context) bool { return s.hwPno }
func (s *fakeStore) GetScreenState(context.Context) bool      { return s.screenOn }

func (s *fakeStore) GetSavedNetworkConfigs(context.Context) ([]wifi.NetworkConfig, error) {
	return slices.Clone(s.saved), s.savedErr
}

func (s *fakeStore) SaveScanResultList(_ context.Context, results []wifi.ScanInfo) error {
	s.stored = append(s.stored, results)
	return nil
}

func (s *fakeStore) GetWhetherToAllowNetworkSwitchover(context.Context) bool {
	s.switchovers++
	return true
}

type recordedCallbacks struct {
	starts   int
	stops    int
	finishes [][]int
	infos    [][]wifi.ScanInfo
	storeds  [][]wifi.ScanInfo
}

var _ wifi.ScanCallbacks = (*recordedCallbacks)(nil)

func (c *recordedCallbacks) OnScanStartEvent(context.Context) { c.starts++ }
func (c *recordedCallbacks) OnScanStopEvent(context.Context)  { c.stops++ }

func (c *recordedCallbacks) OnScanFinishEvent(_ context.Context, indices []int) {
	c.finishes = append(c.finishes, slices.Clone(indices))
}

func (c *recordedCallbacks) OnScanInfoEvent(_ context.Context, results []wifi.ScanInfo) {
	c.infos = append(c.infos, results)
}

func (c *recordedCallbacks) OnStoreScanInfoEvent(_ context.Context, results []wifi.ScanInfo) {
	c.storeds = append(c.storeds, results)
}

var orchestratorEpoch = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		DefaultBand:              wifi.BandBoth,
		SystemScanMinInterval:    20 * time.Second,
		SystemScanMaxInterval:    80 * time.Second,
		DisconnectedScanInterval: 120 * time.Second,
		MaxPnoFailures:           2,
		PnoRestartInitialBackoff: 5 * time.Second,
		PnoRestartMaxBackoff:     40 * time.Second,
		PnoScanInterval:          30 * time.Second,
		PnoMinRssi2Dot4GHz:       -80,
		PnoMinRssi5GHz:           -77,
	}
}

type harness struct {
	t         *testing.T
	clock     *timeutil.ManualClock
	driver    *fakeDriver
	store     *fakeStore
	callbacks *recordedCallbacks
	machine   *statemachine.Machine
	engine    *policy.Engine
	o         *Orchestrator
}

func newHarness(t *testing.T, configure ...func(*fakeStore)) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		clock:     timeutil.NewManualClock(orchestratorEpoch),
		driver:    new(fakeDriver),
		store:     newFakeStore(),
		callbacks: new(recordedCallbacks),
	}
	for _, fn := range configure {
		fn(h.store)
	}

	log := logger.Noop()
	h.machine = statemachine.NewMachine(
		statemachine.NewLoop(), h.driver, h.store, h.clock, h.clock,
		statemachine.Config{WaitResultTimeout: 10 * time.Second, SoftwarePnoInterval: 30 * time.Second},
		log,
	)
	h.engine = policy.NewEngine(policy.NewStore(wifi.ScanControlInfo{}), h.clock, log)

	metrics, err := NewOrchestrationMetrics(noop.NewMeterProvider())
	require.NoError(t, err)
	h.o = NewOrchestrator(h.machine, h.engine, h.store, h.callbacks, h.clock, testConfig(),
		log, metrics, tracenoop.NewTracerProvider().Tracer("test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.machine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) init() {
	h.t.Helper()
	require.NoError(h.t, h.o.Init(h.ctx()))
}

func (h *harness) barrier() {
	h.t.Helper()
	require.NoError(h.t, h.machine.Loop().Sync(h.ctx()))
}

func (h *harness) driverEvent(kind wifi.DriverEventKind) {
	h.t.Helper()
	h.machine.OnDriverEvent(wifi.DriverEvent{Kind: kind})
	h.barrier()
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.barrier()
}

func (h *harness) view() View {
	h.t.Helper()
	v, err := h.o.State(h.ctx())
	require.NoError(h.t, err)
	return v
}

func (h *harness) timerArmed(ev wifi.InnerEvent) bool {
	h.t.Helper()
	var armed bool
	require.NoError(h.t, h.machine.Loop().Do(h.ctx(), func(context.Context) {
		armed = h.machine.TimerArmed(ev)
	}))
	return armed
}

func (h *harness) scanCount() int {
	var n int
	h.driver.read(func(d *fakeDriver) { n = len(d.scans) })
	return n
}
