// Package sim provides a simulated radio driver. Access points are placed
// "on the air" with SetAirNetworks; scans complete after a configurable
// latency and report through the subscribed DriverEventHandler.
package sim

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

// ErrScanBusy is returned by StartScan while an earlier scan is still running.
var ErrScanBusy = errors.New("sim driver: scan already in progress")

// Config controls the simulated radio.
type Config struct {
	ScanLatency time.Duration
	// PnoLatency is the delay before the first PNO sweep; later sweeps run
	// at the requested PNO interval.
	PnoLatency  time.Duration
	HardwarePno bool
}

// DefaultConfig returns latencies close to a real 2.4+5 GHz sweep.
func DefaultConfig() Config {
	return Config{
		ScanLatency: 3 * time.Second,
		PnoLatency:  10 * time.Second,
		HardwarePno: true,
	}
}

// Driver implements wifi.Driver against an in-memory list of access points.
type Driver struct {
	mu sync.Mutex

	cfg     Config
	sched   timeutil.Scheduler
	clock   timeutil.Provider
	handler wifi.DriverEventHandler

	loaded  bool
	air     []wifi.ScanInfo
	results []wifi.ScanInfo

	loadErr      error
	startScanErr error
	scanFailures int
	pnoFailures  int

	scanTimer timeutil.Timer
	scanGen   uint64
	pnoTimer  timeutil.Timer
	pno       *wifi.PnoScanConfig

	logger *logger.Logger
}

var _ wifi.Driver = (*Driver)(nil)

// New creates a simulated driver. Events are dropped until Subscribe is called.
func New(cfg Config, sched timeutil.Scheduler, clock timeutil.Provider, log *logger.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		sched:  sched,
		clock:  clock,
		logger: log.With("component", "sim_driver"),
	}
}

// Subscribe registers the handler for asynchronous driver events. The handler
// must not block.
func (d *Driver) Subscribe(h wifi.DriverEventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// SetAirNetworks replaces the access points visible to the radio.
func (d *Driver) SetAirNetworks(networks []wifi.ScanInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.air = slices.Clone(networks)
}

// SetLoadError makes the next LoadDriver calls fail with err. Nil clears it.
func (d *Driver) SetLoadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadErr = err
}

// SetStartScanError makes StartScan fail synchronously with err. Nil clears it.
func (d *Driver) SetStartScanError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startScanErr = err
}

// FailNextScans makes the next n accepted scans end with a ScanFailed event.
func (d *Driver) FailNextScans(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanFailures = n
}

// FailNextPnoStarts makes the next n StartPnoScan calls fail.
func (d *Driver) FailNextPnoStarts(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pnoFailures = n
}

// SetHardwarePno toggles hardware PNO support.
func (d *Driver) SetHardwarePno(supported bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.HardwarePno = supported
}

// PnoRunning reports whether a hardware PNO sweep is scheduled.
func (d *Driver) PnoRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pno != nil
}

// LoadDriver powers up the radio.
func (d *Driver) LoadDriver(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return d.loadErr
	}
	d.loaded = true
	d.logger.Info(ctx, "Simulated driver loaded", "air_networks", len(d.air))
	return nil
}

// UnloadDriver powers down the radio and cancels outstanding work.
func (d *Driver) UnloadDriver(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.stopScanLocked()
	d.stopPnoLocked()
	d.logger.Info(ctx, "Simulated driver unloaded")
}

// StartScan begins a one-shot scan over params.Frequencies, or every channel
// when none are given.
func (d *Driver) StartScan(ctx context.Context, params wifi.HardwareScanParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.loaded:
		return wifi.ErrDriverNotLoaded
	case d.startScanErr != nil:
		return d.startScanErr
	case d.scanTimer != nil:
		return ErrScanBusy
	}

	fail := d.scanFailures > 0
	if fail {
		d.scanFailures--
	}
	freqs := slices.Clone(params.Frequencies)
	d.scanGen++
	gen := d.scanGen
	d.scanTimer = d.sched.AfterFunc(d.cfg.ScanLatency, func() { d.completeScan(gen, freqs, fail) })

	d.logger.Debug(ctx, "Simulated scan started",
		"frequencies", len(freqs),
		"hidden_ssids", len(params.HiddenSSIDs),
		"will_fail", fail,
	)
	return nil
}

func (d *Driver) completeScan(gen uint64, freqs []int, fail bool) {
	d.mu.Lock()
	if gen != d.scanGen || d.scanTimer == nil || !d.loaded {
		d.mu.Unlock()
		return
	}
	d.scanTimer = nil
	kind := wifi.DriverEventScanFailed
	if !fail {
		kind = wifi.DriverEventScanResultReady
		d.results = d.visibleLocked(func(ap wifi.ScanInfo) bool {
			return len(freqs) == 0 || slices.Contains(freqs, ap.Frequency)
		})
	}
	h := d.handler
	d.mu.Unlock()

	d.emit(h, kind)
}

// StartPnoScan schedules periodic background sweeps for cfg's networks.
func (d *Driver) StartPnoScan(ctx context.Context, cfg wifi.PnoScanConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case !d.loaded:
		return wifi.ErrDriverNotLoaded
	case !d.cfg.HardwarePno:
		return wifi.ErrPnoNotSupported
	case d.pnoFailures > 0:
		d.pnoFailures--
		return errors.New("sim driver: pno start rejected")
	}

	d.stopPnoLocked()
	cfg = cfg.Clone()
	d.pno = &cfg
	d.schedulePnoLocked(d.cfg.PnoLatency)

	d.logger.Debug(ctx, "Simulated PNO started",
		"saved_networks", len(cfg.SavedNetworkSSIDs),
		"interval", cfg.ScanInterval.String(),
	)
	return nil
}

func (d *Driver) schedulePnoLocked(after time.Duration) {
	pno := d.pno
	d.pnoTimer = d.sched.AfterFunc(after, func() { d.pnoSweep(pno) })
}

func (d *Driver) pnoSweep(pno *wifi.PnoScanConfig) {
	d.mu.Lock()
	if d.pno != pno || !d.loaded {
		d.mu.Unlock()
		return
	}
	matches := d.visibleLocked(func(ap wifi.ScanInfo) bool {
		known := slices.Contains(pno.SavedNetworkSSIDs, ap.SSID) || slices.Contains(pno.HiddenNetworkSSIDs, ap.SSID)
		inBand := len(pno.Frequencies) == 0 || slices.Contains(pno.Frequencies, ap.Frequency)
		return known && inBand && pno.AboveThreshold(ap)
	})
	if len(matches) == 0 {
		if pno.ScanInterval > 0 {
			d.schedulePnoLocked(pno.ScanInterval)
		} else {
			d.pnoTimer = nil
		}
		d.mu.Unlock()
		return
	}
	// Hardware PNO stops itself once it has found a match.
	d.results = matches
	d.pno = nil
	d.pnoTimer = nil
	h := d.handler
	d.mu.Unlock()

	d.emit(h, wifi.DriverEventPnoResultReady)
}

// StopPnoScan cancels background sweeps. Stopping an idle PNO is a no-op.
func (d *Driver) StopPnoScan(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return wifi.ErrDriverNotLoaded
	}
	d.stopPnoLocked()
	d.logger.Debug(ctx, "Simulated PNO stopped")
	return nil
}

// QueryScanResults returns the results of the last completed scan or PNO sweep.
func (d *Driver) QueryScanResults(context.Context) ([]wifi.ScanInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, wifi.ErrDriverNotLoaded
	}
	return slices.Clone(d.results), nil
}

func (d *Driver) visibleLocked(keep func(wifi.ScanInfo) bool) []wifi.ScanInfo {
	now := d.clock.Now()
	var out []wifi.ScanInfo
	for _, ap := range d.air {
		if !keep(ap) {
			continue
		}
		ap.Timestamp = now
		out = append(out, ap)
	}
	return out
}

func (d *Driver) stopScanLocked() {
	if d.scanTimer != nil {
		d.scanTimer.Stop()
		d.scanTimer = nil
	}
}

func (d *Driver) stopPnoLocked() {
	if d.pnoTimer != nil {
		d.pnoTimer.Stop()
		d.pnoTimer = nil
	}
	d.pno = nil
}

func (d *Driver) emit(h wifi.DriverEventHandler, kind wifi.DriverEventKind) {
	if h == nil {
		return
	}
	h(wifi.DriverEvent{Kind: kind})
}
