// Package statemachine drives the radio through common scans, hardware PNO and
// software-emulated PNO. All work happens on a single Loop goroutine; driver
// events and timer firings are posted back onto that loop.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

// Capabilities reports what the radio supports.
type Capabilities interface {
	GetSupportHwPnoFlag(ctx context.Context) bool
}

// Reporter receives every status report, synchronously, on the loop.
type Reporter func(ctx context.Context, report wifi.ScanStatusReport)

// ScanningObserver is told, on the loop, each time a hardware scan starts or
// stops being in flight. One-shot PNO scans count.
type ScanningObserver func(ctx context.Context, scanning bool)

// ConfirmPnoFunc decides whether a PNO result set warrants a confirmatory
// common scan.
type ConfirmPnoFunc func(cfg wifi.PnoScanConfig, results []wifi.ScanInfo) bool

// Metrics is the instrumentation the machine records into.
type Metrics interface {
	IncTransitions(from, to string)
	IncDriverCalls(op string, success bool)
	IncReports(status string)
	ObserveScanDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncTransitions(string, string)     {}
func (noopMetrics) IncDriverCalls(string, bool)       {}
func (noopMetrics) IncReports(string)                 {}
func (noopMetrics) ObserveScanDuration(time.Duration) {}

// Config holds the machine's timing parameters.
type Config struct {
	// WaitResultTimeout bounds how long a dispatched scan may go without a
	// driver event before it is failed.
	WaitResultTimeout time.Duration
	// SoftwarePnoInterval spaces software PNO scans when the PNO config does
	// not carry its own interval.
	SoftwarePnoInterval time.Duration
}

// DefaultConfig returns the timing used when none is configured.
func DefaultConfig() Config {
	return Config{
		WaitResultTimeout:   10 * time.Second,
		SoftwarePnoInterval: 60 * time.Second,
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithMetrics records machine activity into m.
func WithMetrics(m Metrics) Option {
	return func(sm *Machine) { sm.metrics = m }
}

// WithTracer traces driver calls with t.
func WithTracer(t trace.Tracer) Option {
	return func(sm *Machine) { sm.tracer = t }
}

// WithConfirmPno replaces DefaultConfirmPno.
func WithConfirmPno(fn ConfirmPnoFunc) Option {
	return func(sm *Machine) { sm.confirmPno = fn }
}

// WithScanningObserver sets the in-flight scan observer.
func WithScanningObserver(fn ScanningObserver) Option {
	return func(sm *Machine) { sm.onScanning = fn }
}

// WithReporter sets the report sink.
func WithReporter(r Reporter) Option {
	return func(sm *Machine) { sm.reporter = r }
}

// DefaultConfirmPno confirms when any result belongs to a saved or hidden
// network and clears the band RSSI floor.
func DefaultConfirmPno(cfg wifi.PnoScanConfig, results []wifi.ScanInfo) bool {
	for _, r := range results {
		known := slices.Contains(cfg.SavedNetworkSSIDs, r.SSID) || slices.Contains(cfg.HiddenNetworkSSIDs, r.SSID)
		if known && cfg.AboveThreshold(r) {
			return true
		}
	}
	return false
}

type scanRequest struct {
	index int
	cfg   wifi.InterScanConfig
}

// Machine is the scan lifecycle state machine. Methods documented as loop
// methods must only be called from closures running on Loop.
type Machine struct {
	sm     hsm
	loop   *Loop
	timers *timerSet
	clock  timeutil.Provider

	driver     wifi.Driver
	caps       Capabilities
	cfg        Config
	confirmPno ConfirmPnoFunc
	reporter   Reporter
	onScanning ScanningObserver

	driverLoaded     bool
	loadErr          error
	hwPnoUnsupported bool

	waiting         []scanRequest
	running         []scanRequest
	runningSettings wifi.RunningScanSettings
	dispatchedAt    time.Time

	pnoConfig       wifi.PnoScanConfig
	pnoConfigStored bool
	hwPnoActive     bool
	pnoResults      []wifi.ScanInfo

	metrics Metrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewMachine builds a Machine parked before Init. Call Prepare on the loop to
// load the driver.
func NewMachine(
	loop *Loop,
	driver wifi.Driver,
	caps Capabilities,
	sched timeutil.Scheduler,
	clock timeutil.Provider,
	cfg Config,
	log *logger.Logger,
	opts ...Option,
) *Machine {
	def := DefaultConfig()
	if cfg.WaitResultTimeout <= 0 {
		cfg.WaitResultTimeout = def.WaitResultTimeout
	}
	if cfg.SoftwarePnoInterval <= 0 {
		cfg.SoftwarePnoInterval = def.SoftwarePnoInterval
	}

	m := &Machine{
		loop:       loop,
		timers:     newTimerSet(sched, loop),
		clock:      clock,
		driver:     driver,
		caps:       caps,
		cfg:        cfg,
		confirmPno: DefaultConfirmPno,
		metrics:    noopMetrics{},
		logger:     log.With("component", "scan_state_machine"),
		tracer:     noop.NewTracerProvider().Tracer("statemachine"),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.sm.current = stateNone
	m.buildStates()
	m.sm.onTransition = func(from, to StateID) {
		m.metrics.IncTransitions(from.String(), to.String())
	}
	m.sm.onUnhandled = func(ctx context.Context, state StateID, msg Message) {
		m.logger.Debug(ctx, "Message ignored", "state", state.String(), "message", msg.Kind.String())
	}
	return m
}

func (m *Machine) buildStates() {
	def := func(parent StateID) stateDef { return stateDef{parent: parent, initial: stateNone} }
	st := &m.sm.states

	st[StateInit] = def(stateNone)
	st[StateInit].handle = m.handleInit

	st[StateHardwareReady] = def(StateInit)
	st[StateHardwareReady].exit = m.exitHardwareReady
	st[StateHardwareReady].handle = m.handleHardwareReady

	st[StateCommonScan] = def(StateHardwareReady)
	st[StateCommonScan].initial = StateCommonScanUnworked
	st[StateCommonScan].handle = m.handleCommonScan

	st[StateCommonScanUnworked] = def(StateCommonScan)
	st[StateCommonScanUnworked].enter = m.startCommonScan
	st[StateCommonScanUnworked].handle = m.handleCommonScanUnworked

	st[StateCommonScanning] = def(StateCommonScan)
	st[StateCommonScanning].enter = m.armWaitResult
	st[StateCommonScanning].exit = m.clearRunningSettings
	st[StateCommonScanning].handle = m.handleCommonScanning

	st[StatePnoScan] = def(StateHardwareReady)
	st[StatePnoScan].handle = m.handlePnoScan

	st[StatePnoScanHardware] = def(StatePnoScan)
	st[StatePnoScanHardware].enter = m.startPnoHardware
	st[StatePnoScanHardware].exit = m.stopPnoHardware
	st[StatePnoScanHardware].handle = m.handlePnoScanHardware

	st[StateCommonScanAfterPno] = def(StatePnoScanHardware)
	st[StateCommonScanAfterPno].enter = m.enterCommonScanAfterPno
	st[StateCommonScanAfterPno].exit = m.exitOneShot
	st[StateCommonScanAfterPno].handle = m.handleOneShot

	st[StatePnoScanSoftware] = def(StatePnoScan)
	st[StatePnoScanSoftware].initial = StatePnoSwScanning

	st[StatePnoSwScanFree] = def(StatePnoScanSoftware)
	st[StatePnoSwScanFree].enter = m.armSoftwarePno
	st[StatePnoSwScanFree].exit = func(context.Context) { m.timers.disarm(timerSoftwarePno) }
	st[StatePnoSwScanFree].handle = m.handlePnoSwScanFree

	st[StatePnoSwScanning] = def(StatePnoScanSoftware)
	st[StatePnoSwScanning].enter = m.enterPnoSwScanning
	st[StatePnoSwScanning].exit = m.exitOneShot
	st[StatePnoSwScanning].handle = m.handleOneShot
}

// Loop returns the loop the machine runs on.
func (m *Machine) Loop() *Loop { return m.loop }

// Run processes messages until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error { return m.loop.Run(ctx) }

// Post enqueues msg without waiting. Safe from any goroutine.
func (m *Machine) Post(msg Message) {
	m.loop.Post(func(ctx context.Context) { m.Dispatch(ctx, msg) })
}

// Send delivers msg and waits until it has been processed. It must not be
// called from the loop.
func (m *Machine) Send(ctx context.Context, msg Message) error {
	return m.loop.Do(ctx, func(ctx context.Context) { m.Dispatch(ctx, msg) })
}

// OnDriverEvent posts a driver notification onto the loop. It satisfies
// wifi.DriverEventHandler.
func (m *Machine) OnDriverEvent(ev wifi.DriverEvent) {
	msg, ok := driverMessage(ev)
	if !ok {
		return
	}
	m.Post(msg)
}

// SetReporter replaces the report sink. Call it before Run.
func (m *Machine) SetReporter(r Reporter) { m.reporter = r }

// SetScanningObserver replaces the in-flight scan observer. Call it before Run.
func (m *Machine) SetScanningObserver(fn ScanningObserver) { m.onScanning = fn }

// Dispatch processes msg in the current state. Loop method.
func (m *Machine) Dispatch(ctx context.Context, msg Message) {
	m.sm.dispatch(ctx, msg)
}

// Prepare enters Init if needed and loads the driver when parked there. A
// machine already past Init is left alone. Loop method.
func (m *Machine) Prepare(ctx context.Context) error {
	if m.sm.current == stateNone {
		m.sm.transitionTo(StateInit)
		m.sm.drain(ctx)
	}
	if m.sm.current != StateInit {
		return nil
	}
	m.Dispatch(ctx, Message{Kind: CmdScanPrepare})
	return m.loadErr
}

// CancelScan withdraws a waiting request and reports it failed. Requests
// already dispatched or merged cannot be withdrawn. Loop method.
func (m *Machine) CancelScan(ctx context.Context, index int) error {
	for i, r := range m.waiting {
		if r.index != index {
			continue
		}
		m.waiting = slices.Delete(m.waiting, i, i+1)
		m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusCommonScanFailed, RequestIndices: []int{index}})
		return nil
	}
	for _, r := range m.running {
		if r.index == index {
			return fmt.Errorf("cancel scan %d: %w", index, wifi.ErrScanNotCancellable)
		}
	}
	return fmt.Errorf("cancel scan %d: %w", index, wifi.ErrScanRequestNotFound)
}

// StartTimer arms the timer for ev, replacing one already armed. Its firing
// is reported as an InnerEvent status. Loop method.
func (m *Machine) StartTimer(ev wifi.InnerEvent, d time.Duration) {
	m.timers.arm(timerKind(ev.String()), d, func(ctx context.Context) {
		m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusInnerEvent, InnerEvent: ev})
	})
}

// StopTimer disarms the timer for ev. Loop method.
func (m *Machine) StopTimer(ev wifi.InnerEvent) { m.timers.disarm(timerKind(ev.String())) }

// TimerArmed reports whether the timer for ev is armed. Loop method.
func (m *Machine) TimerArmed(ev wifi.InnerEvent) bool {
	return m.timers.isArmed(timerKind(ev.String()))
}

// State returns the current leaf state. Loop method.
func (m *Machine) State() StateID { return m.sm.current }

// InState reports whether the machine is in s or one of its descendants.
// Loop method.
func (m *Machine) InState(s StateID) bool { return m.sm.in(s) }

// IsScanning reports whether a hardware scan is in flight. Loop method.
func (m *Machine) IsScanning() bool { return m.runningSettings.Active() }

// PnoConfig returns the stored PNO config. Loop method.
func (m *Machine) PnoConfig() (wifi.PnoScanConfig, bool) {
	return m.pnoConfig.Clone(), m.pnoConfigStored
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State             string `json:"state"`
	DriverLoaded      bool   `json:"driver_loaded"`
	Scanning          bool   `json:"scanning"`
	Running           []int  `json:"running"`
	Waiting           []int  `json:"waiting"`
	PnoConfigStored   bool   `json:"pno_config_stored"`
	HardwarePnoActive bool   `json:"hardware_pno_active"`
	ArmedTimers       int    `json:"armed_timers"`
}

// Snapshot returns the current view. Loop method.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:             m.sm.current.String(),
		DriverLoaded:      m.driverLoaded,
		Scanning:          m.runningSettings.Active(),
		Running:           indices(m.running),
		Waiting:           indices(m.waiting),
		PnoConfigStored:   m.pnoConfigStored,
		HardwarePnoActive: m.hwPnoActive,
		ArmedTimers:       m.timers.count(),
	}
}

func (m *Machine) report(ctx context.Context, r wifi.ScanStatusReport) {
	m.metrics.IncReports(r.Status.String())
	if m.reporter != nil {
		m.reporter(ctx, r)
	}
}

func (m *Machine) reportPnoFailed(ctx context.Context) {
	m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusPnoScanFailed})
}

func (m *Machine) enqueue(ctx context.Context, msg Message) {
	m.waiting = append(m.waiting, scanRequest{index: msg.Index, cfg: msg.Request})
	m.logger.Debug(ctx, "Scan request queued", "index", msg.Index, "waiting", len(m.waiting))
}

func (m *Machine) storePno(cfg wifi.PnoScanConfig) {
	m.pnoConfig = cfg.Clone()
	m.pnoConfigStored = true
}

func (m *Machine) clearPno() {
	m.pnoConfig = wifi.PnoScanConfig{}
	m.pnoConfigStored = false
}

// pnoTarget picks the PNO flavour for a fresh start.
func (m *Machine) pnoTarget(ctx context.Context) StateID {
	if !m.hwPnoUnsupported && m.caps.GetSupportHwPnoFlag(ctx) {
		return StatePnoScanHardware
	}
	return StatePnoScanSoftware
}

// pnoResumeTarget picks where PNO resumes after a one-shot scan.
func (m *Machine) pnoResumeTarget(ctx context.Context) StateID {
	if t := m.pnoTarget(ctx); t == StatePnoScanHardware {
		return t
	}
	return StatePnoSwScanFree
}

func (m *Machine) pnoInterval() time.Duration {
	if m.pnoConfig.ScanInterval > 0 {
		return m.pnoConfig.ScanInterval
	}
	return m.cfg.SoftwarePnoInterval
}

func (m *Machine) loadDriver(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "statemachine.load_driver")
	defer span.End()

	if err := m.driver.LoadDriver(ctx); err != nil {
		m.metrics.IncDriverCalls("load_driver", false)
		m.loadErr = fmt.Errorf("loading scan driver: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load driver")
		m.logger.Error(ctx, "Failed to load scan driver", "err", err)
		return
	}
	m.metrics.IncDriverCalls("load_driver", true)
	m.loadErr = nil
	m.driverLoaded = true
	span.SetStatus(codes.Ok, "driver loaded")

	m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusStarted})
	m.sm.transitionTo(StateHardwareReady)
}

func (m *Machine) unloadDriver(ctx context.Context) {
	if !m.driverLoaded {
		return
	}
	m.driver.UnloadDriver(ctx)
	m.metrics.IncDriverCalls("unload_driver", true)
	m.driverLoaded = false
	m.hwPnoUnsupported = false
}

// startScan issues one hardware scan and records it as running.
func (m *Machine) startScan(ctx context.Context, settings wifi.RunningScanSettings) error {
	params := settings.HardwareParams()
	ctx, span := m.tracer.Start(ctx, "statemachine.start_scan",
		trace.WithAttributes(
			attribute.Int("frequency_count", len(params.Frequencies)),
			attribute.Int("hidden_ssid_count", len(params.HiddenSSIDs)),
			attribute.String("scan_style", settings.ScanStyle.String()),
		))
	defer span.End()

	if err := m.driver.StartScan(ctx, params); err != nil {
		m.metrics.IncDriverCalls("start_scan", false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start scan")
		m.logger.Warn(ctx, "Failed to start scan", "err", err)
		return fmt.Errorf("starting scan: %w", err)
	}
	m.metrics.IncDriverCalls("start_scan", true)
	m.dispatchedAt = m.clock.Now()
	m.setRunningSettings(ctx, settings)
	return nil
}

func (m *Machine) queryResults(ctx context.Context) ([]wifi.ScanInfo, error) {
	results, err := m.driver.QueryScanResults(ctx)
	m.metrics.IncDriverCalls("query_scan_results", err == nil)
	if err != nil {
		m.logger.Warn(ctx, "Failed to query scan results", "err", err)
		return nil, fmt.Errorf("querying scan results: %w", err)
	}
	return results, nil
}

func (m *Machine) armWaitResult(context.Context) {
	m.timers.arm(timerWaitResult, m.cfg.WaitResultTimeout, func(ctx context.Context) {
		m.logger.Warn(ctx, "Timed out waiting for scan result", "state", m.sm.current.String())
		m.Dispatch(ctx, Message{Kind: EvtWaitResultTimeout})
	})
}

func (m *Machine) clearRunningSettings(ctx context.Context) {
	m.timers.disarm(timerWaitResult)
	if m.runningSettings.Active() {
		m.metrics.ObserveScanDuration(m.clock.Now().Sub(m.dispatchedAt))
	}
	m.setRunningSettings(ctx, wifi.RunningScanSettings{})
}

func (m *Machine) setRunningSettings(ctx context.Context, settings wifi.RunningScanSettings) {
	was := m.runningSettings.Active()
	m.runningSettings = settings
	if m.onScanning != nil && was != settings.Active() {
		m.onScanning(ctx, settings.Active())
	}
}

// Init.

func (m *Machine) handleInit(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case CmdScanPrepare:
		m.loadDriver(ctx)
	case CmdScanFinish:
		m.logger.Debug(ctx, "Finish received while parked in Init")
	case CmdCommonScan:
		m.logger.Warn(ctx, "Scan requested before driver load", "index", msg.Index)
		m.report(ctx, wifi.ScanStatusReport{
			Status:         wifi.ScanStatusCommonScanFailed,
			RequestIndices: []int{msg.Index},
		})
	case CmdStartPnoScan, CmdRestartPnoScan:
		m.reportPnoFailed(ctx)
	default:
		return false
	}
	return true
}

// HardwareReady.

func (m *Machine) handleHardwareReady(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case CmdCommonScan:
		m.enqueue(ctx, msg)
		m.sm.transitionTo(StateCommonScan)
	case CmdStartPnoScan:
		m.storePno(msg.Pno)
		m.sm.transitionTo(m.pnoTarget(ctx))
	case CmdRestartPnoScan:
		if m.pnoConfigStored {
			m.storePno(msg.Pno)
		}
	case CmdStopPnoScan:
		m.clearPno()
	case CmdScanFinish:
		m.sm.transitionTo(StateInit)
	default:
		return false
	}
	return true
}

// exitHardwareReady runs only on the way back to Init and releases
// everything the machine holds.
func (m *Machine) exitHardwareReady(ctx context.Context) {
	if pending := append(indices(m.running), indices(m.waiting)...); len(pending) > 0 {
		m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusCommonScanFailed, RequestIndices: pending})
	}
	m.running, m.waiting = nil, nil
	m.clearRunningSettings(ctx)
	m.pnoResults = nil
	m.clearPno()
	m.timers.disarmAll()
	m.unloadDriver(ctx)

	m.logger.Info(ctx, "Scan driver unloaded")
	m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusFinished})
}

// CommonScan.

func (m *Machine) handleCommonScan(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case CmdStartPnoScan:
		m.storePno(msg.Pno)
		if m.sm.current == StateCommonScanUnworked && len(m.waiting) == 0 {
			m.sm.transitionTo(m.pnoTarget(ctx))
		}
	case CmdRestartPnoScan:
		if m.pnoConfigStored {
			m.storePno(msg.Pno)
		}
	case CmdStopPnoScan:
		m.clearPno()
	default:
		return false
	}
	return true
}

// startCommonScan dispatches every waiting request as one merged scan. With
// nothing waiting, a stored PNO config is resumed.
func (m *Machine) startCommonScan(ctx context.Context) {
	if len(m.waiting) == 0 {
		if m.pnoConfigStored {
			m.sm.transitionTo(m.pnoResumeTarget(ctx))
		}
		return
	}

	batch := m.waiting
	m.waiting = nil
	cfgs := make([]wifi.InterScanConfig, len(batch))
	for i, r := range batch {
		cfgs[i] = r.cfg
	}

	if err := m.startScan(ctx, wifi.NewRunningScanSettings(cfgs)); err != nil {
		m.report(ctx, wifi.ScanStatusReport{
			Status:         wifi.ScanStatusCommonScanFailed,
			RequestIndices: indices(batch),
		})
		if m.pnoConfigStored {
			m.sm.transitionTo(m.pnoResumeTarget(ctx))
		}
		return
	}

	m.running = batch
	m.sm.transitionTo(StateCommonScanning)
}

func (m *Machine) handleCommonScanUnworked(ctx context.Context, msg Message) bool {
	if msg.Kind != CmdCommonScan {
		return false
	}
	m.enqueue(ctx, msg)
	m.startCommonScan(ctx)
	return true
}

func (m *Machine) handleCommonScanning(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case CmdCommonScan:
		if m.runningSettings.Covers(msg.Request) {
			m.running = append(m.running, scanRequest{index: msg.Index, cfg: msg.Request})
			m.runningSettings.Absorb(msg.Request)
			m.logger.Debug(ctx, "Scan request merged into running scan", "index", msg.Index)
			return true
		}
		m.enqueue(ctx, msg)
	case EvtScanResultReady:
		results, err := m.queryResults(ctx)
		if err != nil {
			m.failCommonScan(ctx)
			return true
		}
		m.report(ctx, wifi.ScanStatusReport{
			Status:         wifi.ScanStatusCommonScanSuccess,
			RequestIndices: indices(m.running),
			Results:        results,
		})
		m.running = nil
		m.sm.transitionTo(StateCommonScanUnworked)
	case EvtScanFailed, EvtWaitResultTimeout:
		m.failCommonScan(ctx)
	default:
		return false
	}
	return true
}

func (m *Machine) failCommonScan(ctx context.Context) {
	m.report(ctx, wifi.ScanStatusReport{
		Status:         wifi.ScanStatusCommonScanFailed,
		RequestIndices: append(indices(m.running), indices(m.waiting)...),
	})
	m.running, m.waiting = nil, nil
	m.sm.transitionTo(StateCommonScanUnworked)
}

// PnoScan.

func (m *Machine) handlePnoScan(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case CmdCommonScan:
		// A common scan interrupts PNO; the stored config brings it back.
		m.enqueue(ctx, msg)
		m.sm.transitionTo(StateCommonScan)
	case CmdStartPnoScan, CmdRestartPnoScan:
		m.storePno(msg.Pno)
		m.sm.reenter(m.pnoTarget(ctx))
	case CmdStopPnoScan:
		m.clearPno()
		m.sm.transitionTo(StateHardwareReady)
	default:
		return false
	}
	return true
}

func (m *Machine) startPnoHardware(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "statemachine.start_pno_scan",
		trace.WithAttributes(
			attribute.Int("saved_ssid_count", len(m.pnoConfig.SavedNetworkSSIDs)),
			attribute.String("interval", m.pnoConfig.ScanInterval.String()),
		))
	defer span.End()

	err := m.driver.StartPnoScan(ctx, m.pnoConfig.Clone())
	m.metrics.IncDriverCalls("start_pno_scan", err == nil)
	switch {
	case err == nil:
		m.hwPnoActive = true
		span.SetStatus(codes.Ok, "hardware pno started")
	case errors.Is(err, wifi.ErrPnoNotSupported):
		m.hwPnoUnsupported = true
		span.AddEvent("falling back to software pno")
		m.logger.Info(ctx, "Hardware PNO not supported, using software PNO")
		m.sm.transitionTo(StatePnoScanSoftware)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start hardware pno")
		m.logger.Warn(ctx, "Failed to start hardware PNO", "err", err)
		m.reportPnoFailed(ctx)
		m.sm.transitionTo(StateHardwareReady)
	}
}

func (m *Machine) stopPnoHardware(ctx context.Context) {
	if !m.hwPnoActive {
		return
	}
	m.hwPnoActive = false
	err := m.driver.StopPnoScan(ctx)
	m.metrics.IncDriverCalls("stop_pno_scan", err == nil)
	if err != nil {
		m.logger.Warn(ctx, "Failed to stop hardware PNO", "err", err)
	}
}

func (m *Machine) handlePnoScanHardware(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case EvtPnoResultReady:
		results, err := m.queryResults(ctx)
		if err != nil {
			m.reportPnoFailed(ctx)
			return true
		}
		if m.confirmPno(m.pnoConfig, results) {
			m.pnoResults = results
			m.sm.transitionTo(StateCommonScanAfterPno)
			return true
		}
		m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusPnoScanInfo, Results: results})
	case CmdRestartPnoScan:
		m.storePno(msg.Pno)
		m.sm.transitionTo(StatePnoScanHardware)
	default:
		return false
	}
	return true
}

// One-shot PNO scans: CommonScanAfterPno and PnoSwScanning.

func (m *Machine) enterCommonScanAfterPno(ctx context.Context) {
	m.stopPnoHardware(ctx)
	m.startOneShot(ctx)
}

func (m *Machine) enterPnoSwScanning(ctx context.Context) {
	m.startOneShot(ctx)
}

func (m *Machine) startOneShot(ctx context.Context) {
	settings := wifi.NewRunningScanSettings([]wifi.InterScanConfig{m.pnoConfig.ScanConfig()})
	if err := m.startScan(ctx, settings); err != nil {
		m.reportPnoFailed(ctx)
		m.resumeAfterOneShot(ctx)
		return
	}
	m.armWaitResult(ctx)
}

func (m *Machine) exitOneShot(ctx context.Context) {
	m.clearRunningSettings(ctx)
	m.pnoResults = nil
}

func (m *Machine) handleOneShot(ctx context.Context, msg Message) bool {
	switch msg.Kind {
	case EvtScanResultReady:
		results, err := m.queryResults(ctx)
		if err != nil {
			m.reportPnoFailed(ctx)
		} else {
			if len(m.pnoResults) > 0 {
				results = wifi.MergeScanResults(m.pnoResults, results)
			}
			m.report(ctx, wifi.ScanStatusReport{Status: wifi.ScanStatusPnoScanInfo, Results: results})
		}
		m.resumeAfterOneShot(ctx)
	case EvtScanFailed, EvtWaitResultTimeout:
		m.reportPnoFailed(ctx)
		m.resumeAfterOneShot(ctx)
	case EvtPnoResultReady, EvtSoftwarePnoTick:
		// Superseded by the scan in flight.
	case CmdCommonScan:
		m.enqueue(ctx, msg)
	case CmdStartPnoScan, CmdRestartPnoScan:
		m.storePno(msg.Pno)
	case CmdStopPnoScan:
		m.clearPno()
	default:
		return false
	}
	return true
}

// resumeAfterOneShot drains queued common requests first, then resumes PNO
// if it is still wanted.
func (m *Machine) resumeAfterOneShot(ctx context.Context) {
	switch {
	case len(m.waiting) > 0:
		m.sm.transitionTo(StateCommonScan)
	case m.pnoConfigStored:
		// From CommonScanAfterPno this restarts hardware PNO.
		m.sm.reenter(m.pnoResumeTarget(ctx))
	default:
		m.sm.transitionTo(StateHardwareReady)
	}
}

// PnoScanSoftware.

func (m *Machine) armSoftwarePno(context.Context) {
	m.timers.arm(timerSoftwarePno, m.pnoInterval(), func(ctx context.Context) {
		m.Dispatch(ctx, Message{Kind: EvtSoftwarePnoTick})
	})
}

func (m *Machine) handlePnoSwScanFree(_ context.Context, msg Message) bool {
	if msg.Kind != EvtSoftwarePnoTick {
		return false
	}
	m.sm.transitionTo(StatePnoSwScanning)
	return true
}

func indices(reqs []scanRequest) []int {
	out := make([]int, len(reqs))
	for i, r := range reqs {
		out[i] = r.index
	}
	return out
}
