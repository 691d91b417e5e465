// Package orchestration is the externally facing scan coordinator. It checks
// every request against the policy engine, drives the scan state machine and
// routes the machine's status reports to the settings store and the upstream
// callbacks. All of its state lives on the state machine's loop.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/internal/app/policy"
	"github.com/ahrav/scand/internal/app/statemachine"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

// Config holds the orchestrator's scheduling parameters.
type Config struct {
	// DefaultBand is expanded into frequencies for plain scans.
	DefaultBand wifi.Band

	// SystemScanMinInterval is the first period of the screen-on system scan.
	// Each tick doubles it up to SystemScanMaxInterval.
	SystemScanMinInterval time.Duration
	SystemScanMaxInterval time.Duration

	// DisconnectedScanInterval spaces scans while the screen is off and the
	// station is disconnected.
	DisconnectedScanInterval time.Duration

	// MaxPnoFailures is the number of consecutive PNO failures tolerated
	// before restarts stop until PNO is requested again.
	MaxPnoFailures           int
	PnoRestartInitialBackoff time.Duration
	PnoRestartMaxBackoff     time.Duration

	PnoScanInterval    time.Duration
	PnoMinRssi2Dot4GHz int
	PnoMinRssi5GHz     int
}

// DefaultConfig returns the parameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		DefaultBand:              wifi.BandBoth,
		SystemScanMinInterval:    20 * time.Second,
		SystemScanMaxInterval:    160 * time.Second,
		DisconnectedScanInterval: 120 * time.Second,
		MaxPnoFailures:           5,
		PnoRestartInitialBackoff: 5 * time.Second,
		PnoRestartMaxBackoff:     5 * time.Minute,
		PnoScanInterval:          60 * time.Second,
		PnoMinRssi2Dot4GHz:       -80,
		PnoMinRssi5GHz:           -77,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultBand == wifi.BandUnspecified {
		c.DefaultBand = def.DefaultBand
	}
	if c.SystemScanMinInterval <= 0 {
		c.SystemScanMinInterval = def.SystemScanMinInterval
	}
	if c.SystemScanMaxInterval < c.SystemScanMinInterval {
		c.SystemScanMaxInterval = max(def.SystemScanMaxInterval, c.SystemScanMinInterval)
	}
	if c.DisconnectedScanInterval <= 0 {
		c.DisconnectedScanInterval = def.DisconnectedScanInterval
	}
	if c.MaxPnoFailures <= 0 {
		c.MaxPnoFailures = def.MaxPnoFailures
	}
	if c.PnoRestartInitialBackoff <= 0 {
		c.PnoRestartInitialBackoff = def.PnoRestartInitialBackoff
	}
	if c.PnoRestartMaxBackoff < c.PnoRestartInitialBackoff {
		c.PnoRestartMaxBackoff = max(def.PnoRestartMaxBackoff, c.PnoRestartInitialBackoff)
	}
	if c.PnoScanInterval <= 0 {
		c.PnoScanInterval = def.PnoScanInterval
	}
	if c.PnoMinRssi2Dot4GHz == 0 {
		c.PnoMinRssi2Dot4GHz = def.PnoMinRssi2Dot4GHz
	}
	if c.PnoMinRssi5GHz == 0 {
		c.PnoMinRssi5GHz = def.PnoMinRssi5GHz
	}
	return c
}

var validate = validator.New()

// Orchestrator coordinates scan requests, the policy engine and the scan
// state machine. Its exported methods are safe for concurrent use; each one
// runs on the machine's loop. HandleScanStatusReport is the exception: it is
// the machine's reporter and is only ever called on the loop.
type Orchestrator struct {
	machine   *statemachine.Machine
	loop      *statemachine.Loop
	engine    *policy.Engine
	store     wifi.ConfigStore
	callbacks wifi.ScanCallbacks
	clock     timeutil.Provider
	cfg       Config

	nextIndex int
	requests  map[int]wifi.InterScanConfig

	systemScanInterval time.Duration

	pnoWanted   bool
	pnoFailures int
	pnoGaveUp   bool
	pnoBackoff  *backoff.ExponentialBackOff

	logger  *logger.Logger
	metrics OrchestrationMetrics
	tracer  trace.Tracer
}

// NewOrchestrator creates an Orchestrator and registers it as the machine's
// reporter. It must be called before the machine's loop starts running.
func NewOrchestrator(
	machine *statemachine.Machine,
	engine *policy.Engine,
	store wifi.ConfigStore,
	callbacks wifi.ScanCallbacks,
	clock timeutil.Provider,
	cfg Config,
	logger *logger.Logger,
	metrics OrchestrationMetrics,
	tracer trace.Tracer,
) *Orchestrator {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.PnoRestartInitialBackoff
	bo.MaxInterval = cfg.PnoRestartMaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Clock = clock
	bo.Reset()

	o := &Orchestrator{
		machine:            machine,
		loop:               machine.Loop(),
		engine:             engine,
		store:              store,
		callbacks:          callbacks,
		clock:              clock,
		cfg:                cfg,
		nextIndex:          1,
		requests:           make(map[int]wifi.InterScanConfig),
		systemScanInterval: cfg.SystemScanMinInterval,
		pnoBackoff:         bo,
		logger:             logger.With("component", "scan_orchestrator"),
		metrics:            metrics,
		tracer:             tracer,
	}
	machine.SetReporter(o.HandleScanStatusReport)
	machine.SetScanningObserver(func(_ context.Context, scanning bool) { o.engine.SetScanning(scanning) })
	return o
}

// onLoop runs fn on the loop inside a span named after op. fn receives the
// loop's context carrying the span.
func (o *Orchestrator) onLoop(
	ctx context.Context,
	op string,
	fn func(ctx context.Context) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var opErr error
	if err := o.loop.Do(ctx, func(loopCtx context.Context) {
		opErr = fn(trace.ContextWithSpan(loopCtx, span))
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan loop unavailable")
		return fmt.Errorf("%s: %w", op, err)
	}

	if opErr != nil {
		if reason, denied := wifi.IsDenied(opErr); denied {
			span.SetAttributes(attribute.String("deny_reason", string(reason)))
			span.SetStatus(codes.Ok, "denied by policy")
			return opErr
		}
		span.RecordError(opErr)
		span.SetStatus(codes.Error, op+" failed")
		return opErr
	}
	span.SetStatus(codes.Ok, op+" completed")
	return nil
}

// Init applies the stored control policy and screen state and loads the
// driver. A load failure leaves the machine parked and is returned.
func (o *Orchestrator) Init(ctx context.Context) error {
	return o.onLoop(ctx, "init", func(ctx context.Context) error {
		info, err := o.store.GetScanControlInfo(ctx)
		if err != nil {
			o.logger.Warn(ctx, "Failed to load scan control info, starting without rules", "err", err)
		} else {
			o.engine.Store().ApplyControlInfo(info)
		}

		if err := o.machine.Prepare(ctx); err != nil {
			return fmt.Errorf("init scan service: %w", err)
		}

		o.screenChanged(ctx, o.store.GetScreenState(ctx))
		o.logger.Info(ctx, "Scan service initialized",
			"screen_on", o.engine.ScreenOn(),
			"sta_state", o.engine.StaState().String(),
		)
		return nil
	})
}

// Finish stops every scan and unloads the driver. Pending requests are
// reported failed.
func (o *Orchestrator) Finish(ctx context.Context) error {
	return o.onLoop(ctx, "finish", func(ctx context.Context) error {
		o.pnoWanted = false
		o.resetPnoFailures()
		o.machine.Dispatch(ctx, statemachine.Message{Kind: statemachine.CmdScanFinish})
		return nil
	})
}

// Scan requests a full scan on the default band. extern marks requests
// coming from applications; others are system scans. The returned index
// identifies the request in later callbacks.
func (o *Orchestrator) Scan(ctx context.Context, extern bool, app wifi.AppID) (int, error) {
	var index int
	err := o.onLoop(ctx, "scan", func(ctx context.Context) error {
		var err error
		index, err = o.scan(ctx, extern, app)
		return err
	}, attribute.Bool("extern", extern), attribute.Int("app_id", int(app)))
	return index, err
}

func (o *Orchestrator) scan(ctx context.Context, extern bool, app wifi.AppID) (int, error) {
	scanType, kind := wifi.ScanTypeSystemTimer, "system"
	if extern {
		scanType, kind = wifi.ScanTypeExtern, "extern"
	} else {
		app = wifi.SystemAppID
	}
	o.metrics.IncScanRequested(ctx, kind)

	if err := o.allow(ctx, scanType, app); err != nil {
		return 0, err
	}

	freqs, err := o.store.GetSupportedFrequencies(ctx, o.cfg.DefaultBand)
	if err != nil {
		return 0, fmt.Errorf("resolving frequencies for band %s: %w", o.cfg.DefaultBand, err)
	}
	saved, err := o.store.GetSavedNetworkConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading saved networks: %w", err)
	}

	return o.submit(ctx, wifi.InterScanConfig{
		ScanFreqs:          freqs,
		HiddenNetworkSSIDs: hiddenSSIDs(saved),
		ScanStyle:          wifi.ScanStyleLowSpan,
		FullScan:           true,
		Extern:             extern,
		AppID:              app,
		CreatedAt:          o.clock.Now(),
	})
}

// ScanWithParam requests a scan restricted to the given band or frequencies
// whose results are filtered by SSID and BSSID.
func (o *Orchestrator) ScanWithParam(ctx context.Context, params wifi.ScanParams) (int, error) {
	var index int
	err := o.onLoop(ctx, "scan_with_param", func(ctx context.Context) error {
		var err error
		index, err = o.scanWithParam(ctx, params)
		return err
	}, attribute.String("band", params.Band.String()), attribute.Int("app_id", int(params.AppID)))
	return index, err
}

func (o *Orchestrator) scanWithParam(ctx context.Context, params wifi.ScanParams) (int, error) {
	o.metrics.IncScanRequested(ctx, "with_param")

	if err := validateScanParams(params); err != nil {
		o.metrics.IncScanRejected(ctx)
		return 0, err
	}

	saved, err := o.store.GetSavedNetworkConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading saved networks: %w", err)
	}
	if len(saved) == 0 {
		o.metrics.IncScanRejected(ctx)
		return 0, wifi.ErrNoSavedNetworks
	}

	if err := o.allow(ctx, wifi.ScanTypeExtern, params.AppID); err != nil {
		return 0, err
	}

	freqs := params.Frequencies
	if len(freqs) == 0 {
		if freqs, err = o.store.GetSupportedFrequencies(ctx, params.Band); err != nil {
			return 0, fmt.Errorf("resolving frequencies for band %s: %w", params.Band, err)
		}
	}

	return o.submit(ctx, wifi.InterScanConfig{
		ScanFreqs:          freqs,
		HiddenNetworkSSIDs: hiddenSSIDs(saved),
		ScanStyle:          params.Style,
		Extern:             true,
		WithParam:          true,
		AppID:              params.AppID,
		SSIDFilter:         params.SSID,
		BSSIDFilter:        params.BSSID,
		CreatedAt:          o.clock.Now(),
	})
}

func validateScanParams(params wifi.ScanParams) error {
	if err := validate.Struct(params); err != nil {
		return fmt.Errorf("%w: %v", wifi.ErrInvalidScanParams, err)
	}
	if params.Band == wifi.BandUnspecified && len(params.Frequencies) == 0 {
		return fmt.Errorf("%w: band or frequencies required", wifi.ErrInvalidScanParams)
	}
	return nil
}

func (o *Orchestrator) allow(ctx context.Context, scanType wifi.ScanType, app wifi.AppID) error {
	err := o.engine.Allow(ctx, scanType, app)
	if reason, denied := wifi.IsDenied(err); denied {
		o.metrics.IncScanDenied(ctx, string(reason))
	}
	return err
}

// submit assigns the next index and hands the request to the machine.
func (o *Orchestrator) submit(ctx context.Context, req wifi.InterScanConfig) (int, error) {
	if !o.machine.InState(statemachine.StateHardwareReady) {
		return 0, wifi.ErrDriverNotLoaded
	}

	index := o.nextIndex
	o.nextIndex++
	o.requests[index] = req

	o.machine.Dispatch(ctx, statemachine.Message{
		Kind:    statemachine.CmdCommonScan,
		Index:   index,
		Request: req,
	})
	return index, nil
}

// CancelScan withdraws a queued request. The request is reported finished.
func (o *Orchestrator) CancelScan(ctx context.Context, index int) error {
	return o.onLoop(ctx, "cancel_scan", func(ctx context.Context) error {
		return o.machine.CancelScan(ctx, index)
	}, attribute.Int("index", index))
}

// DisableScan toggles the global scan override.
func (o *Orchestrator) DisableScan(ctx context.Context, disable bool) error {
	return o.onLoop(ctx, "disable_scan", func(ctx context.Context) error {
		o.engine.SetScanDisabled(disable)
		o.logger.Info(ctx, "Scan override changed", "disabled", disable)
		return nil
	}, attribute.Bool("disable", disable))
}

func hiddenSSIDs(saved []wifi.NetworkConfig) []string {
	var out []string
	for _, n := range saved {
		if n.HiddenSSID && n.SSID != "" {
			out = append(out, n.SSID)
		}
	}
	return out
}

// View is a point-in-time view of the orchestrator and its machine.
type View struct {
	Machine            statemachine.Snapshot `json:"machine"`
	ScreenOn           bool                  `json:"screen_on"`
	StaState           string                `json:"sta_state"`
	ScanDisabled       bool                  `json:"scan_disabled"`
	Scenes             []string              `json:"scenes"`
	PendingRequests    int                   `json:"pending_requests"`
	SystemScanInterval string                `json:"system_scan_interval"`
	PnoWanted          bool                  `json:"pno_wanted"`
	PnoFailures        int                   `json:"pno_failures"`
	PnoGaveUp          bool                  `json:"pno_gave_up"`
	QueuedLoopWork     int                   `json:"queued_loop_work"`
}

// State returns the current view.
func (o *Orchestrator) State(ctx context.Context) (View, error) {
	var v View
	err := o.onLoop(ctx, "state", func(context.Context) error {
		scenes := o.engine.CurrentScenes()
		names := make([]string, len(scenes))
		for i, s := range scenes {
			names[i] = s.String()
		}
		v = View{
			Machine:            o.machine.Snapshot(),
			ScreenOn:           o.engine.ScreenOn(),
			StaState:           o.engine.StaState().String(),
			ScanDisabled:       o.engine.ScanDisabled(),
			Scenes:             names,
			PendingRequests:    len(o.requests),
			SystemScanInterval: o.systemScanInterval.String(),
			PnoWanted:          o.pnoWanted,
			PnoFailures:        o.pnoFailures,
			PnoGaveUp:          o.pnoGaveUp,
			QueuedLoopWork:     o.loop.Len(),
		}
		return nil
	})
	return v, err
}
