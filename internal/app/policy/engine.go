package policy

import (
	"context"
	"slices"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/timeutil"
)

// Engine answers whether a scan of a given type for a given requester may run
// now. It is not safe for concurrent use; the orchestrator calls it from the
// scan loop only.
type Engine struct {
	store *Store
	clock timeutil.Provider

	disabled      bool
	screenOn      bool
	sta           wifi.StaState
	scanning      bool
	movingFreeze  bool
	freezeScanned bool
	foreground    map[wifi.AppID]bool
	customScenes  map[wifi.ScanScene]struct{}

	logger *logger.Logger
}

// NewEngine returns an Engine over store. The device starts with the screen
// on and the station disconnected.
func NewEngine(store *Store, clock timeutil.Provider, log *logger.Logger) *Engine {
	e := &Engine{
		store:        store,
		clock:        clock,
		screenOn:     true,
		sta:          wifi.StaStateDisconnected,
		foreground:   make(map[wifi.AppID]bool),
		customScenes: make(map[wifi.ScanScene]struct{}),
		logger:       log.With("component", "scan_policy_engine"),
	}
	now := clock.Now()
	store.EnterScene(wifi.SceneAll, now)
	store.EnterScene(e.sta.Scene(), now)
	return e
}

// Store returns the underlying policy store.
func (e *Engine) Store() *Store { return e.store }

// SetScanDisabled toggles the global override.
func (e *Engine) SetScanDisabled(disabled bool) { e.disabled = disabled }

// ScanDisabled reports whether scanning is globally disabled.
func (e *Engine) ScanDisabled() bool { return e.disabled }

// SetScreenState records a screen transition.
func (e *Engine) SetScreenState(on bool) {
	if on == e.screenOn {
		return
	}
	e.screenOn = on
	if on {
		e.store.LeaveScene(wifi.SceneScreenOff)
		return
	}
	e.store.EnterScene(wifi.SceneScreenOff, e.clock.Now())
}

// ScreenOn reports the last recorded screen state.
func (e *Engine) ScreenOn() bool { return e.screenOn }

// SetStaState records a connection state change.
func (e *Engine) SetStaState(st wifi.StaState) {
	old := e.sta.Scene()
	e.sta = st
	if nw := st.Scene(); nw != old {
		e.store.LeaveScene(old)
		e.store.EnterScene(nw, e.clock.Now())
	}
}

// StaState returns the last recorded connection state.
func (e *Engine) StaState() wifi.StaState { return e.sta }

// SetScanning records whether a hardware scan is in flight.
func (e *Engine) SetScanning(scanning bool) {
	if scanning == e.scanning {
		return
	}
	e.scanning = scanning
	if scanning {
		e.store.EnterScene(wifi.SceneScanning, e.clock.Now())
		return
	}
	e.store.LeaveScene(wifi.SceneScanning)
}

// SetAppForeground records whether app is in the foreground.
func (e *Engine) SetAppForeground(app wifi.AppID, foreground bool) {
	if foreground {
		e.foreground[app] = true
		return
	}
	delete(e.foreground, app)
}

// SetMovingFreeze enters or leaves a moving-freeze window. Entering opens a
// fresh window in which exactly one scan is admitted.
func (e *Engine) SetMovingFreeze(freeze bool) {
	if freeze && !e.movingFreeze {
		e.freezeScanned = false
	}
	e.movingFreeze = freeze
}

// SetCustomScene activates or deactivates a custom scene.
func (e *Engine) SetCustomScene(scene wifi.ScanScene, active bool) {
	if active {
		e.customScenes[scene] = struct{}{}
		e.store.EnterScene(scene, e.clock.Now())
		return
	}
	delete(e.customScenes, scene)
	e.store.LeaveScene(scene)
}

// CurrentScenes lists every scene currently in effect, most specific first.
func (e *Engine) CurrentScenes() []wifi.ScanScene {
	scenes := make([]wifi.ScanScene, 0, 4+len(e.customScenes))
	for sc := range e.customScenes {
		scenes = append(scenes, sc)
	}
	slices.Sort(scenes)
	if e.scanning {
		scenes = append(scenes, wifi.SceneScanning)
	}
	if !e.screenOn {
		scenes = append(scenes, wifi.SceneScreenOff)
	}
	scenes = append(scenes, e.sta.Scene(), wifi.SceneAll)
	return scenes
}

func (e *Engine) modeFor(scanType wifi.ScanType, app wifi.AppID) wifi.ScanMode {
	switch scanType {
	case wifi.ScanTypeSystemTimer:
		return wifi.ScanModeSystemTimer
	case wifi.ScanTypePno:
		return wifi.ScanModePno
	default:
		if e.foreground[app] {
			return wifi.ScanModeAppForeground
		}
		return wifi.ScanModeAppBackground
	}
}

// Allow returns nil when the scan may run and a *wifi.DenyError otherwise.
// Extern requests update the interval counters whatever the outcome.
func (e *Engine) Allow(ctx context.Context, scanType wifi.ScanType, app wifi.AppID) error {
	mode := e.modeFor(scanType, app)
	scenes := e.CurrentScenes()

	if err := e.decide(scanType, app, mode, scenes); err != nil {
		e.logger.Debug(ctx, "Scan denied",
			"scan_type", scanType.String(),
			"app_id", int(app),
			"mode", mode.String(),
			"err", err,
		)
		return err
	}

	if e.movingFreeze {
		e.freezeScanned = true
	}
	return nil
}

func (e *Engine) decide(scanType wifi.ScanType, app wifi.AppID, mode wifi.ScanMode, scenes []wifi.ScanScene) error {
	primary := scenes[0]

	if e.disabled {
		return &wifi.DenyError{Reason: wifi.DenyReasonDisabled, Scene: primary, Mode: mode}
	}

	if e.movingFreeze && e.freezeScanned {
		return &wifi.DenyError{Reason: wifi.DenyReasonMovingFreeze, Scene: primary, Mode: mode}
	}

	for _, sc := range scenes {
		if e.store.IsTrustScene(sc) {
			return nil
		}
	}

	if err := e.checkForbid(mode, scenes); err != nil {
		return err
	}

	if scanType != wifi.ScanTypeExtern {
		return nil
	}
	return e.checkInterval(app, mode, scenes)
}

func (e *Engine) checkForbid(mode wifi.ScanMode, scenes []wifi.ScanScene) error {
	now := e.clock.Now()
	for _, rule := range e.store.ForbidRules() {
		if !slices.Contains(scenes, rule.Scene) || !mode.MatchedBy(rule.Mode) {
			continue
		}

		inWindow := rule.ForbidTime == 0
		if !inWindow {
			if entered, ok := e.store.SceneEntry(rule.Scene); ok {
				inWindow = now.Sub(entered) < rule.ForbidTime
			}
		}
		underCount := rule.ForbidCount == 0 || e.store.ForbidDenials(rule.Scene, rule.Mode) < rule.ForbidCount
		if inWindow && underCount {
			e.store.IncForbidDenials(rule.Scene, rule.Mode)
			return &wifi.DenyError{Reason: wifi.DenyReasonForbidden, Scene: rule.Scene, Mode: mode}
		}
	}
	return nil
}

func (e *Engine) checkInterval(app wifi.AppID, mode wifi.ScanMode, scenes []wifi.ScanScene) error {
	rule, ok := e.matchIntervalRule(mode, scenes)
	if !ok {
		return nil
	}

	now := e.clock.Now()
	st := e.store.IntervalState(app, rule)
	deny := func(reason wifi.DenyReason) error {
		return &wifi.DenyError{Reason: reason, Scene: rule.Scene, Mode: mode}
	}

	switch rule.IntervalMode {
	case wifi.IntervalFixed:
		if !allowFixed(st, rule, now) {
			return deny(wifi.DenyReasonFixed)
		}
	case wifi.IntervalExponential:
		if !allowExponential(st, rule, now) {
			return deny(wifi.DenyReasonExponential)
		}
	case wifi.IntervalContinuous:
		if !allowContinuous(st, rule, now) {
			return deny(wifi.DenyReasonContinuous)
		}
	case wifi.IntervalBlocklist:
		if e.store.IsBlocklisted(app) {
			return deny(wifi.DenyReasonBlocklisted)
		}
		if !allowContinuous(st, rule, now) {
			e.store.AddToBlocklist(app)
			return deny(wifi.DenyReasonBlocklisted)
		}
	}
	return nil
}

// matchIntervalRule returns the first interval rule matching the most
// specific current scene.
func (e *Engine) matchIntervalRule(mode wifi.ScanMode, scenes []wifi.ScanScene) (wifi.ScanIntervalMode, bool) {
	for _, sc := range scenes {
		for _, rule := range e.store.IntervalRules() {
			if rule.Scene == sc && mode.MatchedBy(rule.Mode) {
				return rule, true
			}
		}
	}
	return wifi.ScanIntervalMode{}, false
}
