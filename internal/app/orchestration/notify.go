package orchestration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// OnScreenStateChanged records a screen transition and rearranges the
// periodic scan timers and PNO for it.
func (o *Orchestrator) OnScreenStateChanged(ctx context.Context, on bool) error {
	return o.onLoop(ctx, "screen_state_changed", func(ctx context.Context) error {
		o.screenChanged(ctx, on)
		return nil
	}, attribute.Bool("screen_on", on))
}

func (o *Orchestrator) screenChanged(ctx context.Context, on bool) {
	o.engine.SetScreenState(on)

	if on {
		o.stopPno(ctx)
		o.systemScanInterval = o.cfg.SystemScanMinInterval
		o.machine.StartTimer(wifi.InnerEventSystemScanTimer, o.systemScanInterval)
		o.machine.StopTimer(wifi.InnerEventDisconnectedScanTimer)
		return
	}

	o.machine.StopTimer(wifi.InnerEventSystemScanTimer)
	if o.engine.StaState().IsDisconnected() {
		o.startPno(ctx)
		o.machine.StartTimer(wifi.InnerEventDisconnectedScanTimer, o.cfg.DisconnectedScanInterval)
	}
}

// OnClientModeStatusChanged records a station state change.
func (o *Orchestrator) OnClientModeStatusChanged(ctx context.Context, state wifi.StaState) error {
	return o.onLoop(ctx, "client_mode_status_changed", func(ctx context.Context) error {
		o.engine.SetStaState(state)

		switch {
		case state.IsConnected():
			o.machine.StopTimer(wifi.InnerEventDisconnectedScanTimer)
			o.stopPno(ctx)
		case state.IsDisconnected():
			o.systemScanInterval = o.cfg.SystemScanMinInterval
			if !o.engine.ScreenOn() {
				o.startPno(ctx)
				o.machine.StartTimer(wifi.InnerEventDisconnectedScanTimer, o.cfg.DisconnectedScanInterval)
			}
		}
		return nil
	}, attribute.String("sta_state", state.String()))
}

// OnAppRunningModeChanged records whether app is in the foreground.
func (o *Orchestrator) OnAppRunningModeChanged(ctx context.Context, app wifi.AppID, foreground bool) error {
	return o.onLoop(ctx, "app_running_mode_changed", func(context.Context) error {
		o.engine.SetAppForeground(app, foreground)
		return nil
	}, attribute.Int("app_id", int(app)), attribute.Bool("foreground", foreground))
}

// OnMovingFreezeStateChange records whether the device is stationary.
func (o *Orchestrator) OnMovingFreezeStateChange(ctx context.Context, freeze bool) error {
	return o.onLoop(ctx, "moving_freeze_state_change", func(context.Context) error {
		o.engine.SetMovingFreeze(freeze)
		return nil
	}, attribute.Bool("freeze", freeze))
}

// OnCustomControlStateChanged activates or deactivates a custom scene.
func (o *Orchestrator) OnCustomControlStateChanged(ctx context.Context, scene wifi.ScanScene, active bool) error {
	return o.onLoop(ctx, "custom_control_state_changed", func(context.Context) error {
		o.engine.SetCustomScene(scene, active)
		return nil
	}, attribute.String("scene", scene.String()), attribute.Bool("active", active))
}

// OnControlStrategyChanged reloads the control policy from the settings
// store. Counters and the blocklist are cleared.
func (o *Orchestrator) OnControlStrategyChanged(ctx context.Context) error {
	return o.onLoop(ctx, "control_strategy_changed", func(ctx context.Context) error {
		info, err := o.store.GetScanControlInfo(ctx)
		if err != nil {
			return fmt.Errorf("reloading scan control info: %w", err)
		}
		o.engine.Store().ApplyControlInfo(info)
		o.logger.Info(ctx, "Scan control policy reloaded",
			"forbid_rules", len(info.ForbidList),
			"interval_rules", len(info.IntervalList),
			"trust_scenes", len(info.TrustSceneIDs),
		)
		return nil
	})
}

// Timer ticks. They run on the loop from the machine's report path.

func (o *Orchestrator) handleInnerEvent(ctx context.Context, ev wifi.InnerEvent) {
	o.metrics.IncTimerFired(ctx, ev.String())

	switch ev {
	case wifi.InnerEventSystemScanTimer:
		o.systemScanTick(ctx)
	case wifi.InnerEventDisconnectedScanTimer:
		o.disconnectedScanTick(ctx)
	case wifi.InnerEventRestartPnoScanTimer:
		o.restartPnoTick(ctx)
	default:
		o.logger.Warn(ctx, "Unknown inner event", "event", ev.String())
	}
}

func (o *Orchestrator) systemScanTick(ctx context.Context) {
	if !o.engine.ScreenOn() {
		return
	}
	o.periodicScan(ctx, "system")

	o.systemScanInterval = min(2*o.systemScanInterval, o.cfg.SystemScanMaxInterval)
	o.machine.StartTimer(wifi.InnerEventSystemScanTimer, o.systemScanInterval)
}

func (o *Orchestrator) disconnectedScanTick(ctx context.Context) {
	if o.engine.ScreenOn() || !o.engine.StaState().IsDisconnected() {
		return
	}
	o.periodicScan(ctx, "disconnected")
	o.machine.StartTimer(wifi.InnerEventDisconnectedScanTimer, o.cfg.DisconnectedScanInterval)
}

func (o *Orchestrator) periodicScan(ctx context.Context, kind string) {
	index, err := o.scan(ctx, false, wifi.SystemAppID)
	if err != nil {
		o.logger.Debug(ctx, "Periodic scan not started", "kind", kind, "err", err)
		return
	}
	o.logger.Debug(ctx, "Periodic scan started", "kind", kind, "index", index)
}
