package orchestration

import (
	"context"

	"github.com/ahrav/scand/internal/app/statemachine"
	"github.com/ahrav/scand/internal/domain/wifi"
)

// StartPnoScan explicitly requests PNO. It clears an earlier give-up after
// repeated failures.
func (o *Orchestrator) StartPnoScan(ctx context.Context) error {
	return o.onLoop(ctx, "start_pno_scan", func(ctx context.Context) error {
		o.resetPnoFailures()
		return o.requestPno(ctx, true)
	})
}

// StopPnoScan stops PNO and any pending restart.
func (o *Orchestrator) StopPnoScan(ctx context.Context) error {
	return o.onLoop(ctx, "stop_pno_scan", func(ctx context.Context) error {
		o.resetPnoFailures()
		o.stopPno(ctx)
		return nil
	})
}

func (o *Orchestrator) resetPnoFailures() {
	o.pnoFailures = 0
	o.pnoGaveUp = false
	o.pnoBackoff.Reset()
}

// startPno starts PNO for a screen or station change. Failures are logged;
// the restart timer covers driver failures.
func (o *Orchestrator) startPno(ctx context.Context) {
	if err := o.requestPno(ctx, false); err != nil {
		o.logger.Debug(ctx, "PNO scan not started", "err", err)
	}
}

// requestPno marks PNO as wanted and hands a fresh config to the machine. A
// running PNO is only restarted when force is set.
func (o *Orchestrator) requestPno(ctx context.Context, force bool) error {
	o.pnoWanted = true
	if o.pnoGaveUp {
		o.logger.Debug(ctx, "PNO restarts abandoned, waiting for an explicit request")
		return nil
	}
	if !o.machine.InState(statemachine.StateHardwareReady) {
		return wifi.ErrDriverNotLoaded
	}
	if _, stored := o.machine.PnoConfig(); stored && !force {
		return nil
	}
	if err := o.allow(ctx, wifi.ScanTypePno, wifi.SystemAppID); err != nil {
		return err
	}

	cfg := o.pnoConfig(ctx)
	o.machine.Dispatch(ctx, statemachine.Message{Kind: statemachine.CmdStartPnoScan, Pno: cfg})
	o.logger.Info(ctx, "PNO scan requested",
		"saved_networks", len(cfg.SavedNetworkSSIDs),
		"interval", cfg.ScanInterval.String(),
	)
	return nil
}

func (o *Orchestrator) stopPno(ctx context.Context) {
	o.pnoWanted = false
	o.machine.StopTimer(wifi.InnerEventRestartPnoScanTimer)
	o.dispatchStopPno(ctx)
}

func (o *Orchestrator) dispatchStopPno(ctx context.Context) {
	if _, stored := o.machine.PnoConfig(); !stored && !o.machine.InState(statemachine.StatePnoScan) {
		return
	}
	o.machine.Dispatch(ctx, statemachine.Message{Kind: statemachine.CmdStopPnoScan})
}

func (o *Orchestrator) pnoConfig(ctx context.Context) wifi.PnoScanConfig {
	cfg := wifi.PnoScanConfig{
		ScanInterval:    o.cfg.PnoScanInterval,
		MinRssi2Dot4GHz: o.cfg.PnoMinRssi2Dot4GHz,
		MinRssi5GHz:     o.cfg.PnoMinRssi5GHz,
	}

	saved, err := o.store.GetSavedNetworkConfigs(ctx)
	if err != nil {
		o.logger.Warn(ctx, "Failed to load saved networks for PNO", "err", err)
	}
	for _, n := range saved {
		if n.SSID == "" {
			continue
		}
		cfg.SavedNetworkSSIDs = append(cfg.SavedNetworkSSIDs, n.SSID)
	}
	cfg.HiddenNetworkSSIDs = hiddenSSIDs(saved)

	if cfg.Frequencies, err = o.store.GetSupportedFrequencies(ctx, o.cfg.DefaultBand); err != nil {
		o.logger.Warn(ctx, "Failed to resolve PNO frequencies, scanning all", "err", err)
	}
	return cfg
}

// pnoFailed counts a failure and either schedules a restart or gives up.
// It runs inside the machine's report path, so machine commands are posted.
func (o *Orchestrator) pnoFailed(ctx context.Context) {
	o.pnoFailures++
	o.metrics.IncPnoFailures(ctx)
	if !o.pnoWanted || o.pnoGaveUp {
		return
	}

	if o.pnoFailures > o.cfg.MaxPnoFailures {
		o.pnoGaveUp = true
		o.metrics.IncPnoGiveUps(ctx)
		o.machine.StopTimer(wifi.InnerEventRestartPnoScanTimer)
		o.logger.Warn(ctx, "PNO failed too often, stopping restarts", "failures", o.pnoFailures)
		o.loop.Post(o.dispatchStopPno)
		return
	}

	delay := o.pnoBackoff.NextBackOff()
	o.machine.StartTimer(wifi.InnerEventRestartPnoScanTimer, delay)
	o.logger.Debug(ctx, "PNO restart scheduled", "failures", o.pnoFailures, "delay", delay.String())
}

func (o *Orchestrator) restartPnoTick(ctx context.Context) {
	if !o.pnoWanted || o.pnoGaveUp || o.machine.InState(statemachine.StatePnoScan) {
		return
	}
	if err := o.requestPno(ctx, true); err != nil {
		o.logger.Debug(ctx, "PNO restart not started", "err", err)
	}
}
