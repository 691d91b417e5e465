package orchestration

import (
	"context"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// HandleScanStatusReport routes one status report from the state machine. It
// is installed as the machine's reporter and runs on the loop.
func (o *Orchestrator) HandleScanStatusReport(ctx context.Context, report wifi.ScanStatusReport) {
	o.metrics.IncScanReports(ctx, report.Status.String())

	switch report.Status {
	case wifi.ScanStatusStarted:
		o.callbacks.OnScanStartEvent(ctx)
	case wifi.ScanStatusFinished:
		o.pnoWanted = false
		o.callbacks.OnScanStopEvent(ctx)
	case wifi.ScanStatusCommonScanSuccess:
		o.commonScanSucceeded(ctx, report)
	case wifi.ScanStatusCommonScanFailed:
		o.commonScanFailed(ctx, report)
	case wifi.ScanStatusPnoScanInfo:
		o.resetPnoFailures()
		o.metrics.ObserveResultCount(ctx, len(report.Results))
		o.callbacks.OnScanInfoEvent(ctx, report.Results)
	case wifi.ScanStatusPnoScanFailed:
		o.pnoFailed(ctx)
	case wifi.ScanStatusInnerEvent:
		o.handleInnerEvent(ctx, report.InnerEvent)
	default:
		o.logger.Warn(ctx, "Unknown scan status report", "status", report.Status.String())
	}
}

// takeRequests removes and returns the requests a report answers.
func (o *Orchestrator) takeRequests(indices []int) []wifi.InterScanConfig {
	reqs := make([]wifi.InterScanConfig, 0, len(indices))
	for _, idx := range indices {
		if req, ok := o.requests[idx]; ok {
			reqs = append(reqs, req)
			delete(o.requests, idx)
		}
	}
	return reqs
}

func (o *Orchestrator) commonScanSucceeded(ctx context.Context, report wifi.ScanStatusReport) {
	reqs := o.takeRequests(report.RequestIndices)
	results := filterResults(report.Results, reqs)
	o.metrics.ObserveResultCount(ctx, len(results))

	if isFullScan(reqs) {
		if err := o.store.SaveScanResultList(ctx, results); err != nil {
			o.metrics.IncResultSaveErrors(ctx)
			o.logger.Error(ctx, "Failed to save scan results", "err", err)
		}
		o.callbacks.OnScanInfoEvent(ctx, results)
	} else {
		o.callbacks.OnStoreScanInfoEvent(ctx, results)
	}

	o.logger.Debug(ctx, "Common scan succeeded",
		"request_indices", report.RequestIndices,
		"result_count", len(results),
		"allow_switchover", o.store.GetWhetherToAllowNetworkSwitchover(ctx),
	)
}

func (o *Orchestrator) commonScanFailed(ctx context.Context, report wifi.ScanStatusReport) {
	o.takeRequests(report.RequestIndices)

	if !o.engine.StaState().IsDisconnected() {
		o.logger.Debug(ctx, "Common scan failed while connected", "request_indices", report.RequestIndices)
		return
	}
	o.callbacks.OnScanFinishEvent(ctx, report.RequestIndices)
}
