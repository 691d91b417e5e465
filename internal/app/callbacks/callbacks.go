// Package callbacks provides the upstream sinks scan notifications are
// delivered to.
package callbacks

import (
	"context"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
)

var (
	_ wifi.ScanCallbacks = (*Fanout)(nil)
	_ wifi.ScanCallbacks = (*LoggingSink)(nil)
)

// Fanout delivers every callback to each sink in order.
type Fanout struct {
	sinks []wifi.ScanCallbacks
}

// NewFanout returns a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...wifi.ScanCallbacks) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) OnScanStartEvent(ctx context.Context) {
	for _, s := range f.sinks {
		s.OnScanStartEvent(ctx)
	}
}

func (f *Fanout) OnScanStopEvent(ctx context.Context) {
	for _, s := range f.sinks {
		s.OnScanStopEvent(ctx)
	}
}

func (f *Fanout) OnScanFinishEvent(ctx context.Context, requestIndices []int) {
	for _, s := range f.sinks {
		s.OnScanFinishEvent(ctx, requestIndices)
	}
}

func (f *Fanout) OnScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	for _, s := range f.sinks {
		s.OnScanInfoEvent(ctx, results)
	}
}

func (f *Fanout) OnStoreScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	for _, s := range f.sinks {
		s.OnStoreScanInfoEvent(ctx, results)
	}
}

// LoggingSink writes each callback as a structured log line.
type LoggingSink struct {
	logger *logger.Logger
}

// NewLoggingSink returns a LoggingSink writing to log.
func NewLoggingSink(log *logger.Logger) *LoggingSink {
	return &LoggingSink{logger: log.With("component", "scan_callbacks")}
}

func (l *LoggingSink) OnScanStartEvent(ctx context.Context) {
	l.logger.Info(ctx, "Scan service started")
}

func (l *LoggingSink) OnScanStopEvent(ctx context.Context) {
	l.logger.Info(ctx, "Scan service stopped")
}

func (l *LoggingSink) OnScanFinishEvent(ctx context.Context, requestIndices []int) {
	l.logger.Info(ctx, "Scan finished without results", "request_indices", requestIndices)
}

func (l *LoggingSink) OnScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	l.logger.Info(ctx, "Scan results available", "result_count", len(results))
}

func (l *LoggingSink) OnStoreScanInfoEvent(ctx context.Context, results []wifi.ScanInfo) {
	l.logger.Debug(ctx, "Scan results stored for requester", "result_count", len(results))
}
