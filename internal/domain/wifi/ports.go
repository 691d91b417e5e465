package wifi

import "context"

// Driver controls the radio. Calls are synchronous and are only issued from
// the state machine's loop, one at a time.
type Driver interface {
	LoadDriver(ctx context.Context) error
	UnloadDriver(ctx context.Context)
	StartScan(ctx context.Context, params HardwareScanParams) error
	StartPnoScan(ctx context.Context, cfg PnoScanConfig) error
	StopPnoScan(ctx context.Context) error
	// QueryScanResults returns the latest results, including PNO results.
	QueryScanResults(ctx context.Context) ([]ScanInfo, error)
}

// DriverEventKind is an asynchronous notification from the driver.
type DriverEventKind int

const (
	DriverEventScanResultReady DriverEventKind = iota + 1
	DriverEventScanFailed
	DriverEventPnoResultReady
)

// String returns the string representation of the DriverEventKind.
func (k DriverEventKind) String() string {
	switch k {
	case DriverEventScanResultReady:
		return "SCAN_RESULT_READY"
	case DriverEventScanFailed:
		return "SCAN_FAILED"
	case DriverEventPnoResultReady:
		return "PNO_RESULT_READY"
	default:
		return "UNKNOWN"
	}
}

// DriverEvent is delivered into the state machine's message queue.
type DriverEvent struct {
	Kind DriverEventKind
}

// DriverEventHandler receives driver events. Implementations must not block.
type DriverEventHandler func(DriverEvent)

// ConfigStore is the settings store the subsystem reads its configuration
// from and persists full-scan results into.
type ConfigStore interface {
	GetScanControlInfo(ctx context.Context) (ScanControlInfo, error)
	GetSupportedFrequencies(ctx context.Context, band Band) ([]int, error)
	GetSupportHwPnoFlag(ctx context.Context) bool
	GetScreenState(ctx context.Context) bool
	GetSavedNetworkConfigs(ctx context.Context) ([]NetworkConfig, error)
	SaveScanResultList(ctx context.Context, results []ScanInfo) error
	GetWhetherToAllowNetworkSwitchover(ctx context.Context) bool
}

// ScanCallbacks is the upstream sink for scan notifications.
type ScanCallbacks interface {
	OnScanStartEvent(ctx context.Context)
	OnScanStopEvent(ctx context.Context)
	OnScanFinishEvent(ctx context.Context, requestIndices []int)
	OnScanInfoEvent(ctx context.Context, results []ScanInfo)
	OnStoreScanInfoEvent(ctx context.Context, results []ScanInfo)
}

// ScanResultRepository durably records full-scan result lists.
type ScanResultRepository interface {
	SaveScanResults(ctx context.Context, results []ScanInfo) error
	LatestScanResults(ctx context.Context, limit int) ([]ScanInfo, error)
}
