package wifi

import "fmt"

// ScanStatus is the kind of a ScanStatusReport.
type ScanStatus int

const (
	ScanStatusUnknown ScanStatus = iota
	// ScanStatusStarted is reported once the driver is loaded.
	ScanStatusStarted
	// ScanStatusFinished is reported once the driver is unloaded.
	ScanStatusFinished
	ScanStatusCommonScanSuccess
	ScanStatusCommonScanFailed
	ScanStatusPnoScanInfo
	ScanStatusPnoScanFailed
	// ScanStatusInnerEvent carries an orchestrator timer firing.
	ScanStatusInnerEvent
)

// String returns the string representation of the ScanStatus.
func (s ScanStatus) String() string {
	switch s {
	case ScanStatusStarted:
		return "STARTED"
	case ScanStatusFinished:
		return "FINISHED"
	case ScanStatusCommonScanSuccess:
		return "COMMON_SCAN_SUCCESS"
	case ScanStatusCommonScanFailed:
		return "COMMON_SCAN_FAILED"
	case ScanStatusPnoScanInfo:
		return "PNO_SCAN_INFO"
	case ScanStatusPnoScanFailed:
		return "PNO_SCAN_FAILED"
	case ScanStatusInnerEvent:
		return "INNER_EVENT"
	default:
		return "UNKNOWN"
	}
}

// InnerEvent tags timer firings that the orchestrator owns.
type InnerEvent int

const (
	InnerEventNone InnerEvent = iota
	InnerEventSystemScanTimer
	InnerEventDisconnectedScanTimer
	InnerEventRestartPnoScanTimer
)

// String returns the string representation of the InnerEvent.
func (e InnerEvent) String() string {
	switch e {
	case InnerEventSystemScanTimer:
		return "SYSTEM_SCAN_TIMER"
	case InnerEventDisconnectedScanTimer:
		return "DISCONNECTED_SCAN_TIMER"
	case InnerEventRestartPnoScanTimer:
		return "RESTART_PNO_SCAN_TIMER"
	case InnerEventNone:
		return "NONE"
	default:
		return fmt.Sprintf("inner_event(%d)", int(e))
	}
}

// ScanStatusReport is the state machine's outbound message. It is built and
// consumed synchronously per event.
type ScanStatusReport struct {
	Status         ScanStatus
	RequestIndices []int
	Results        []ScanInfo
	InnerEvent     InnerEvent
}
