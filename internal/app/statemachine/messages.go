package statemachine

import (
	"fmt"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// MessageKind identifies a command or event processed by the Machine.
type MessageKind int

const (
	// CmdScanPrepare loads the driver when the machine is parked in Init.
	CmdScanPrepare MessageKind = iota + 1
	// CmdScanFinish tears everything down and returns to Init.
	CmdScanFinish
	// CmdCommonScan carries one indexed scan request.
	CmdCommonScan
	// CmdStartPnoScan starts PNO, or replaces the config of a running one.
	CmdStartPnoScan
	// CmdStopPnoScan stops PNO and forgets its config.
	CmdStopPnoScan
	// CmdRestartPnoScan restarts hardware PNO with a new config.
	CmdRestartPnoScan

	EvtScanResultReady
	EvtScanFailed
	EvtPnoResultReady
	EvtWaitResultTimeout
	EvtSoftwarePnoTick
)

var messageNames = map[MessageKind]string{
	CmdScanPrepare:       "CMD_SCAN_PREPARE",
	CmdScanFinish:        "CMD_SCAN_FINISH",
	CmdCommonScan:        "CMD_COMMON_SCAN",
	CmdStartPnoScan:      "CMD_START_PNO_SCAN",
	CmdStopPnoScan:       "CMD_STOP_PNO_SCAN",
	CmdRestartPnoScan:    "CMD_RESTART_PNO_SCAN",
	EvtScanResultReady:   "SCAN_RESULT_READY",
	EvtScanFailed:        "SCAN_FAILED",
	EvtPnoResultReady:    "PNO_RESULT_READY",
	EvtWaitResultTimeout: "WAIT_RESULT_TIMEOUT",
	EvtSoftwarePnoTick:   "SOFTWARE_PNO_TICK",
}

// String returns the string representation of the MessageKind.
func (k MessageKind) String() string {
	if n, ok := messageNames[k]; ok {
		return n
	}
	return fmt.Sprintf("message(%d)", int(k))
}

// Message is the unit of work delivered to the current state.
type Message struct {
	Kind MessageKind

	// Index and Request are set for CmdCommonScan.
	Index   int
	Request wifi.InterScanConfig

	// Pno is set for CmdStartPnoScan and CmdRestartPnoScan.
	Pno wifi.PnoScanConfig
}

// driverMessage maps a driver notification onto a machine event.
func driverMessage(ev wifi.DriverEvent) (Message, bool) {
	switch ev.Kind {
	case wifi.DriverEventScanResultReady:
		return Message{Kind: EvtScanResultReady}, true
	case wifi.DriverEventScanFailed:
		return Message{Kind: EvtScanFailed}, true
	case wifi.DriverEventPnoResultReady:
		return Message{Kind: EvtPnoResultReady}, true
	default:
		return Message{}, false
	}
}
