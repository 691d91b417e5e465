package wifi

import (
	"errors"
	"fmt"
)

var (
	// ErrScanDenied is matched by every policy denial.
	ErrScanDenied = errors.New("scan denied by policy")

	// ErrInvalidScanParams is returned for malformed parameterized scans.
	ErrInvalidScanParams = errors.New("invalid scan parameters")

	// ErrNoSavedNetworks is returned when a parameterized scan is requested
	// without any saved network configuration.
	ErrNoSavedNetworks = errors.New("no saved network configuration")

	// ErrDriverNotLoaded is returned when the machine is parked in Init.
	ErrDriverNotLoaded = errors.New("scan driver not loaded")

	// ErrPnoNotSupported is returned by drivers without hardware PNO.
	ErrPnoNotSupported = errors.New("hardware pno not supported")

	// ErrScanNotCancellable is returned when cancelling a dispatched request.
	ErrScanNotCancellable = errors.New("scan request already dispatched")

	// ErrScanRequestNotFound is returned when cancelling an unknown request.
	ErrScanRequestNotFound = errors.New("scan request not found")

	// ErrInvalidControlInfo is returned for malformed scan control policies.
	ErrInvalidControlInfo = errors.New("invalid scan control info")
)

// DenyReason names the policy step that denied a scan.
type DenyReason string

const (
	DenyReasonDisabled     DenyReason = "SCAN_DISABLED"
	DenyReasonMovingFreeze DenyReason = "MOVING_FREEZE"
	DenyReasonForbidden    DenyReason = "SCENE_FORBIDDEN"
	DenyReasonFixed        DenyReason = "INTERVAL_FIXED"
	DenyReasonExponential  DenyReason = "INTERVAL_EXPONENTIAL"
	DenyReasonContinuous   DenyReason = "INTERVAL_CONTINUOUS"
	DenyReasonBlocklisted  DenyReason = "BLOCKLISTED"
)

// DenyError is returned when policy refuses a scan. It is a normal outcome
// and callers are expected to try again later.
type DenyError struct {
	Reason DenyReason
	Scene  ScanScene
	Mode   ScanMode
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("scan denied: %s (scene=%s, mode=%s)", e.Reason, e.Scene, e.Mode)
}

// Is matches ErrScanDenied.
func (e *DenyError) Is(target error) bool { return target == ErrScanDenied }

// IsDenied reports whether err is a policy denial and returns its reason.
func IsDenied(err error) (DenyReason, bool) {
	var de *DenyError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}
