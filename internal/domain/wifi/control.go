package wifi

import (
	"fmt"
	"strings"
	"time"
)

// ScanType is the origin of a scan request as seen by the policy engine.
type ScanType int

const (
	ScanTypeExtern ScanType = iota
	ScanTypeSystemTimer
	ScanTypePno
)

// String returns the string representation of the ScanType.
func (t ScanType) String() string {
	switch t {
	case ScanTypeExtern:
		return "extern"
	case ScanTypeSystemTimer:
		return "system_timer"
	case ScanTypePno:
		return "pno"
	default:
		return fmt.Sprintf("scan_type(%d)", int(t))
	}
}

// ScanScene classifies the device context a control rule applies to.
// Values at or above SceneCustomBase identify custom scenes.
type ScanScene int

const (
	SceneScanning ScanScene = iota
	SceneConnecting
	SceneDisconnected
	SceneConnected
	SceneAssociating
	SceneAssociated
	SceneObtainingIP
	SceneDeepSleep
	SceneFrequencyOrigin
	SceneFrequencyCustom
	SceneCustom
	SceneScreenOff
	SceneAll

	// SceneCustomBase is the first id available for custom scenes.
	SceneCustomBase ScanScene = 100
)

var sceneNames = map[ScanScene]string{
	SceneScanning:        "scanning",
	SceneConnecting:      "connecting",
	SceneDisconnected:    "disconnected",
	SceneConnected:       "connected",
	SceneAssociating:     "associating",
	SceneAssociated:      "associated",
	SceneObtainingIP:     "obtaining_ip",
	SceneDeepSleep:       "deep_sleep",
	SceneFrequencyOrigin: "frequency_origin",
	SceneFrequencyCustom: "frequency_custom",
	SceneCustom:          "custom",
	SceneScreenOff:       "screen_off",
	SceneAll:             "all",
}

// String returns the string representation of the ScanScene.
func (s ScanScene) String() string {
	if n, ok := sceneNames[s]; ok {
		return n
	}
	if s.IsCustom() {
		return fmt.Sprintf("custom_%d", int(s-SceneCustomBase))
	}
	return fmt.Sprintf("scene(%d)", int(s))
}

// IsCustom reports whether s is a custom scene id.
func (s ScanScene) IsCustom() bool { return s >= SceneCustomBase }

// CustomScene returns the scene id of the n-th custom scene.
func CustomScene(n int) ScanScene { return SceneCustomBase + ScanScene(n) }

// ParseScanScene converts a name such as "connected" or "custom_3".
func ParseScanScene(s string) (ScanScene, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for sc, n := range sceneNames {
		if n == s {
			return sc, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "custom_%d", &n); err == nil && n >= 0 {
		return CustomScene(n), nil
	}
	return 0, fmt.Errorf("%w: scene %q", ErrInvalidControlInfo, s)
}

// ScanMode classifies a scan request for rule matching.
type ScanMode int

const (
	ScanModeAppForeground ScanMode = iota
	ScanModeAppBackground
	ScanModeSysForeground
	ScanModeSysBackground
	// ScanModeAllExtern matches every app-initiated scan.
	ScanModeAllExtern
	ScanModePno
	ScanModeSystemTimer
	// ScanModeAnything matches every scan.
	ScanModeAnything
)

var modeNames = map[ScanMode]string{
	ScanModeAppForeground: "app_foreground",
	ScanModeAppBackground: "app_background",
	ScanModeSysForeground: "sys_foreground",
	ScanModeSysBackground: "sys_background",
	ScanModeAllExtern:     "all_extern",
	ScanModePno:           "pno",
	ScanModeSystemTimer:   "system_timer",
	ScanModeAnything:      "anything",
}

// String returns the string representation of the ScanMode.
func (m ScanMode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseScanMode converts a mode name.
func ParseScanMode(s string) (ScanMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: mode %q", ErrInvalidControlInfo, s)
}

// IsExtern reports whether m is an app-initiated mode.
func (m ScanMode) IsExtern() bool {
	return m == ScanModeAppForeground || m == ScanModeAppBackground
}

// MatchedBy reports whether a rule written for ruleMode applies to m.
func (m ScanMode) MatchedBy(ruleMode ScanMode) bool {
	switch ruleMode {
	case ScanModeAnything:
		return true
	case ScanModeAllExtern:
		return m.IsExtern()
	default:
		return ruleMode == m
	}
}

// IntervalMode selects the throttling algorithm of an interval rule.
type IntervalMode int

const (
	IntervalFixed IntervalMode = iota
	IntervalExponential
	IntervalContinuous
	IntervalBlocklist
)

// String returns the string representation of the IntervalMode.
func (m IntervalMode) String() string {
	switch m {
	case IntervalFixed:
		return "fixed"
	case IntervalExponential:
		return "exponential"
	case IntervalContinuous:
		return "continuous"
	case IntervalBlocklist:
		return "blocklist"
	default:
		return fmt.Sprintf("interval(%d)", int(m))
	}
}

// ParseIntervalMode converts an interval mode name.
func ParseIntervalMode(s string) (IntervalMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return IntervalFixed, nil
	case "exponential", "exp":
		return IntervalExponential, nil
	case "continuous", "continue":
		return IntervalContinuous, nil
	case "blocklist":
		return IntervalBlocklist, nil
	default:
		return 0, fmt.Errorf("%w: interval mode %q", ErrInvalidControlInfo, s)
	}
}

// ScanForbidMode denies scans of a mode while in a scene. ForbidTime bounds the
// window after scene entry (zero means for as long as the scene lasts) and
// ForbidCount bounds how many denials the rule issues (zero means unlimited).
type ScanForbidMode struct {
	Scene       ScanScene
	Mode        ScanMode
	ForbidTime  time.Duration
	ForbidCount int
}

// ScanIntervalMode throttles app-initiated scans in a scene. IsSingle keys the
// counters per app; otherwise all apps share one bucket.
type ScanIntervalMode struct {
	Scene        ScanScene
	Mode         ScanMode
	IsSingle     bool
	IntervalMode IntervalMode
	Interval     time.Duration
	Count        int
}

// ScanControlInfo is the complete scan control policy.
type ScanControlInfo struct {
	ForbidList    []ScanForbidMode
	IntervalList  []ScanIntervalMode
	TrustSceneIDs []ScanScene
}
