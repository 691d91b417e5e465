package wifi

import (
	"slices"
	"time"
)

// AppID identifies the application requesting a scan.
type AppID int

// SystemAppID is used for scans the subsystem issues on its own behalf.
const SystemAppID AppID = -1

// InterScanConfig is a scan request as handed to the state machine.
type InterScanConfig struct {
	// ScanFreqs lists the frequencies (MHz) to scan. Empty means all.
	ScanFreqs          []int
	HiddenNetworkSSIDs []string
	ScanStyle          ScanStyle

	FullScan  bool
	Extern    bool
	WithParam bool
	AppID     AppID

	// SSIDFilter and BSSIDFilter restrict the results forwarded for a
	// with-param scan. Empty filters match everything.
	SSIDFilter  string
	BSSIDFilter string

	CreatedAt time.Time
}

// Matches reports whether info satisfies the request's SSID/BSSID filters.
func (c InterScanConfig) Matches(info ScanInfo) bool {
	if c.SSIDFilter != "" && c.SSIDFilter != info.SSID {
		return false
	}
	if c.BSSIDFilter != "" && c.BSSIDFilter != info.BSSID {
		return false
	}
	return true
}

// HasFilter reports whether the request restricts its results.
func (c InterScanConfig) HasFilter() bool { return c.SSIDFilter != "" || c.BSSIDFilter != "" }

// HardwareScanParams is what the driver receives for a single scan.
type HardwareScanParams struct {
	Frequencies []int
	HiddenSSIDs []string
	ExtraIEs    []byte
}

// RunningScanSettings describes the one hardware scan in flight.
type RunningScanSettings struct {
	ScanFreqs          []int
	HiddenNetworkSSIDs []string
	ScanStyle          ScanStyle
	FullScan           bool
	active             bool
}

// NewRunningScanSettings merges a batch of requests into the settings for a
// single dispatch: frequencies and hidden SSIDs are unioned (any request for
// all frequencies makes the scan cover all), styles are merged and the scan
// is full if any request is.
func NewRunningScanSettings(reqs []InterScanConfig) RunningScanSettings {
	if len(reqs) == 0 {
		return RunningScanSettings{}
	}

	s := RunningScanSettings{ScanStyle: reqs[0].ScanStyle, active: true}
	allFreqs := false
	freqLists := make([][]int, 0, len(reqs))
	ssidLists := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		if len(r.ScanFreqs) == 0 {
			allFreqs = true
		}
		freqLists = append(freqLists, r.ScanFreqs)
		ssidLists = append(ssidLists, r.HiddenNetworkSSIDs)
		s.ScanStyle = MergeScanStyle(s.ScanStyle, r.ScanStyle)
		s.FullScan = s.FullScan || r.FullScan
	}
	if !allFreqs {
		s.ScanFreqs = unionInts(freqLists...)
	}
	s.HiddenNetworkSSIDs = unionStrings(ssidLists...)
	return s
}

// Active reports whether the settings describe a dispatched scan.
func (s RunningScanSettings) Active() bool { return s.active }

// Covers reports whether req is satisfied by this scan: a HighAccuracy scan
// covers everything, otherwise the running frequencies must be a superset of
// the requested ones, an empty list standing for all frequencies.
func (s RunningScanSettings) Covers(req InterScanConfig) bool {
	if !s.active {
		return false
	}
	if s.ScanStyle == ScanStyleHighAccuracy {
		return true
	}
	if len(s.ScanFreqs) == 0 {
		return true
	}
	if len(req.ScanFreqs) == 0 {
		return false
	}
	for _, f := range req.ScanFreqs {
		if !slices.Contains(s.ScanFreqs, f) {
			return false
		}
	}
	return true
}

// Absorb records that req was merged into the running scan. ScanStyle and
// ScanFreqs keep describing what was sent to the driver, so coverage of later
// requests is judged against the scan actually in flight.
func (s *RunningScanSettings) Absorb(req InterScanConfig) {
	s.FullScan = s.FullScan || req.FullScan
}

// HardwareParams converts the settings into driver parameters.
func (s RunningScanSettings) HardwareParams() HardwareScanParams {
	return HardwareScanParams{
		Frequencies: slices.Clone(s.ScanFreqs),
		HiddenSSIDs: slices.Clone(s.HiddenNetworkSSIDs),
	}
}

// ScanParams is the caller-supplied input of a parameterized scan.
type ScanParams struct {
	SSID        string    `json:"ssid" validate:"omitempty,max=32"`
	BSSID       string    `json:"bssid" validate:"omitempty,mac"`
	Band        Band      `json:"band" validate:"gte=0,lte=6"`
	Frequencies []int     `json:"frequencies" validate:"omitempty,dive,gte=2400,lte=7125"`
	Style       ScanStyle `json:"style" validate:"gte=0,lte=2"`
	AppID       AppID     `json:"app_id"`
}
