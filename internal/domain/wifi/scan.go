// Package wifi holds the domain model of the scan orchestration subsystem:
// scan requests and results, PNO configuration, the scan control policy
// vocabulary, status reports and the ports to the radio driver, the settings
// store and the upstream callback sink.
package wifi

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Band selects a set of channels to scan.
type Band int

const (
	BandUnspecified Band = iota
	Band24GHz
	Band5GHz
	BandBoth
	Band5GHzDFSOnly
	Band5GHzWithDFS
	BandBothWithDFS
)

var bandNames = map[Band]string{
	BandUnspecified: "unspecified",
	Band24GHz:       "2.4ghz",
	Band5GHz:        "5ghz",
	BandBoth:        "both",
	Band5GHzDFSOnly: "5ghz_dfs_only",
	Band5GHzWithDFS: "5ghz_with_dfs",
	BandBothWithDFS: "both_with_dfs",
}

// String returns the string representation of the Band.
func (b Band) String() string {
	if s, ok := bandNames[b]; ok {
		return s
	}
	return fmt.Sprintf("band(%d)", int(b))
}

// ParseBand converts a string to a Band. Unknown values map to BandUnspecified.
func ParseBand(s string) Band {
	s = strings.ToLower(strings.TrimSpace(s))
	for b, name := range bandNames {
		if name == s {
			return b
		}
	}
	return BandUnspecified
}

// ScanStyle trades scan latency against power and completeness.
type ScanStyle int

const (
	ScanStyleLowSpan ScanStyle = iota
	ScanStyleLowPower
	ScanStyleHighAccuracy
)

// String returns the string representation of the ScanStyle.
func (s ScanStyle) String() string {
	switch s {
	case ScanStyleLowSpan:
		return "low_span"
	case ScanStyleLowPower:
		return "low_power"
	case ScanStyleHighAccuracy:
		return "high_accuracy"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// ParseScanStyle converts a string to a ScanStyle, defaulting to ScanStyleLowSpan.
func ParseScanStyle(s string) ScanStyle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low_power":
		return ScanStyleLowPower
	case "high_accuracy":
		return ScanStyleHighAccuracy
	default:
		return ScanStyleLowSpan
	}
}

// MergeScanStyle combines the style of a running scan with an incoming one.
// HighAccuracy wins; otherwise the running style is kept so a merge never
// silently downgrades the scan in flight.
func MergeScanStyle(running, incoming ScanStyle) ScanStyle {
	if running == ScanStyleHighAccuracy || incoming == ScanStyleHighAccuracy {
		return ScanStyleHighAccuracy
	}
	return running
}

// ScanInfo is a single BSS observed by a scan.
type ScanInfo struct {
	BSSID        string
	SSID         string
	Frequency    int
	RSSI         int
	Capabilities string
	Timestamp    time.Time
}

// Band derives the band from the frequency.
func (s ScanInfo) Band() Band { return FrequencyToBand(s.Frequency) }

// NetworkConfig is a saved network known to the settings store.
type NetworkConfig struct {
	NetworkID  int
	SSID       string
	BSSID      string
	HiddenSSID bool
}

// ChannelToFrequency converts a 2.4 GHz or 5 GHz channel number to its
// center frequency in MHz. Unknown channels return 0.
func ChannelToFrequency(channel int) int {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + 5*channel
	case channel >= 32 && channel <= 177:
		return 5000 + 5*channel
	default:
		return 0
	}
}

// FrequencyToBand classifies a center frequency.
func FrequencyToBand(freq int) Band {
	switch {
	case freq >= 2400 && freq < 2500:
		return Band24GHz
	case freq >= 4900 && freq < 5900:
		return Band5GHz
	default:
		return BandUnspecified
	}
}

// MergeScanResults combines two result lists keyed by BSSID. Entries in newer
// replace entries in older; the order of first appearance is kept.
func MergeScanResults(older, newer []ScanInfo) []ScanInfo {
	idx := make(map[string]int, len(older)+len(newer))
	out := make([]ScanInfo, 0, len(older)+len(newer))
	for _, list := range [][]ScanInfo{older, newer} {
		for _, info := range list {
			if i, ok := idx[info.BSSID]; ok {
				out[i] = info
				continue
			}
			idx[info.BSSID] = len(out)
			out = append(out, info)
		}
	}
	return out
}

// unionInts returns the sorted union of the given lists without duplicates.
func unionInts(lists ...[]int) []int {
	var out []int
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// unionStrings returns the union of the given lists preserving first-seen order.
func unionStrings(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, s := range l {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
