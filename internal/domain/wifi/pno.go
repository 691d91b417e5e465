package wifi

import (
	"slices"
	"time"
)

// PnoScanConfig configures preferred network offload scanning.
type PnoScanConfig struct {
	ScanInterval       time.Duration
	MinRssi2Dot4GHz    int
	MinRssi5GHz        int
	HiddenNetworkSSIDs []string
	SavedNetworkSSIDs  []string
	Frequencies        []int
}

// IsZero reports whether no PNO parameters have been supplied.
func (c PnoScanConfig) IsZero() bool {
	return c.ScanInterval == 0 && len(c.SavedNetworkSSIDs) == 0 &&
		len(c.HiddenNetworkSSIDs) == 0 && len(c.Frequencies) == 0
}

// ScanConfig returns the one-shot scan request that confirms or emulates a
// PNO cycle with the PNO frequencies and hidden SSIDs.
func (c PnoScanConfig) ScanConfig() InterScanConfig {
	return InterScanConfig{
		ScanFreqs:          slices.Clone(c.Frequencies),
		HiddenNetworkSSIDs: slices.Clone(c.HiddenNetworkSSIDs),
		ScanStyle:          ScanStyleLowPower,
		AppID:              SystemAppID,
	}
}

// AboveThreshold reports whether info clears the band-specific RSSI floor.
func (c PnoScanConfig) AboveThreshold(info ScanInfo) bool {
	switch info.Band() {
	case Band24GHz:
		return info.RSSI >= c.MinRssi2Dot4GHz
	case Band5GHz:
		return info.RSSI >= c.MinRssi5GHz
	default:
		return true
	}
}

// Clone returns a deep copy of the config.
func (c PnoScanConfig) Clone() PnoScanConfig {
	c.HiddenNetworkSSIDs = slices.Clone(c.HiddenNetworkSSIDs)
	c.SavedNetworkSSIDs = slices.Clone(c.SavedNetworkSSIDs)
	c.Frequencies = slices.Clone(c.Frequencies)
	return c
}
