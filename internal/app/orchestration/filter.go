package orchestration

import "github.com/ahrav/scand/internal/domain/wifi"

func isFullScan(reqs []wifi.InterScanConfig) bool {
	for _, r := range reqs {
		if r.FullScan {
			return true
		}
	}
	return false
}

// filterResults drops malformed entries, collapses duplicate BSSIDs to their
// latest observation and, when every request carries an SSID/BSSID filter,
// keeps only results matching at least one of them.
func filterResults(results []wifi.ScanInfo, reqs []wifi.InterScanConfig) []wifi.ScanInfo {
	valid := make([]wifi.ScanInfo, 0, len(results))
	for _, r := range results {
		if r.BSSID == "" || r.Frequency <= 0 {
			continue
		}
		valid = append(valid, r)
	}
	valid = wifi.MergeScanResults(nil, valid)

	var filters []wifi.InterScanConfig
	for _, r := range reqs {
		if !r.HasFilter() {
			return valid
		}
		filters = append(filters, r)
	}
	if len(filters) == 0 {
		return valid
	}

	out := valid[:0]
	for _, info := range valid {
		for _, f := range filters {
			if f.Matches(info) {
				out = append(out, info)
				break
			}
		}
	}
	return out
}
