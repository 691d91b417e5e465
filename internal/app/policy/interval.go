package policy

import (
	"time"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// allowFixed admits at most rule.Count scans per rule.Interval window.
func allowFixed(st *IntervalState, rule wifi.ScanIntervalMode, now time.Time) bool {
	if st.FixedWindowStart.IsZero() || now.Sub(st.FixedWindowStart) >= rule.Interval {
		st.FixedWindowStart = now
		st.FixedCount = 0
	}
	if st.FixedCount >= rule.Count {
		return false
	}
	st.FixedCount++
	return true
}

// allowExponential admits a scan once the current wait has elapsed, then
// doubles the wait, at most rule.Count times.
func allowExponential(st *IntervalState, rule wifi.ScanIntervalMode, now time.Time) bool {
	if st.ExpInterval == 0 {
		st.ExpLastScan = now
		st.ExpInterval = rule.Interval
		st.ExpCount = 0
		return true
	}
	if now.Sub(st.ExpLastScan) < st.ExpInterval {
		return false
	}
	st.ExpLastScan = now
	if st.ExpCount < rule.Count {
		st.ExpInterval *= 2
		st.ExpCount++
	}
	return true
}

// allowContinuous tolerates rule.Count requests closer than rule.Interval to
// the previous one and denies after that until the requester slows down. Every
// request, denied or not, becomes the previous one.
func allowContinuous(st *IntervalState, rule wifi.ScanIntervalMode, now time.Time) bool {
	tooSoon := !st.ContLastScan.IsZero() && now.Sub(st.ContLastScan) < rule.Interval
	st.ContLastScan = now
	if !tooSoon {
		st.ContUnderCount = 0
		return true
	}
	st.ContUnderCount++
	return st.ContUnderCount <= rule.Count
}
