// Package policy decides whether a scan may run right now. Store holds the scan
// control rules and the transient throttling counters; Engine combines them
// with the current device state.
package policy

import (
	"slices"
	"time"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// fullAppID keys the shared bucket used by interval rules that are not
// tracked per app.
const fullAppID wifi.AppID = -2

// counterKey identifies the interval counters of one requester under one rule.
type counterKey struct {
	app   wifi.AppID
	scene wifi.ScanScene
	mode  wifi.ScanMode
}

type forbidKey struct {
	scene wifi.ScanScene
	mode  wifi.ScanMode
}

// IntervalState is the bookkeeping behind every interval algorithm.
type IntervalState struct {
	// Fixed window.
	FixedWindowStart time.Time
	FixedCount       int

	// Exponential backoff.
	ExpLastScan time.Time
	ExpInterval time.Duration
	ExpCount    int

	// Continuous burst.
	ContLastScan   time.Time
	ContUnderCount int
}

// Store owns the scan control policy and its counters. It is not safe for
// concurrent use; callers serialize access through the scan loop.
type Store struct {
	info wifi.ScanControlInfo

	counters      map[counterKey]*IntervalState
	blocklist     map[wifi.AppID]struct{}
	forbidDenials map[forbidKey]int
	sceneEntry    map[wifi.ScanScene]time.Time
}

// NewStore returns a Store serving info.
func NewStore(info wifi.ScanControlInfo) *Store {
	s := &Store{sceneEntry: make(map[wifi.ScanScene]time.Time)}
	s.info = cloneControlInfo(info)
	s.ClearScanControlValue()
	return s
}

// ControlInfo returns a copy of the current rules.
func (s *Store) ControlInfo() wifi.ScanControlInfo { return cloneControlInfo(s.info) }

// ForbidRules returns the forbid rules. The slice must not be modified.
func (s *Store) ForbidRules() []wifi.ScanForbidMode { return s.info.ForbidList }

// IntervalRules returns the interval rules. The slice must not be modified.
func (s *Store) IntervalRules() []wifi.ScanIntervalMode { return s.info.IntervalList }

// IsTrustScene reports whether scans in scene bypass forbid and interval rules.
func (s *Store) IsTrustScene(scene wifi.ScanScene) bool {
	return slices.Contains(s.info.TrustSceneIDs, scene)
}

// ApplyControlInfo replaces the rules and clears every counter.
func (s *Store) ApplyControlInfo(info wifi.ScanControlInfo) {
	s.info = cloneControlInfo(info)
	s.ClearScanControlValue()
}

// ClearScanControlValue resets interval counters, forbid denial counts and the
// blocklist. Rules and scene entry times are kept.
func (s *Store) ClearScanControlValue() {
	s.counters = make(map[counterKey]*IntervalState)
	s.blocklist = make(map[wifi.AppID]struct{})
	s.forbidDenials = make(map[forbidKey]int)
}

// IntervalState returns the counters for app under rule, creating them on
// first use. Rules that are not per app share one bucket.
func (s *Store) IntervalState(app wifi.AppID, rule wifi.ScanIntervalMode) *IntervalState {
	if !rule.IsSingle {
		app = fullAppID
	}
	key := counterKey{app: app, scene: rule.Scene, mode: rule.Mode}
	st, ok := s.counters[key]
	if !ok {
		st = new(IntervalState)
		s.counters[key] = st
	}
	return st
}

// IsBlocklisted reports whether app is on the blocklist.
func (s *Store) IsBlocklisted(app wifi.AppID) bool {
	_, ok := s.blocklist[app]
	return ok
}

// AddToBlocklist puts app on the blocklist until the next clear.
func (s *Store) AddToBlocklist(app wifi.AppID) { s.blocklist[app] = struct{}{} }

// ForbidDenials returns how many times the forbid rule for scene/mode denied.
func (s *Store) ForbidDenials(scene wifi.ScanScene, mode wifi.ScanMode) int {
	return s.forbidDenials[forbidKey{scene: scene, mode: mode}]
}

// IncForbidDenials records a denial issued by the forbid rule for scene/mode.
func (s *Store) IncForbidDenials(scene wifi.ScanScene, mode wifi.ScanMode) {
	s.forbidDenials[forbidKey{scene: scene, mode: mode}]++
}

// EnterScene records when scene became current. Re-entering an already
// current scene keeps the original time.
func (s *Store) EnterScene(scene wifi.ScanScene, at time.Time) {
	if _, ok := s.sceneEntry[scene]; ok {
		return
	}
	s.sceneEntry[scene] = at
}

// LeaveScene forgets the entry time of scene.
func (s *Store) LeaveScene(scene wifi.ScanScene) { delete(s.sceneEntry, scene) }

// SceneEntry returns when scene became current.
func (s *Store) SceneEntry(scene wifi.ScanScene) (time.Time, bool) {
	t, ok := s.sceneEntry[scene]
	return t, ok
}

func cloneControlInfo(info wifi.ScanControlInfo) wifi.ScanControlInfo {
	return wifi.ScanControlInfo{
		ForbidList:    slices.Clone(info.ForbidList),
		IntervalList:  slices.Clone(info.IntervalList),
		TrustSceneIDs: slices.Clone(info.TrustSceneIDs),
	}
}
