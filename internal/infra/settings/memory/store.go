// Package memory provides an in-process wifi.ConfigStore.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
)

var (
	channels24GHz = []int{2412, 2417, 2422, 2427, 2432, 2437, 2442, 2447, 2452, 2457, 2462, 2467, 2472}
	channels5GHz  = []int{5180, 5200, 5220, 5240, 5745, 5765, 5785, 5805, 5825}
	channelsDFS   = []int{
		5260, 5280, 5300, 5320,
		5500, 5520, 5540, 5560, 5580, 5600, 5620, 5640, 5660, 5680, 5700, 5720,
	}
)

// DefaultBandTable maps every concrete band to its channel center frequencies.
func DefaultBandTable() map[wifi.Band][]int {
	return map[wifi.Band][]int{
		wifi.Band24GHz:       slices.Clone(channels24GHz),
		wifi.Band5GHz:        slices.Clone(channels5GHz),
		wifi.Band5GHzDFSOnly: slices.Clone(channelsDFS),
		wifi.BandBoth:        slices.Concat(channels24GHz, channels5GHz),
		wifi.Band5GHzWithDFS: slices.Sorted(slices.Values(slices.Concat(channels5GHz, channelsDFS))),
		wifi.BandBothWithDFS: slices.Sorted(slices.Values(slices.Concat(channels24GHz, channels5GHz, channelsDFS))),
	}
}

// Option configures a Store.
type Option func(*Store)

// WithResultRepository makes SaveScanResultList also persist results durably.
func WithResultRepository(repo wifi.ScanResultRepository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithBandTable replaces the band to frequency table.
func WithBandTable(table map[wifi.Band][]int) Option {
	return func(s *Store) { s.bands = table }
}

// WithSavedNetworks seeds the saved network list.
func WithSavedNetworks(networks []wifi.NetworkConfig) Option {
	return func(s *Store) { s.saved = slices.Clone(networks) }
}

// WithHardwarePno sets the hardware PNO capability flag.
func WithHardwarePno(supported bool) Option {
	return func(s *Store) { s.hwPno = supported }
}

// Store keeps device settings in memory. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	control         wifi.ScanControlInfo
	bands           map[wifi.Band][]int
	hwPno           bool
	screenOn        bool
	saved           []wifi.NetworkConfig
	allowSwitchover bool
	lastResults     []wifi.ScanInfo

	repo   wifi.ScanResultRepository
	logger *logger.Logger
}

var _ wifi.ConfigStore = (*Store)(nil)

// NewStore creates a store with the screen on, hardware PNO supported,
// network switchover allowed and no saved networks.
func NewStore(log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		bands:           DefaultBandTable(),
		hwPno:           true,
		screenOn:        true,
		allowSwitchover: true,
		logger:          log.With("component", "settings_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetScanControlInfo(context.Context) (wifi.ScanControlInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneControlInfo(s.control), nil
}

// SetScanControlInfo replaces the control policy. Callers notify the
// orchestrator through OnControlStrategyChanged.
func (s *Store) SetScanControlInfo(info wifi.ScanControlInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.control = cloneControlInfo(info)
}

// GetSupportedFrequencies returns the channel list of band.
func (s *Store) GetSupportedFrequencies(_ context.Context, band wifi.Band) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	freqs, ok := s.bands[band]
	if !ok {
		return nil, fmt.Errorf("%w: no channels for band %s", wifi.ErrInvalidScanParams, band)
	}
	return slices.Clone(freqs), nil
}

func (s *Store) GetSupportHwPnoFlag(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hwPno
}

func (s *Store) GetScreenState(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screenOn
}

// SetScreenState records the screen state read at startup.
func (s *Store) SetScreenState(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenOn = on
}

func (s *Store) GetSavedNetworkConfigs(context.Context) ([]wifi.NetworkConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.saved), nil
}

// SetSavedNetworks replaces the saved network list.
func (s *Store) SetSavedNetworks(networks []wifi.NetworkConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = slices.Clone(networks)
}

// SaveScanResultList keeps results as the latest list and, when a repository
// is configured, persists them.
func (s *Store) SaveScanResultList(ctx context.Context, results []wifi.ScanInfo) error {
	s.mu.Lock()
	s.lastResults = slices.Clone(results)
	repo := s.repo
	s.mu.Unlock()

	if repo == nil {
		return nil
	}
	if err := repo.SaveScanResults(ctx, results); err != nil {
		return fmt.Errorf("persisting %d scan results: %w", len(results), err)
	}
	s.logger.Debug(ctx, "Scan results persisted", "count", len(results))
	return nil
}

// LatestScanResults returns the last saved list, read back from the
// repository when one is configured.
func (s *Store) LatestScanResults(ctx context.Context, limit int) ([]wifi.ScanInfo, error) {
	s.mu.RLock()
	repo := s.repo
	last := slices.Clone(s.lastResults)
	s.mu.RUnlock()

	if repo != nil {
		return repo.LatestScanResults(ctx, limit)
	}
	if limit > 0 && len(last) > limit {
		last = last[:limit]
	}
	return last, nil
}

func (s *Store) GetWhetherToAllowNetworkSwitchover(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowSwitchover
}

// SetAllowNetworkSwitchover toggles whether scan results may trigger roaming.
func (s *Store) SetAllowNetworkSwitchover(allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowSwitchover = allow
}

func cloneControlInfo(info wifi.ScanControlInfo) wifi.ScanControlInfo {
	return wifi.ScanControlInfo{
		ForbidList:    slices.Clone(info.ForbidList),
		IntervalList:  slices.Clone(info.IntervalList),
		TrustSceneIDs: slices.Clone(info.TrustSceneIDs),
	}
}
