package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scand/internal/domain/wifi"
)

const samplePolicy = `
forbid:
  - scene: connected
    mode: pno
  - scene: screen_off
    mode: all_extern
    forbid_time: 30s
    forbid_count: 2
interval:
  - scene: all
    mode: app_foreground
    single: true
    interval_mode: fixed
    interval: 120s
    count: 4
  - scene: disconnected
    mode: app_background
    interval_mode: exponential
    interval: 10s
    count: 3
trust_scenes: [custom_1, deep_sleep]
`

func TestFileLoader_Load(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	info, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []wifi.ScanForbidMode{
		{Scene: wifi.SceneConnected, Mode: wifi.ScanModePno},
		{Scene: wifi.SceneScreenOff, Mode: wifi.ScanModeAllExtern, ForbidTime: 30 * time.Second, ForbidCount: 2},
	}, info.ForbidList)

	assert.Equal(t, []wifi.ScanIntervalMode{
		{
			Scene:        wifi.SceneAll,
			Mode:         wifi.ScanModeAppForeground,
			IsSingle:     true,
			IntervalMode: wifi.IntervalFixed,
			Interval:     120 * time.Second,
			Count:        4,
		},
		{
			Scene:        wifi.SceneDisconnected,
			Mode:         wifi.ScanModeAppBackground,
			IntervalMode: wifi.IntervalExponential,
			Interval:     10 * time.Second,
			Count:        3,
		},
	}, info.IntervalList)

	assert.Equal(t, []wifi.ScanScene{wifi.CustomScene(1), wifi.SceneDeepSleep}, info.TrustSceneIDs)
}

func TestFileLoader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader(filepath.Join(t.TempDir(), "none.yaml")).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, wifi.ErrInvalidControlInfo)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed_yaml", doc: "forbid: [scene: "},
		{name: "unknown_scene", doc: "forbid:\n  - scene: underwater\n    mode: pno\n"},
		{name: "unknown_mode", doc: "forbid:\n  - scene: connected\n    mode: sometimes\n"},
		{name: "missing_mode", doc: "forbid:\n  - scene: connected\n"},
		{name: "bad_forbid_time", doc: "forbid:\n  - scene: connected\n    mode: pno\n    forbid_time: soon\n"},
		{name: "unknown_interval_mode", doc: "interval:\n  - scene: all\n    mode: app_foreground\n    interval_mode: random\n    interval: 1s\n"},
		{name: "zero_interval", doc: "interval:\n  - scene: all\n    mode: app_foreground\n    interval_mode: fixed\n    interval: 0s\n"},
		{name: "negative_count", doc: "interval:\n  - scene: all\n    mode: app_foreground\n    interval_mode: fixed\n    interval: 1s\n    count: -1\n"},
		{name: "unknown_trust_scene", doc: "trust_scenes: [nowhere]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, wifi.ErrInvalidControlInfo)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	info, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, info.ForbidList)
	assert.Empty(t, info.IntervalList)
}
