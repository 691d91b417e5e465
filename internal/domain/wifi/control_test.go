package wifi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMode_MatchedBy(t *testing.T) {
	assert.True(t, ScanModeAppForeground.MatchedBy(ScanModeAllExtern))
	assert.True(t, ScanModeAppBackground.MatchedBy(ScanModeAllExtern))
	assert.False(t, ScanModePno.MatchedBy(ScanModeAllExtern))
	assert.True(t, ScanModePno.MatchedBy(ScanModeAnything))
	assert.True(t, ScanModeSystemTimer.MatchedBy(ScanModeSystemTimer))
	assert.False(t, ScanModeSystemTimer.MatchedBy(ScanModePno))
}

func TestParseScanScene(t *testing.T) {
	sc, err := ParseScanScene("screen_off")
	require.NoError(t, err)
	assert.Equal(t, SceneScreenOff, sc)

	sc, err = ParseScanScene("custom_3")
	require.NoError(t, err)
	assert.Equal(t, CustomScene(3), sc)
	assert.True(t, sc.IsCustom())
	assert.Equal(t, "custom_3", sc.String())

	_, err = ParseScanScene("lunar")
	assert.ErrorIs(t, err, ErrInvalidControlInfo)
}

func TestStaState_Scene(t *testing.T) {
	assert.Equal(t, SceneConnected, StaStateConnected.Scene())
	assert.Equal(t, SceneDisconnected, StaStateDisconnected.Scene())
	assert.Equal(t, SceneObtainingIP, StaStateObtainingIP.Scene())
	assert.True(t, StaStateUnknown.IsDisconnected())
}

func TestDenyError_Is(t *testing.T) {
	var err error = &DenyError{Reason: DenyReasonFixed, Scene: SceneConnected, Mode: ScanModeAppForeground}
	wrapped := errors.Join(errors.New("ctx"), err)

	assert.ErrorIs(t, wrapped, ErrScanDenied)
	reason, ok := IsDenied(wrapped)
	assert.True(t, ok)
	assert.Equal(t, DenyReasonFixed, reason)

	_, ok = IsDenied(ErrInvalidScanParams)
	assert.False(t, ok)
}
