package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/scand/internal/app/orchestration"
	"github.com/ahrav/scand/internal/app/statemachine"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
)

type fakeService struct {
	scanFn          func(ctx context.Context, extern bool, app wifi.AppID) (int, error)
	scanWithParamFn func(ctx context.Context, params wifi.ScanParams) (int, error)
	cancelFn        func(ctx context.Context, index int) error
	stateFn         func(ctx context.Context) (orchestration.View, error)

	disabled     *bool
	pnoStarts    int
	pnoStops     int
	screen       *bool
	sta          wifi.StaState
	apps         map[wifi.AppID]bool
	freeze       *bool
	scenes       map[wifi.ScanScene]bool
	policyReload int
}

func (f *fakeService) Scan(ctx context.Context, extern bool, app wifi.AppID) (int, error) {
	return f.scanFn(ctx, extern, app)
}

func (f *fakeService) ScanWithParam(ctx context.Context, params wifi.ScanParams) (int, error) {
	return f.scanWithParamFn(ctx, params)
}

func (f *fakeService) CancelScan(ctx context.Context, index int) error { return f.cancelFn(ctx, index) }

func (f *fakeService) DisableScan(_ context.Context, disable bool) error {
	f.disabled = &disable
	return nil
}

func (f *fakeService) StartPnoScan(context.Context) error { f.pnoStarts++; return nil }
func (f *fakeService) StopPnoScan(context.Context) error  { f.pnoStops++; return nil }

func (f *fakeService) OnScreenStateChanged(_ context.Context, on bool) error {
	f.screen = &on
	return nil
}

func (f *fakeService) OnClientModeStatusChanged(_ context.Context, state wifi.StaState) error {
	f.sta = state
	return nil
}

func (f *fakeService) OnAppRunningModeChanged(_ context.Context, app wifi.AppID, foreground bool) error {
	if f.apps == nil {
		f.apps = make(map[wifi.AppID]bool)
	}
	f.apps[app] = foreground
	return nil
}

func (f *fakeService) OnMovingFreezeStateChange(_ context.Context, freeze bool) error {
	f.freeze = &freeze
	return nil
}

func (f *fakeService) OnCustomControlStateChanged(_ context.Context, scene wifi.ScanScene, active bool) error {
	if f.scenes == nil {
		f.scenes = make(map[wifi.ScanScene]bool)
	}
	f.scenes[scene] = active
	return nil
}

func (f *fakeService) OnControlStrategyChanged(context.Context) error {
	f.policyReload++
	return nil
}

func (f *fakeService) State(ctx context.Context) (orchestration.View, error) {
	return f.stateFn(ctx)
}

type fakeLoader struct {
	info wifi.ScanControlInfo
	err  error
}

func (l fakeLoader) Load(context.Context) (wifi.ScanControlInfo, error) { return l.info, l.err }

type fakeSink struct{ got *wifi.ScanControlInfo }

func (s *fakeSink) SetScanControlInfo(info wifi.ScanControlInfo) { s.got = &info }

type fakeResults struct {
	results []wifi.ScanInfo
	limit   int
}

func (r *fakeResults) LatestScanResults(_ context.Context, limit int) ([]wifi.ScanInfo, error) {
	r.limit = limit
	return r.results, nil
}

func newTestServer(t *testing.T, svc *fakeService, mutate ...func(*Config)) *Server {
	t.Helper()

	metrics, err := NewAPIMetrics(noop.NewMeterProvider())
	require.NoError(t, err)

	cfg := Config{Addr: ":0", Service: svc}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewServer(cfg, logger.Noop(), metrics, tracenoop.NewTracerProvider().Tracer("test"))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_Scan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "accepted", wantStatus: http.StatusAccepted},
		{
			name:       "policy_denial",
			err:        &wifi.DenyError{Reason: wifi.DenyReasonBlocklisted, Scene: wifi.SceneConnected, Mode: wifi.ScanModeAppForeground},
			wantStatus: http.StatusTooManyRequests,
			wantReason: string(wifi.DenyReasonBlocklisted),
		},
		{name: "driver_not_loaded", err: wifi.ErrDriverNotLoaded, wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected_failure", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotExtern bool
			var gotApp wifi.AppID
			svc := &fakeService{scanFn: func(_ context.Context, extern bool, app wifi.AppID) (int, error) {
				gotExtern, gotApp = extern, app
				if tt.err != nil {
					return 0, tt.err
				}
				return 7, nil
			}}
			s := newTestServer(t, svc)

			rec := do(t, s, http.MethodPost, "/v1/scans", `{"extern":true,"app_id":42}`)
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.True(t, gotExtern)
			assert.Equal(t, wifi.AppID(42), gotApp)

			if tt.err == nil {
				assert.Equal(t, 7, decode[scanResponse](t, rec).Index)
				return
			}
			assert.Equal(t, tt.wantReason, decode[errorResponse](t, rec).Reason)
		})
	}
}

func TestServer_ScanWithParam(t *testing.T) {
	t.Parallel()

	var got wifi.ScanParams
	svc := &fakeService{scanWithParamFn: func(_ context.Context, params wifi.ScanParams) (int, error) {
		got = params
		if params.SSID == "bad" {
			return 0, wifi.ErrInvalidScanParams
		}
		if params.SSID == "nosaved" {
			return 0, wifi.ErrNoSavedNetworks
		}
		return 3, nil
	}}
	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodPost, "/v1/scans/param", `{"ssid":"home","band":1,"frequencies":[2412],"app_id":9}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, wifi.ScanParams{SSID: "home", Band: wifi.Band24GHz, Frequencies: []int{2412}, AppID: 9}, got)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/scans/param", `{"ssid":"bad"}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/v1/scans/param", `{"ssid":"nosaved"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/scans/param", `{not json`).Code)
}

func TestServer_CancelScan(t *testing.T) {
	t.Parallel()

	svc := &fakeService{cancelFn: func(_ context.Context, index int) error {
		switch index {
		case 1:
			return nil
		case 2:
			return wifi.ErrScanNotCancellable
		default:
			return wifi.ErrScanRequestNotFound
		}
	}}
	s := newTestServer(t, svc)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "waiting_request", path: "/v1/scans/1", want: http.StatusNoContent},
		{name: "dispatched_request", path: "/v1/scans/2", want: http.StatusConflict},
		{name: "unknown_request", path: "/v1/scans/9", want: http.StatusNotFound},
		{name: "malformed_index", path: "/v1/scans/abc", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, s, http.MethodDelete, tt.path, "").Code)
		})
	}
}

func TestServer_Controls(t *testing.T) {
	t.Parallel()

	svc := new(fakeService)
	s := newTestServer(t, svc)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/scans/disabled", `{"disabled":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/v1/scans/disabled", `{}`).Code)
	require.NotNil(t, svc.disabled)
	assert.True(t, *svc.disabled)

	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/pno/start", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/v1/pno/stop", "").Code)
	assert.Equal(t, 1, svc.pnoStarts)
	assert.Equal(t, 1, svc.pnoStops)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/state/screen", `{"on":false}`).Code)
	require.NotNil(t, svc.screen)
	assert.False(t, *svc.screen)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/state/sta", `{"state":"disconnected"}`).Code)
	assert.Equal(t, wifi.StaStateDisconnected, svc.sta)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/v1/state/sta", `{"state":"floating"}`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/state/apps/12", `{"on":true}`).Code)
	assert.Equal(t, map[wifi.AppID]bool{12: true}, svc.apps)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/v1/state/apps/x", `{"on":true}`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/state/freeze", `{"on":true}`).Code)
	require.NotNil(t, svc.freeze)
	assert.True(t, *svc.freeze)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/v1/state/scenes/custom_2", `{"on":true}`).Code)
	assert.Equal(t, map[wifi.ScanScene]bool{wifi.CustomScene(2): true}, svc.scenes)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/v1/state/scenes/moon", `{"on":true}`).Code)
}

func TestServer_StateAndReadiness(t *testing.T) {
	t.Parallel()

	loaded := true
	svc := &fakeService{stateFn: func(context.Context) (orchestration.View, error) {
		return orchestration.View{
			Machine:  statemachine.Snapshot{State: "CommonScanUnworked", DriverLoaded: loaded},
			ScreenOn: true,
		}, nil
	}}
	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[orchestration.View](t, rec)
	assert.Equal(t, "CommonScanUnworked", view.Machine.State)
	assert.True(t, view.ScreenOn)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/readiness", "").Code)
	loaded = false
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/readiness", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/health", "").Code)
}

func TestServer_PolicyReload(t *testing.T) {
	t.Parallel()

	info := wifi.ScanControlInfo{
		ForbidList: []wifi.ScanForbidMode{{Scene: wifi.SceneConnected, Mode: wifi.ScanModePno}},
	}

	t.Run("applies_loaded_policy", func(t *testing.T) {
		t.Parallel()

		svc := new(fakeService)
		sink := new(fakeSink)
		s := newTestServer(t, svc, func(c *Config) {
			c.PolicyLoader = fakeLoader{info: info}
			c.PolicySink = sink
		})

		rec := do(t, s, http.MethodPost, "/v1/policy/reload", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, sink.got)
		assert.Equal(t, info, *sink.got)
		assert.Equal(t, 1, svc.policyReload)
	})

	t.Run("invalid_policy_is_rejected", func(t *testing.T) {
		t.Parallel()

		svc := new(fakeService)
		sink := new(fakeSink)
		s := newTestServer(t, svc, func(c *Config) {
			c.PolicyLoader = fakeLoader{err: wifi.ErrInvalidControlInfo}
			c.PolicySink = sink
		})

		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/policy/reload", "").Code)
		assert.Nil(t, sink.got)
		assert.Zero(t, svc.policyReload)
	})

	t.Run("not_configured", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, new(fakeService))
		assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodPost, "/v1/policy/reload", "").Code)
	})
}

func TestServer_Results(t *testing.T) {
	t.Parallel()

	seen := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []wifi.ScanInfo{
		{BSSID: "aa:bb:cc:00:00:01", SSID: "home", Frequency: 2412, RSSI: -50, Timestamp: seen},
	}}
	s := newTestServer(t, new(fakeService), func(c *Config) { c.Results = results })

	rec := do(t, s, http.MethodGet, "/v1/results?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, results.limit)

	body := decode[struct {
		Results []resultResponse `json:"results"`
	}](t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "home", body.Results[0].SSID)
	assert.Equal(t, "2025-06-02T08:00:00Z", body.Results[0].Timestamp)

	do(t, s, http.MethodGet, "/v1/results", "")
	assert.Equal(t, defaultResultLimit, results.limit)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/results?limit=-1", "").Code)
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()

	svc := &fakeService{scanFn: func(context.Context, bool, wifi.AppID) (int, error) { return 1, nil }}
	s := newTestServer(t, svc, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/scans", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/v1/scans", `{}`).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/health", "").Code)
}
