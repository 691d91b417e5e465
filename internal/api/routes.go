package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/otel"
)

const (
	healthPath         = "/v1/health"
	defaultResultLimit = 100
)

func (s *Server) routes() {
	s.router.GET(healthPath, s.handleHealth)
	s.router.GET("/v1/readiness", s.handleReadiness)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/scans", s.handleScan)
		v1.POST("/scans/param", s.handleScanWithParam)
		v1.DELETE("/scans/:index", s.handleCancelScan)
		v1.PUT("/scans/disabled", s.handleDisableScan)

		v1.POST("/pno/start", s.handleStartPno)
		v1.POST("/pno/stop", s.handleStopPno)

		v1.GET("/state", s.handleState)
		v1.PUT("/state/screen", s.handleScreen)
		v1.PUT("/state/sta", s.handleSta)
		v1.PUT("/state/apps/:app", s.handleAppMode)
		v1.PUT("/state/freeze", s.handleFreeze)
		v1.PUT("/state/scenes/:scene", s.handleCustomScene)

		v1.POST("/policy/reload", s.handlePolicyReload)
		v1.GET("/results", s.handleResults)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadiness(c *gin.Context) {
	view, err := s.cfg.Service.State(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if !view.Machine.DriverLoaded {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "driver_not_loaded", "state": view.Machine.State})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "state": view.Machine.State})
}

type scanRequest struct {
	Extern bool       `json:"extern"`
	AppID  wifi.AppID `json:"app_id"`
}

type scanResponse struct {
	Index int `json:"index"`
}

func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	index, err := s.cfg.Service.Scan(c.Request.Context(), req.Extern, req.AppID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, scanResponse{Index: index})
}

func (s *Server) handleScanWithParam(c *gin.Context) {
	// Field validation happens in the orchestrator so every caller gets
	// ErrInvalidScanParams for the same input.
	var params wifi.ScanParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.badRequest(c, err)
		return
	}

	index, err := s.cfg.Service.ScanWithParam(c.Request.Context(), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, scanResponse{Index: index})
}

func (s *Server) handleCancelScan(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.badRequest(c, fmt.Errorf("invalid scan index %q", c.Param("index")))
		return
	}
	if err := s.cfg.Service.CancelScan(c.Request.Context(), index); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type disableRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

func (s *Server) handleDisableScan(c *gin.Context) {
	var req disableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.cfg.Service.DisableScan(c.Request.Context(), *req.Disabled); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStartPno(c *gin.Context) {
	if err := s.cfg.Service.StartPnoScan(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleStopPno(c *gin.Context) {
	if err := s.cfg.Service.StopPnoScan(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleState(c *gin.Context) {
	view, err := s.cfg.Service.State(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type toggleRequest struct {
	On *bool `json:"on" binding:"required"`
}

func (s *Server) bindToggle(c *gin.Context) (bool, bool) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return false, false
	}
	return *req.On, true
}

func (s *Server) handleScreen(c *gin.Context) {
	on, ok := s.bindToggle(c)
	if !ok {
		return
	}
	if err := s.cfg.Service.OnScreenStateChanged(c.Request.Context(), on); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type staRequest struct {
	State string `json:"state" binding:"required"`
}

func (s *Server) handleSta(c *gin.Context) {
	var req staRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	state := wifi.ParseStaState(req.State)
	if state == wifi.StaStateUnknown && req.State != wifi.StaStateUnknown.String() {
		s.badRequest(c, fmt.Errorf("unknown station state %q", req.State))
		return
	}
	if err := s.cfg.Service.OnClientModeStatusChanged(c.Request.Context(), state); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAppMode(c *gin.Context) {
	app, err := strconv.Atoi(c.Param("app"))
	if err != nil {
		s.badRequest(c, fmt.Errorf("invalid app id %q", c.Param("app")))
		return
	}
	foreground, ok := s.bindToggle(c)
	if !ok {
		return
	}
	if err := s.cfg.Service.OnAppRunningModeChanged(c.Request.Context(), wifi.AppID(app), foreground); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFreeze(c *gin.Context) {
	freeze, ok := s.bindToggle(c)
	if !ok {
		return
	}
	if err := s.cfg.Service.OnMovingFreezeStateChange(c.Request.Context(), freeze); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCustomScene(c *gin.Context) {
	scene, err := wifi.ParseScanScene(c.Param("scene"))
	if err != nil {
		s.badRequest(c, err)
		return
	}
	active, ok := s.bindToggle(c)
	if !ok {
		return
	}
	if err := s.cfg.Service.OnCustomControlStateChanged(c.Request.Context(), scene, active); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var errNotConfigured = errors.New("not configured")

func (s *Server) handlePolicyReload(c *gin.Context) {
	if s.cfg.PolicyLoader == nil || s.cfg.PolicySink == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{Error: "policy reload " + errNotConfigured.Error()})
		return
	}

	ctx, span := otel.AddSpan(c.Request.Context(), s.tracer, "api.policy_reload")
	defer span.End()

	info, err := s.cfg.PolicyLoader.Load(ctx)
	if err != nil {
		span.RecordError(err)
		s.fail(c, err)
		return
	}
	s.cfg.PolicySink.SetScanControlInfo(info)
	if err := s.cfg.Service.OnControlStrategyChanged(ctx); err != nil {
		span.RecordError(err)
		s.fail(c, err)
		return
	}
	span.SetAttributes(
		attribute.Int("forbid_rules", len(info.ForbidList)),
		attribute.Int("interval_rules", len(info.IntervalList)),
	)
	c.JSON(http.StatusOK, gin.H{
		"forbid_rules":   len(info.ForbidList),
		"interval_rules": len(info.IntervalList),
		"trust_scenes":   len(info.TrustSceneIDs),
	})
}

type resultResponse struct {
	BSSID        string `json:"bssid"`
	SSID         string `json:"ssid"`
	Frequency    int    `json:"frequency"`
	RSSI         int    `json:"rssi"`
	Capabilities string `json:"capabilities,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

func (s *Server) handleResults(c *gin.Context) {
	if s.cfg.Results == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{Error: "results " + errNotConfigured.Error()})
		return
	}

	limit := defaultResultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	results, err := s.cfg.Results.LatestScanResults(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]resultResponse, 0, len(results))
	for _, r := range results {
		rr := resultResponse{
			BSSID:        r.BSSID,
			SSID:         r.SSID,
			Frequency:    r.Frequency,
			RSSI:         r.RSSI,
			Capabilities: r.Capabilities,
		}
		if !r.Timestamp.IsZero() {
			rr.Timestamp = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, rr)
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
