// Package api exposes the scan orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scand/internal/app/orchestration"
	"github.com/ahrav/scand/internal/config"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/otel"
)

// ScanService is the orchestrator surface the API drives.
type ScanService interface {
	Scan(ctx context.Context, extern bool, app wifi.AppID) (int, error)
	ScanWithParam(ctx context.Context, params wifi.ScanParams) (int, error)
	CancelScan(ctx context.Context, index int) error
	DisableScan(ctx context.Context, disable bool) error
	StartPnoScan(ctx context.Context) error
	StopPnoScan(ctx context.Context) error

	OnScreenStateChanged(ctx context.Context, on bool) error
	OnClientModeStatusChanged(ctx context.Context, state wifi.StaState) error
	OnAppRunningModeChanged(ctx context.Context, app wifi.AppID, foreground bool) error
	OnMovingFreezeStateChange(ctx context.Context, freeze bool) error
	OnCustomControlStateChanged(ctx context.Context, scene wifi.ScanScene, active bool) error
	OnControlStrategyChanged(ctx context.Context) error

	State(ctx context.Context) (orchestration.View, error)
}

var _ ScanService = (*orchestration.Orchestrator)(nil)

// PolicySink receives a reloaded scan control policy.
type PolicySink interface {
	SetScanControlInfo(info wifi.ScanControlInfo)
}

// ResultReader serves the most recent full-scan results.
type ResultReader interface {
	LatestScanResults(ctx context.Context, limit int) ([]wifi.ScanInfo, error)
}

// Config holds the dependencies of the API server. PolicyLoader and Results
// are optional; their endpoints answer 501 without them.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
	RateBurst       int

	Service      ScanService
	PolicyLoader config.Loader
	PolicySink   PolicySink
	Results      ResultReader
}

// Server is the HTTP control API.
type Server struct {
	cfg     Config
	router  *gin.Engine
	handler http.Handler
	limiter *common.KeyedRateLimiter

	metrics APIMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewServer builds the router and its middleware chain.
func NewServer(cfg Config, log *logger.Logger, metrics APIMetrics, tracer trace.Tracer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		router:  gin.New(),
		metrics: metrics,
		logger:  log.With("component", "api"),
		tracer:  tracer,
	}
	if cfg.RateLimit > 0 {
		s.limiter = common.NewKeyedRateLimiter(cfg.RateLimit, max(cfg.RateBurst, 1))
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.rateLimitMiddleware())
	s.routes()

	s.handler = otelhttp.NewHandler(s.router, "scand-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		s.metrics.IncRequestsTotal(ctx, c.Request.Method, route, status)
		s.metrics.ObserveRequestDuration(ctx, c.Request.Method, route, elapsed)
		s.logger.Info(ctx, "Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed.String(),
			"trace_id", otel.GetTraceID(ctx),
		)
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || c.FullPath() == healthPath || s.limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ErrorLog:     logger.NewStdLogger(s.logger, logger.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting API server", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(shutdownCtx, "Failed to shut down API server", "err", err)
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
