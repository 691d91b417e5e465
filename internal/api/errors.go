package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/scand/internal/domain/wifi"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// statusFor maps domain errors to HTTP status codes. Policy denials are a
// normal outcome and answer 429 with the deny reason.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wifi.ErrScanDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, wifi.ErrInvalidScanParams), errors.Is(err, wifi.ErrInvalidControlInfo):
		return http.StatusBadRequest
	case errors.Is(err, wifi.ErrScanRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, wifi.ErrNoSavedNetworks), errors.Is(err, wifi.ErrScanNotCancellable):
		return http.StatusConflict
	case errors.Is(err, wifi.ErrDriverNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if reason, ok := wifi.IsDenied(err); ok {
		resp.Reason = string(reason)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "Request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}
