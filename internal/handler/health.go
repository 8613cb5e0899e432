package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dmart-io/ingestd/internal/response"
)

// Pinger checks that a store connection can be acquired.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness. Both are pull-based
// probes; no background monitoring loop.
type HealthHandler struct {
	Pinger  Pinger
	Timeout time.Duration
}

// Health reports process liveness (GET /api/v1/health). Always alive
// while the process runs.
func (h *HealthHandler) Health(c echo.Context) error {
	return response.OK(c, map[string]any{"alive": true}, "")
}

// Ready reports store connectivity within a bounded probe
// (GET /api/v1/ready). A failed probe reports not-ready, never crashes.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	if err := h.Pinger.Ping(ctx); err != nil {
		return response.Status(c, http.StatusServiceUnavailable, map[string]any{"ready": false}, "")
	}
	return response.OK(c, map[string]any{"ready": true}, "")
}
