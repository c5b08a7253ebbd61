package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"miniapp-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes. It stays OK with
// no upstream configured; that is a per-request failure, not a dead process.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             string(h.version),
		"upstream_url":        h.cfg.Upstream.BaseURL,
		"upstream_configured": h.cfg.Upstream.Configured(),
		"timeout_seconds":     h.cfg.Upstream.TimeoutSeconds,
		"init_data_required":  h.cfg.Telegram.RequireInitData,
		"exchanges_enabled":   h.cfg.Exchanges.Enabled,
	})
}
