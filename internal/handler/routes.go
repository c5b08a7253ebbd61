package handler

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"miniapp-proxy/internal/config"
	"miniapp-proxy/internal/metrics"
	"miniapp-proxy/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	proxy *ProxyHandler,
	health *HealthHandler,
	exchanges *ExchangeHandler,
	m *metrics.Metrics,
	logger *slog.Logger,
) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	api := e.Group("/api")
	if cfg.Telegram.RequireInitData {
		maxAge := time.Duration(cfg.Telegram.MaxAgeSeconds) * time.Second
		api.Use(middleware.InitData(cfg.Telegram.BotToken, maxAge, logger))
	}
	// "/api" alone serves the ?path= form.
	api.Any("", proxy.Handle)
	api.Any("/*", proxy.Handle)

	if cfg.Exchanges.Enabled {
		admin := e.Group("/proxy/exchanges", middleware.AdminToken(cfg.Exchanges.AdminToken))
		admin.GET("", exchanges.List)
		admin.GET("/stream", exchanges.Stream)
		admin.GET("/:id", exchanges.Get)
	}

	if cfg.Metrics.Enabled {
		h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
		e.GET(cfg.Metrics.Path, echo.WrapHandler(h))
	}
}
