package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"miniapp-proxy/internal/model"
	"miniapp-proxy/internal/telegram"
)

// HeaderInitData carries Telegram.WebApp.initData from the Mini App.
const HeaderInitData = "X-Telegram-Init-Data"

// InitData returns an Echo middleware that rejects requests whose
// X-Telegram-Init-Data header does not verify against botToken.
func InitData(botToken string, maxAge time.Duration, logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "init_data")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderInitData)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, model.Failure("Telegram init data required"))
			}
			if _, err := telegram.Validate(raw, botToken, maxAge, time.Now()); err != nil {
				logger.Warn("init data rejected",
					"err", err,
					"remote_ip", c.RealIP(),
				)
				return c.JSON(http.StatusUnauthorized, model.Failure("invalid Telegram init data"))
			}
			return next(c)
		}
	}
}
