package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		handler   echo.HandlerFunc
		wantCode  int
		wantLevel string
	}{
		{
			name:      "ok logged at info",
			handler:   func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
			wantCode:  http.StatusOK,
			wantLevel: "level=INFO",
		},
		{
			name:      "bad gateway logged at warn",
			handler:   func(c echo.Context) error { return c.JSON(http.StatusBadGateway, map[string]any{"success": false}) },
			wantCode:  http.StatusBadGateway,
			wantLevel: "level=WARN",
		},
		{
			name:      "returned HTTPError resolved before logging",
			handler:   func(c echo.Context) error { return echo.NewHTTPError(http.StatusRequestEntityTooLarge) },
			wantCode:  http.StatusRequestEntityTooLarge,
			wantLevel: "status=413",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			e := echo.New()
			e.Use(RequestLogger(logger))
			e.POST("/api/*", tt.handler)

			req := httptest.NewRequest(http.MethodPost, "/api/proxy?path=goals/daily", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log = %q, want it to contain %q", out, tt.wantLevel)
			}
			if !strings.Contains(out, "proxy_path=goals/daily") {
				t.Errorf("log = %q, want proxy_path", out)
			}
		})
	}
}
