package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"miniapp-proxy/internal/telegram"
)

func TestInitData(t *testing.T) {
	const token = "123456:ABC-DEF"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fields := url.Values{"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)}, "user": {`{"id":7}`}}
	fields.Set("hash", telegram.Sign(fields, token))
	valid := fields.Encode()

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"forged", "auth_date=1&hash=deadbeef", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(InitData(token, time.Hour, logger))
			e.GET("/api/*", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

			req := httptest.NewRequest(http.MethodGet, "/api/goals/daily", http.NoBody)
			if tt.header != "" {
				req.Header.Set(HeaderInitData, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized {
				var body map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if body["success"] != false || body["error"] == "" {
					t.Errorf("body = %v, want success=false with error", body)
				}
			}
		})
	}
}

func TestAdminToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		query    string
		wantCode int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"header ok", "s3cret", "s3cret", "", http.StatusOK},
		{"query ok", "s3cret", "", "s3cret", http.StatusOK},
		{"missing", "s3cret", "", "", http.StatusForbidden},
		{"wrong", "s3cret", "nope", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/proxy/exchanges", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, AdminToken(tt.token))

			target := "/proxy/exchanges"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("X-Admin-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}
