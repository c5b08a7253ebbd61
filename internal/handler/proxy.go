package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"miniapp-proxy/internal/exchange"
	"miniapp-proxy/internal/model"
	"miniapp-proxy/internal/service"
)

// Forwarder is the proxy service as seen by the handler.
type Forwarder interface {
	Forward(ctx context.Context, pr *model.ProxyRequest) (*model.ProxyResponse, error)
}

// failureMessages are the caller-facing texts per failure reason. Upstream
// error detail is logged, never returned.
var failureMessages = map[string]string{
	service.ReasonConfig:     service.ErrUpstreamNotConfigured.Error(),
	service.ReasonTimeout:    "upstream request timed out",
	service.ReasonCanceled:   "client disconnected",
	service.ReasonDNS:        "upstream host unreachable",
	service.ReasonConnection: "upstream connection failed",
	service.ReasonOther:      "upstream connection failed",
}

// ProxyHandler forwards /api requests to the upstream habit API.
type ProxyHandler struct {
	service   Forwarder
	exchanges *exchange.Log
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc Forwarder, exchanges *exchange.Log, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:   svc,
		exchanges: exchanges,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request upstream and relays status and body back.
//
// The upstream path comes from the path query parameter when present
// (/api/proxy?path=goals/daily), otherwise from the route wildcard
// (/api/goals/daily).
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, model.Failure("could not read request body"))
	}

	pr := &model.ProxyRequest{
		Method:      req.Method,
		Path:        proxyPath(c),
		ContentType: req.Header.Get(echo.HeaderContentType),
		Body:        body,
		RequestID:   c.Response().Header().Get(echo.HeaderXRequestID),
	}

	start := time.Now()
	resp, err := h.service.Forward(req.Context(), pr)
	if err != nil {
		status, msg := h.mapError(pr, err)
		h.record(pr, start, status, nil, service.FailureReason(err))
		return c.JSON(status, model.Failure(msg))
	}

	h.record(pr, start, resp.StatusCode, resp, "")
	return writePayload(c, resp)
}

// mapError logs the failure once and picks the response for it.
// Every failure is a 502: the proxy itself is the gateway that failed.
func (h *ProxyHandler) mapError(pr *model.ProxyRequest, err error) (int, string) {
	reason := service.FailureReason(err)
	h.logger.Error("proxy error",
		"err", err,
		"reason", reason,
		"method", pr.Method,
		"path", pr.Path,
		"request_id", pr.RequestID,
	)
	msg, ok := failureMessages[reason]
	if !ok {
		msg = failureMessages[service.ReasonOther]
	}
	return http.StatusBadGateway, msg
}

func (h *ProxyHandler) record(pr *model.ProxyRequest, start time.Time, status int, resp *model.ProxyResponse, failure string) {
	if h.exchanges == nil {
		return
	}
	e := exchange.Entry{
		RequestID:  pr.RequestID,
		Method:     pr.Method,
		Path:       pr.Path,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
		Failure:    failure,
	}
	if resp != nil {
		e.Target = resp.Target
		e.Payload = resp.Payload.Kind.String()
		e.BodyBytes = len(resp.Payload.JSON) + len(resp.Payload.Text)
	}
	h.exchanges.Record(e)
}

func proxyPath(c echo.Context) string {
	if vals, ok := c.QueryParams()["path"]; ok && len(vals) > 0 {
		return vals[0]
	}
	return c.Param("*")
}

// writePayload relays a structured payload as JSON and a raw payload verbatim,
// keeping the upstream content type for raw bodies.
func writePayload(c echo.Context, resp *model.ProxyResponse) error {
	p := resp.Payload
	switch p.Kind {
	case model.PayloadStructured:
		return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, p.JSON)
	default:
		if p.Text == "" {
			return c.NoContent(resp.StatusCode)
		}
		ct := p.ContentType
		if ct == "" {
			ct = echo.MIMETextPlainCharsetUTF8
		}
		return c.Blob(resp.StatusCode, ct, []byte(p.Text))
	}
}
