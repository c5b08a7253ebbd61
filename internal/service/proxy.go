// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/pretty"

	"miniapp-proxy/internal/config"
	"miniapp-proxy/internal/metrics"
	"miniapp-proxy/internal/model"
)

// ErrUpstreamNotConfigured is returned when no upstream base URL is set.
// No outbound call is attempted in that case.
var ErrUpstreamNotConfigured = errors.New("upstream API URL is not configured")

// retrievalMethods are the safe methods; their bodies are never forwarded.
var retrievalMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Failure reasons reported by FailureReason.
const (
	ReasonConfig     = "config"
	ReasonTimeout    = "timeout"
	ReasonCanceled   = "canceled"
	ReasonDNS        = "dns"
	ReasonConnection = "connection"
	ReasonOther      = "other"
)

const userAgent = "miniapp-proxy/1.0"

// Sender performs a single upstream round trip.
type Sender interface {
	Send(ctx context.Context, method, url string, header http.Header, body []byte) (*model.UpstreamResponse, error)
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	sender      Sender
	baseURL     string
	contentType string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewProxyService creates a ProxyService. The upstream base URL and default
// content type are captured from cfg once; m may be nil.
func NewProxyService(s Sender, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	ct := cfg.Upstream.DefaultContentType
	if ct == "" {
		ct = echo.MIMEApplicationJSON
	}
	return &ProxyService{
		sender:      s,
		baseURL:     cfg.Upstream.BaseURL,
		contentType: ct,
		logger:      logger.With("component", "proxy_service"),
		metrics:     m,
	}
}

// Forward sends a ProxyRequest to the upstream habit API and classifies the reply.
//
// Any upstream status, including 4xx and 5xx, is a successful forward. An error
// means no upstream response exists: either ErrUpstreamNotConfigured or a
// wrapped transport error.
func (s *ProxyService) Forward(ctx context.Context, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if s.baseURL == "" {
		s.countFailure(ReasonConfig)
		return nil, ErrUpstreamNotConfigured
	}

	target := TargetURL(s.baseURL, pr.Path)
	header := s.requestHeader(pr)
	body := s.requestBody(pr.Method, header.Get(echo.HeaderContentType), pr.Body)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target,
		"body_bytes", len(body),
	)

	resp, err := s.sender.Send(ctx, pr.Method, target, header, body)
	if err != nil {
		s.countFailure(FailureReason(err))
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	payload := Classify(resp)
	if s.metrics != nil {
		s.metrics.Payloads.WithLabelValues(payload.Kind.String()).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Target:     target,
		Payload:    payload,
	}, nil
}

// TargetURL composes <base without one trailing slash>/api/<path without one leading slash>.
func TargetURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/api/" + strings.TrimPrefix(path, "/")
}

// IsRetrieval reports whether method is a safe method whose body is dropped.
func IsRetrieval(method string) bool {
	return retrievalMethods[strings.ToUpper(method)]
}

// Classify turns an upstream body into a structured JSON payload when it
// parses, and a raw text payload otherwise.
func Classify(resp *model.UpstreamResponse) model.Payload {
	if json.Valid(resp.Body) {
		return model.Structured(pretty.Ugly(resp.Body))
	}
	return model.Raw(string(resp.Body), resp.Header.Get(echo.HeaderContentType))
}

// FailureReason maps a forward error onto a bounded reason label.
func FailureReason(err error) string {
	if errors.Is(err, ErrUpstreamNotConfigured) {
		return ReasonConfig
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ReasonConnection
	}
	return ReasonOther
}

func (s *ProxyService) requestHeader(pr *model.ProxyRequest) http.Header {
	h := make(http.Header)
	ct := pr.ContentType
	if ct == "" {
		ct = s.contentType
	}
	h.Set(echo.HeaderContentType, ct)
	h.Set("User-Agent", userAgent)
	if pr.RequestID != "" {
		h.Set(echo.HeaderXRequestID, pr.RequestID)
	}
	return h
}

// requestBody returns the bytes to send upstream, or nil for no body.
// JSON bodies are re-serialized compactly; anything else is sent verbatim.
func (s *ProxyService) requestBody(method, contentType string, body []byte) []byte {
	if IsRetrieval(method) || len(body) == 0 {
		return nil
	}
	if isJSON(contentType) && json.Valid(body) {
		return pretty.Ugly(body)
	}
	return body
}

func (s *ProxyService) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.UpstreamFailures.WithLabelValues(reason).Inc()
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == echo.MIMEApplicationJSON || strings.HasSuffix(mt, "+json")
}
