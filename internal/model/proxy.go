// Package model defines shared types for the proxy.
package model

import (
	"encoding/json"
	"net/http"
)

// ProxyRequest represents a Mini App request to be forwarded upstream.
type ProxyRequest struct {
	Method string
	// Path is relative to the upstream /api/ prefix; a single leading slash is tolerated.
	Path        string
	ContentType string
	Body        []byte
	RequestID   string
}

// UpstreamResponse is the fully read upstream reply.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// PayloadKind tells how an upstream body is relayed to the caller.
type PayloadKind int

const (
	// PayloadStructured is a body that parsed as JSON.
	PayloadStructured PayloadKind = iota + 1
	// PayloadRaw is a body passed through as text.
	PayloadRaw
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadStructured:
		return "structured"
	case PayloadRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Payload is either a JSON value or raw text, never both.
type Payload struct {
	Kind PayloadKind
	// JSON holds the compacted value when Kind is PayloadStructured.
	JSON json.RawMessage
	// Text holds the verbatim body when Kind is PayloadRaw.
	Text string
	// ContentType is the upstream content type, kept for raw bodies.
	ContentType string
}

// Structured builds a JSON payload.
func Structured(v json.RawMessage) Payload {
	return Payload{Kind: PayloadStructured, JSON: v}
}

// Raw builds a text payload.
func Raw(text, contentType string) Payload {
	return Payload{Kind: PayloadRaw, Text: text, ContentType: contentType}
}

// ProxyResponse is what the proxy relays back to the caller.
type ProxyResponse struct {
	StatusCode int
	Target     string
	Payload    Payload
}

// ErrorBody is the JSON envelope for proxy-generated failures.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Failure returns an ErrorBody with Success=false.
func Failure(msg string) ErrorBody {
	return ErrorBody{Success: false, Error: msg}
}
