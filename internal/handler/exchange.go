package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"miniapp-proxy/internal/exchange"
)

const streamWriteWait = 10 * time.Second

// ExchangeHandler exposes the recorded proxy exchanges to operators.
type ExchangeHandler struct {
	log      *exchange.Log
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewExchangeHandler creates an ExchangeHandler.
func NewExchangeHandler(log *exchange.Log, logger *slog.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		log:    log,
		logger: logger.With("component", "exchange_handler"),
		// Access is gated by the admin token, not by origin.
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// List returns every buffered exchange, oldest first.
func (h *ExchangeHandler) List(c echo.Context) error {
	entries := h.log.All()
	return c.JSON(http.StatusOK, map[string]any{
		"count":     len(entries),
		"exchanges": entries,
	})
}

// Get returns a single exchange by ID.
func (h *ExchangeHandler) Get(c echo.Context) error {
	e, ok := h.log.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "exchange not found"})
	}
	return c.JSON(http.StatusOK, e)
}

// Stream upgrades to a WebSocket and pushes each new exchange as a JSON
// message until the client goes away.
func (h *ExchangeHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()

	entries, cancel := h.log.Subscribe()
	defer cancel()

	// The reader only exists to notice the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("exchange stream opened", "remote_ip", c.RealIP())
	for {
		select {
		case <-closed:
			h.logger.Debug("exchange stream closed", "remote_ip", c.RealIP())
			return nil
		case e, ok := <-entries:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("exchange stream write failed", "err", err)
				return nil
			}
		}
	}
}
