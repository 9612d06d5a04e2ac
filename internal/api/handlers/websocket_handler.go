package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/query"
	"github.com/ledgerlens/backend/pkg/apperrors"
	"github.com/ledgerlens/backend/pkg/logger"
)

type wsRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type wsMessage struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	Summary        string `json:"summary,omitempty"`
	RawData        string `json:"rawData,omitempty"`
	ProvenanceNote string `json:"provenanceNote,omitempty"`
	LatencyMS      int    `json:"latencyMs,omitempty"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
}

// WebSocketHandler answers queries over a socket. Each query produces one
// status frame and then exactly one complete or error frame.
type WebSocketHandler struct {
	engine  QueryProcessor
	timeout time.Duration
}

func NewWebSocketHandler(engine QueryProcessor, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebSocketHandler{
		engine:  engine,
		timeout: timeout,
	}
}

// Upgrade rejects plain HTTP requests on the socket route.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		if msg.Type != "query" {
			continue
		}

		if err := h.answer(c, msg.Content); err != nil {
			logger.Error("Failed to write WebSocket response", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) answer(c *websocket.Conn, text string) error {
	if err := c.WriteJSON(wsMessage{Type: "status", Content: "Processing query..."}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	resp, err := h.engine.Process(ctx, query.Request{
		Query:    text,
		ClientID: c.RemoteAddr().String(),
	})
	if err != nil {
		return c.WriteJSON(errorFrame(err))
	}

	return c.WriteJSON(wsMessage{
		Type:           "complete",
		RequestID:      resp.RequestID,
		Summary:        resp.Summary,
		RawData:        resp.RawData,
		ProvenanceNote: resp.ProvenanceNote,
		LatencyMS:      resp.LatencyMS,
	})
}

func errorFrame(err error) wsMessage {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return wsMessage{Type: "error", Code: string(appErr.Code), Error: appErr.Message}
	}
	return wsMessage{Type: "error", Error: "Failed to process query"}
}
