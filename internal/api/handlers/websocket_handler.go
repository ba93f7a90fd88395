package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/internal/auth"
	"github.com/instant-tutor/backend/internal/query"
	"github.com/instant-tutor/backend/pkg/logger"
)

const (
	wsUserKey     = "ws.user_id"
	streamTimeout = 2 * time.Minute
)

type streamMessage struct {
	Type     string         `json:"type"`
	Query    string         `json:"query"`
	CourseID string         `json:"course_id"`
	UserID   string         `json:"user_id"`
	Context  map[string]any `json:"context"`
}

type WebSocketHandler struct {
	engine Answerer
}

func NewWebSocketHandler(engine Answerer) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

// Upgrade admits websocket upgrades only and carries the authenticated user
// into the connection.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if p := auth.PrincipalFrom(c); p != nil {
		c.Locals(wsUserKey, p.UserID)
	}
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	principalID, _ := c.Locals(wsUserKey).(string)

	for {
		var msg streamMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}

		req := query.Request{
			Query:    msg.Query,
			CourseID: msg.CourseID,
			UserID:   msg.UserID,
			Context:  msg.Context,
		}
		if req.UserID == "" {
			req.UserID = principalID
		}

		if err := h.streamResponse(c, req); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			break
		}
	}
}

// streamResponse answers one query. Query failures are reported to the
// client; only write failures end the connection.
func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req query.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()

	if err := h.send(c, fiber.Map{"type": "status", "content": "Processing query..."}); err != nil {
		return err
	}

	resp, err := h.engine.Answer(ctx, req)
	if err != nil {
		return h.sendError(c, err)
	}

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.send(c, fiber.Map{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, fiber.Map{
		"type":                "complete",
		"query_id":            resp.QueryID,
		"sources":             resp.Sources,
		"confidence":          resp.Confidence,
		"response_time":       resp.ResponseTime,
		"suggested_followups": resp.SuggestedFollowups,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg fiber.Map) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) error {
	kind := apperr.KindOf(err)
	detail := "internal server error"
	if appErr, ok := apperr.As(err); ok {
		detail = appErr.Public()
	}
	if kind == apperr.KindInternal || kind == apperr.KindUpstream {
		logger.Error("Streamed query failed", zap.Error(err))
	}
	return h.send(c, fiber.Map{
		"type":   "error",
		"error":  kind,
		"detail": detail,
	})
}

// splitIntoWords splits on spaces and keeps line breaks as their own words.
func splitIntoWords(text string) []string {
	var words []string
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			words = append(words, "\n")
		}
		words = append(words, strings.Fields(line)...)
	}
	return words
}
