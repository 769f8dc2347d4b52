package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/middleware/ratelimit"
	"github.com/bank-assistant/backend/internal/middleware/validation"
	"github.com/bank-assistant/backend/pkg/logger"
)

// CustomerLimiter is satisfied by *ratelimit.RateLimiter.
type CustomerLimiter interface {
	AllowCustomer(customerID int64, channel string) bool
}

type WebSocketHandler struct {
	assistant Answerer
	validator *validation.Validator
	limiter   CustomerLimiter
}

// NewWebSocketHandler applies the same request rules as the HTTP route. A
// nil validator uses the defaults; a nil limiter admits every question.
func NewWebSocketHandler(a Answerer, validator *validation.Validator, limiter CustomerLimiter) *WebSocketHandler {
	if validator == nil {
		validator = validation.NewValidator(validation.Config{})
	}
	return &WebSocketHandler{assistant: a, validator: validator, limiter: limiter}
}

type inboundMessage struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	CustomerID int64  `json:"customer_id"`
	Language   string `json:"language"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg inboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if err := h.respond(context.Background(), msg, c.WriteJSON); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			break
		}
	}
}

// respond streams one answer as word chunks followed by a completion frame.
// Unknown message types are ignored.
func (h *WebSocketHandler) respond(ctx context.Context, msg inboundMessage, send func(v interface{}) error) error {
	if msg.Type != "question" {
		return nil
	}
	req := validation.AnswerRequest{
		Question:   msg.Content,
		CustomerID: msg.CustomerID,
		Language:   msg.Language,
	}
	if err := h.validator.Check(&req); err != nil {
		return send(map[string]interface{}{"type": "error", "error": err.Error()})
	}
	if h.limiter != nil && !h.limiter.AllowCustomer(req.CustomerID, "websocket") {
		return send(map[string]interface{}{"type": "error", "error": ratelimit.ErrorMessage})
	}

	if err := send(map[string]interface{}{"type": "status", "content": "Processing question..."}); err != nil {
		return err
	}

	resp := h.assistant.Answer(ctx, assistant.Request{
		Question:   req.Question,
		CustomerID: req.CustomerID,
		Language:   req.Language,
	})

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := send(map[string]interface{}{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return send(map[string]interface{}{
		"type":                  "complete",
		"message_id":            resp.ID,
		"outcome":               string(resp.Outcome),
		"pre_computed":          resp.PreComputed,
		"included_transactions": resp.IncludedTransactions,
		"latency_ms":            resp.LatencyMS,
	})
}

func splitIntoWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}
