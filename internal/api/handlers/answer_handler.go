package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/middleware/validation"
	"github.com/bank-assistant/backend/internal/session"
	"github.com/bank-assistant/backend/pkg/logger"
)

type Answerer interface {
	Answer(ctx context.Context, req assistant.Request) assistant.Response
}

// Transcript records the current session. It is never read back by the
// pipeline.
type Transcript interface {
	Append(ctx context.Context, sessionID string, msgs ...session.Message) error
	Messages(ctx context.Context, sessionID string) ([]session.Message, error)
}

type AnswerHandler struct {
	assistant Answerer
	sessions  Transcript
}

// NewAnswerHandler accepts a nil transcript when sessions are disabled.
func NewAnswerHandler(a Answerer, sessions Transcript) *AnswerHandler {
	return &AnswerHandler{assistant: a, sessions: sessions}
}

type answerResponse struct {
	ID                   string `json:"id"`
	SessionID            string `json:"session_id,omitempty"`
	Answer               string `json:"answer"`
	Intent               string `json:"intent"`
	PreComputed          string `json:"pre_computed,omitempty"`
	IncludedTransactions bool   `json:"included_transactions"`
	Outcome              string `json:"outcome"`
	LatencyMS            int64  `json:"latency_ms"`
}

func (h *AnswerHandler) HandleAnswer(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.RequestKey).(*validation.AnswerRequest)
	if !ok {
		req = &validation.AnswerRequest{}
		if err := c.BodyParser(req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Question == "" || req.CustomerID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "question and customer_id are required",
			})
		}
	}

	ctx := c.UserContext()
	resp := h.assistant.Answer(ctx, assistant.Request{
		Question:   req.Question,
		CustomerID: req.CustomerID,
		Language:   req.Language,
	})

	sessionID := h.record(ctx, req, resp)

	return c.JSON(answerResponse{
		ID:                   resp.ID,
		SessionID:            sessionID,
		Answer:               resp.Answer,
		Intent:               string(resp.Decision.Intent),
		PreComputed:          resp.PreComputed,
		IncludedTransactions: resp.IncludedTransactions,
		Outcome:              string(resp.Outcome),
		LatencyMS:            resp.LatencyMS,
	})
}

// record appends the exchange to the session transcript. A transcript
// failure never costs the customer their answer.
func (h *AnswerHandler) record(ctx context.Context, req *validation.AnswerRequest, resp assistant.Response) string {
	if h.sessions == nil {
		return ""
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now().UTC()
	err := h.sessions.Append(ctx, sessionID,
		session.Message{Role: session.RoleUser, Content: req.Question, CustomerID: req.CustomerID, RequestID: resp.ID, At: now},
		session.Message{Role: session.RoleAssistant, Content: resp.Answer, CustomerID: req.CustomerID, RequestID: resp.ID, At: now},
	)
	if err != nil {
		logger.Warn("Failed to record session transcript",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	return sessionID
}

func (h *AnswerHandler) GetSessionMessages(c *fiber.Ctx) error {
	if h.sessions == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sessions are disabled",
		})
	}

	id := c.Params("id")
	msgs, err := h.sessions.Messages(c.UserContext(), id)
	if err != nil {
		logger.Error("Failed to read session", zap.String("session_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read session",
		})
	}
	if msgs == nil {
		msgs = []session.Message{}
	}

	return c.JSON(fiber.Map{
		"session_id": id,
		"messages":   msgs,
	})
}
