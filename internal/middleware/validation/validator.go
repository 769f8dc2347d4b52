package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestKey is the fiber.Locals key holding the validated *AnswerRequest.
const RequestKey = "answer_request"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type AnswerRequest struct {
	Question   string `json:"question"`
	CustomerID int64  `json:"customer_id"`
	Language   string `json:"language"`
	SessionID  string `json:"session_id,omitempty"`
}

type Config struct {
	MaxQuestionLength int
	Languages         []string
	DefaultLanguage   string
	Logger            *zap.Logger
}

// Validator applies the answer request rules shared by the HTTP route and
// the websocket channel.
type Validator struct {
	cfg     Config
	allowed map[string]bool
}

func NewValidator(cfg Config) *Validator {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 2000
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en", "fr", "nl"}
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.Languages))
	for _, l := range cfg.Languages {
		allowed[strings.ToLower(l)] = true
	}
	return &Validator{cfg: cfg, allowed: allowed}
}

// Check normalises req in place. The returned error text is safe to show
// to the client. An empty language falls back to the default; a language
// outside the configured set is rejected.
func (v *Validator) Check(req *AnswerRequest) error {
	req.Question = sanitizeString(req.Question)
	if req.Question == "" {
		return errors.New("Question is required")
	}
	if len([]rune(req.Question)) > v.cfg.MaxQuestionLength {
		return errors.New("Question exceeds maximum length")
	}
	if xssPattern.MatchString(req.Question) {
		v.cfg.Logger.Warn("Potential XSS attempt", zap.Int64("customer_id", req.CustomerID))
		return errors.New("Invalid question content")
	}
	if req.CustomerID <= 0 {
		return errors.New("customer_id must be a positive integer")
	}

	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.Language == "" {
		req.Language = v.cfg.DefaultLanguage
	}
	if !v.allowed[req.Language] {
		return errors.New("Unsupported language")
	}
	return nil
}

// Middleware parses POST bodies into an AnswerRequest and stores it under
// RequestKey once it passes Check.
func (v *Validator) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		if ct := c.Get(fiber.HeaderContentType); ct != "" && !strings.Contains(ct, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req AnswerRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if err := v.Check(&req); err != nil {
			v.cfg.Logger.Debug("Rejected answer request", zap.String("ip", c.IP()), zap.Error(err))
			return badRequest(c, err.Error())
		}

		c.Locals(RequestKey, &req)
		return c.Next()
	}
}

func Middleware(cfg Config) fiber.Handler {
	return NewValidator(cfg).Middleware()
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
