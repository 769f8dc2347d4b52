// Package api assembles the HTTP surface around the assistant.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/bank-assistant/backend/internal/api/handlers"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/middleware/ratelimit"
	"github.com/bank-assistant/backend/internal/middleware/security"
	"github.com/bank-assistant/backend/internal/middleware/validation"
	"github.com/bank-assistant/backend/pkg/config"
	"github.com/bank-assistant/backend/pkg/logger"
)

type Deps struct {
	Assistant handlers.Answerer
	// Sessions may be nil.
	Sessions handlers.Transcript
	Checks   map[string]handlers.Pinger
}

type Server struct {
	App     *fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	origins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.Server.AllowedOrigins, ", ")
	}

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + ratelimit.CustomerHeader,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Logger:            logger.GetLogger(),
	})

	validator := validation.NewValidator(validation.Config{
		Languages:       cfg.Retrieval.Languages,
		DefaultLanguage: cfg.Retrieval.DefaultLanguage,
		Logger:          logger.GetLogger(),
	})

	answerHandler := handlers.NewAnswerHandler(deps.Assistant, deps.Sessions)
	wsHandler := handlers.NewWebSocketHandler(deps.Assistant, validator, limiter)
	healthHandler := handlers.NewHealthHandler(deps.Checks)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Post("/answer",
		limiter.Middleware(),
		validator.Middleware(),
		answerHandler.HandleAnswer,
	)
	api.Get("/sessions/:id/messages", answerHandler.GetSessionMessages)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	return &Server{App: app, limiter: limiter}
}

func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

// Shutdown stops accepting connections and the limiter's janitor.
func (s *Server) Shutdown() error {
	s.limiter.Stop()
	return s.App.Shutdown()
}
