// Package assistant runs one question through routing, retrieval, prompt
// composition and completion, in that order.
package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/calc"
	"github.com/bank-assistant/backend/internal/llm"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/prompt"
	"github.com/bank-assistant/backend/internal/router"
	"github.com/bank-assistant/backend/pkg/logger"
)

const DefaultLanguage = "en"

type QueryRouter interface {
	Route(ctx context.Context, question string, customerID int64) (router.Decision, calc.Result)
}

type PublicRetriever interface {
	RetrievePublic(ctx context.Context, question, language string, topN int) string
}

type PersonalRetriever interface {
	RetrievePersonal(ctx context.Context, customerID int64, includeTransactions bool) string
}

type Completer interface {
	CompleteDetailed(ctx context.Context, prompt string) llm.Completion
}

// Deps is the explicitly constructed set of collaborators. Instances share
// nothing else, so several assistants can run side by side.
type Deps struct {
	Router    QueryRouter
	Public    PublicRetriever
	Personal  PersonalRetriever
	Completer Completer
	TopN      int
}

type Request struct {
	Question   string
	CustomerID int64
	Language   string
}

type Response struct {
	ID                   string
	Answer               string
	Decision             router.Decision
	PreComputed          string
	IncludedTransactions bool
	Outcome              llm.Outcome
	Attempts             int
	LatencyMS            int64
}

type Assistant struct {
	deps Deps
}

func New(deps Deps) (*Assistant, error) {
	switch {
	case deps.Router == nil:
		return nil, errors.New("assistant: router is required")
	case deps.Public == nil:
		return nil, errors.New("assistant: public retriever is required")
	case deps.Personal == nil:
		return nil, errors.New("assistant: personal retriever is required")
	case deps.Completer == nil:
		return nil, errors.New("assistant: completer is required")
	}
	return &Assistant{deps: deps}, nil
}

// Answer always produces a non-empty answer; every failure along the way has
// already been turned into text by the component that met it.
func (a *Assistant) Answer(ctx context.Context, req Request) Response {
	start := time.Now()
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	resp := Response{ID: uuid.New().String()}
	log := logger.ForRequest(resp.ID, req.CustomerID, zap.String("language", language))

	decision, result := a.deps.Router.Route(ctx, req.Question, req.CustomerID)
	resp.Decision = decision
	resp.PreComputed = prompt.FormatResult(result)

	public := a.deps.Public.RetrievePublic(ctx, req.Question, language, a.deps.TopN)

	// A pre-computed figure replaces the raw list so the model cannot
	// recount or contradict it.
	resp.IncludedTransactions = resp.PreComputed == ""
	personal := a.deps.Personal.RetrievePersonal(ctx, req.CustomerID, resp.IncludedTransactions)

	finalPrompt := prompt.Compose(prompt.Bundle{
		PublicContext:   public,
		PersonalContext: personal,
		PreComputed:     result,
		Question:        req.Question,
	})

	completion := a.deps.Completer.CompleteDetailed(ctx, finalPrompt)
	resp.Answer = completion.Text
	resp.Outcome = completion.Outcome
	resp.Attempts = completion.Attempts
	resp.LatencyMS = time.Since(start).Milliseconds()

	metrics.AnswerDuration.WithLabelValues(string(decision.Intent)).Observe(time.Since(start).Seconds())
	metrics.AnswersTotal.WithLabelValues(string(completion.Outcome)).Inc()

	log.Info("Answer produced",
		zap.String("intent", string(decision.Intent)),
		zap.String("outcome", string(completion.Outcome)),
		zap.Int("attempts", completion.Attempts),
		zap.Bool("included_transactions", resp.IncludedTransactions),
		zap.Int64("latency_ms", resp.LatencyMS),
	)

	return resp
}
