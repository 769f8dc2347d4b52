// Package llm obtains a completion for a prompt and always returns text: on
// failure one of the fixed apology messages below is returned instead.
package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/pkg/logger"
	"github.com/bank-assistant/backend/pkg/retry"
)

const (
	MsgNoResponse     = "I'm sorry, I wasn't able to generate a response. Please try again."
	MsgTechnicalIssue = "I'm sorry, I'm facing a technical issue and can't respond right now."
	MsgOverloaded     = "I'm sorry, I'm currently overloaded. Please try again."
)

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeNoResponse     Outcome = "no_response"
	OutcomeTechnicalIssue Outcome = "technical_issue"
	OutcomeOverloaded     Outcome = "overloaded"
)

type Completion struct {
	Text     string
	Outcome  Outcome
	Attempts int
	Delays   []time.Duration
}

type Client struct {
	transport   Transport
	retryConfig retry.Config
}

// NewClient wraps transport with the backoff policy in cfg. Only rate limits
// and transport failures are retried; cfg.Retryable is overridden.
func NewClient(transport Transport, cfg retry.Config) *Client {
	cfg.Retryable = Retryable
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	return &Client{transport: transport, retryConfig: cfg}
}

// DefaultRetryConfig is three attempts starting at one second and doubling.
func DefaultRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxAttempts = 3
	cfg.Multiplier = 2
	return cfg
}

func (c *Client) Complete(ctx context.Context, prompt string) string {
	return c.CompleteDetailed(ctx, prompt).Text
}

func (c *Client) CompleteDetailed(ctx context.Context, prompt string) Completion {
	var result Completion

	cfg := c.retryConfig
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.DefaultSleep
	}
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		result.Delays = append(result.Delays, d)
		metrics.CompletionBackoffSeconds.Add(d.Seconds())
		return sleep(ctx, d)
	}

	text, err := retry.DoWithResult(ctx, cfg, func(attempt int) (string, error) {
		result.Attempts = attempt
		return c.transport.Generate(ctx, prompt)
	})

	result.Text, result.Outcome = interpret(text, err)
	metrics.CompletionAttempts.Observe(float64(result.Attempts))

	if err != nil {
		logger.Warn("Completion failed",
			zap.Error(err),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("attempts", result.Attempts),
		)
	}
	return result
}

func interpret(text string, err error) (string, Outcome) {
	switch {
	case err == nil:
		return text, OutcomeSuccess
	case errors.Is(err, retry.ErrExhausted):
		return MsgOverloaded, OutcomeOverloaded
	case errors.Is(err, ErrNoCandidates), errors.Is(err, ErrMalformedResponse):
		return MsgNoResponse, OutcomeNoResponse
	default:
		// non-429 HTTP status, cancelled context, or anything unexpected
		return MsgTechnicalIssue, OutcomeTechnicalIssue
	}
}
