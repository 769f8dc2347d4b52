package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/pkg/logger"
)

// OpenAITransport sends the prompt as a single user message to a chat
// completion endpoint. Any OpenAI-compatible server works.
type OpenAITransport struct {
	hc          *http.Client
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAITransport(apiKey, baseURL, model string, temperature float32, maxTokens int, timeout time.Duration) *OpenAITransport {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{Timeout: timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()}
	cfg.HTTPClient = hc

	return &OpenAITransport{
		hc:          hc,
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (o *OpenAITransport) Close() {
	o.hc.CloseIdleConnections()
}

func (o *OpenAITransport) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}

	logger.Debug("LLM completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return "", ErrNoCandidates
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case code >= 200 && code < 300:
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	case code != 0:
		return &StatusError{Code: code, Body: err.Error()}
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
