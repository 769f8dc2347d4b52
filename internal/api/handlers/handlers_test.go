package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/llm"
	"github.com/bank-assistant/backend/internal/middleware/validation"
	"github.com/bank-assistant/backend/internal/router"
	"github.com/bank-assistant/backend/internal/session"
)

type fakeAnswerer struct {
	got    []assistant.Request
	answer string
}

func (f *fakeAnswerer) Answer(_ context.Context, req assistant.Request) assistant.Response {
	f.got = append(f.got, req)
	return assistant.Response{
		ID:                   "req-1",
		Answer:               f.answer,
		Decision:             router.Decision{Intent: router.IntentCalculation},
		PreComputed:          "The total amount spent on 'Grocery' this month is €45.50.",
		IncludedTransactions: false,
		Outcome:              llm.OutcomeSuccess,
	}
}

func newSessions(t *testing.T) *session.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewStore(client, time.Minute)
}

func newApp(a Answerer, sessions Transcript) *fiber.App {
	h := NewAnswerHandler(a, sessions)
	app := fiber.New()
	app.Post("/answer", validation.Middleware(validation.Config{}), h.HandleAnswer)
	app.Get("/sessions/:id/messages", h.GetSessionMessages)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out interface{}) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandleAnswerRecordsSession(t *testing.T) {
	a := &fakeAnswerer{answer: "You spent €45.50 on groceries."}
	app := newApp(a, newSessions(t))

	var resp answerResponse
	code := doJSON(t, app, "POST", "/answer", `{"question":"How much did I spend on groceries?","customer_id":1001,"language":"FR","session_id":"s1"}`, &resp)
	require.Equal(t, fiber.StatusOK, code)

	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "You spent €45.50 on groceries.", resp.Answer)
	assert.Equal(t, "calculation", resp.Intent)
	assert.Equal(t, "success", resp.Outcome)
	require.Len(t, a.got, 1)
	assert.Equal(t, "fr", a.got[0].Language)
	assert.Equal(t, int64(1001), a.got[0].CustomerID)

	var transcript struct {
		SessionID string            `json:"session_id"`
		Messages  []session.Message `json:"messages"`
	}
	code = doJSON(t, app, "GET", "/sessions/s1/messages", "", &transcript)
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, session.RoleUser, transcript.Messages[0].Role)
	assert.Equal(t, "You spent €45.50 on groceries.", transcript.Messages[1].Content)
}

func TestHandleAnswerAssignsSessionID(t *testing.T) {
	app := newApp(&fakeAnswerer{answer: "ok"}, newSessions(t))

	var resp answerResponse
	require.Equal(t, fiber.StatusOK, doJSON(t, app, "POST", "/answer", `{"question":"Fees?","customer_id":1}`, &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleAnswerWithoutSessions(t *testing.T) {
	app := newApp(&fakeAnswerer{answer: "ok"}, nil)

	var resp answerResponse
	require.Equal(t, fiber.StatusOK, doJSON(t, app, "POST", "/answer", `{"question":"Fees?","customer_id":1}`, &resp))
	assert.Empty(t, resp.SessionID)

	assert.Equal(t, fiber.StatusNotFound, doJSON(t, app, "GET", "/sessions/x/messages", "", nil))
}

func TestHandleAnswerRejectsInvalid(t *testing.T) {
	a := &fakeAnswerer{}
	app := newApp(a, nil)

	assert.Equal(t, fiber.StatusBadRequest, doJSON(t, app, "POST", "/answer", `{"question":""}`, nil))
	assert.Empty(t, a.got)
}

func TestWebSocketRespondStreamsWords(t *testing.T) {
	h := NewWebSocketHandler(&fakeAnswerer{answer: "You spent\n€45.50"}, nil, nil)
	var frames []map[string]interface{}
	send := func(v interface{}) error {
		frames = append(frames, v.(map[string]interface{}))
		return nil
	}

	err := h.respond(context.Background(), inboundMessage{Type: "question", Content: "groceries?", CustomerID: 1001}, send)
	require.NoError(t, err)

	var chunks []string
	for _, f := range frames {
		if f["type"] == "chunk" {
			chunks = append(chunks, f["content"].(string))
		}
	}
	assert.Equal(t, []string{"You ", "spent ", "\n", "€45.50"}, chunks)
	assert.Equal(t, "status", frames[0]["type"])
	last := frames[len(frames)-1]
	assert.Equal(t, "complete", last["type"])
	assert.Equal(t, "req-1", last["message_id"])
}

func TestWebSocketRespondValidation(t *testing.T) {
	a := &fakeAnswerer{}
	h := NewWebSocketHandler(a, nil, nil)
	var frames []map[string]interface{}
	send := func(v interface{}) error {
		frames = append(frames, v.(map[string]interface{}))
		return nil
	}

	require.NoError(t, h.respond(context.Background(), inboundMessage{Type: "ping"}, send))
	assert.Empty(t, frames)

	require.NoError(t, h.respond(context.Background(), inboundMessage{Type: "question", Content: "hi"}, send))
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Empty(t, a.got)
}

type frameRecorder struct {
	frames []map[string]interface{}
}

func (r *frameRecorder) send(v interface{}) error {
	r.frames = append(r.frames, v.(map[string]interface{}))
	return nil
}

func TestWebSocketRespondRejectsUnsupportedLanguage(t *testing.T) {
	a := &fakeAnswerer{answer: "ok"}
	h := NewWebSocketHandler(a, validation.NewValidator(validation.Config{Languages: []string{"en", "fr", "nl"}}), nil)
	rec := &frameRecorder{}

	msg := inboundMessage{Type: "question", Content: "Kosten?", CustomerID: 1001, Language: "de"}
	require.NoError(t, h.respond(context.Background(), msg, rec.send))
	require.Len(t, rec.frames, 1)
	assert.Equal(t, "error", rec.frames[0]["type"])
	assert.Equal(t, "Unsupported language", rec.frames[0]["error"])
	assert.Empty(t, a.got)

	msg.Language = " NL "
	require.NoError(t, h.respond(context.Background(), msg, rec.send))
	require.Len(t, a.got, 1)
	assert.Equal(t, "nl", a.got[0].Language)
}

type quotaLimiter struct {
	left map[int64]int
}

func (q *quotaLimiter) AllowCustomer(customerID int64, _ string) bool {
	if q.left[customerID] <= 0 {
		return false
	}
	q.left[customerID]--
	return true
}

func TestWebSocketRespondRateLimitsCustomer(t *testing.T) {
	a := &fakeAnswerer{answer: "ok"}
	h := NewWebSocketHandler(a, nil, &quotaLimiter{left: map[int64]int{1001: 1}})
	rec := &frameRecorder{}

	msg := inboundMessage{Type: "question", Content: "Fees?", CustomerID: 1001}
	require.NoError(t, h.respond(context.Background(), msg, rec.send))
	require.NoError(t, h.respond(context.Background(), msg, rec.send))

	require.Len(t, a.got, 1)
	last := rec.frames[len(rec.frames)-1]
	assert.Equal(t, "error", last["type"])
	assert.Contains(t, last["error"], "Rate limit exceeded")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadiness(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	app := fiber.New()
	app.Get("/ready", NewHealthHandler(map[string]Pinger{"sqlite": ok}).Ready)
	app.Get("/ready-down", NewHealthHandler(map[string]Pinger{"sqlite": ok, "redis": down}).Ready)
	app.Get("/health", NewHealthHandler(nil).Health)

	var body map[string]interface{}
	assert.Equal(t, fiber.StatusOK, doJSON(t, app, "GET", "/ready", "", &body))
	assert.Equal(t, "ready", body["status"])

	body = nil
	assert.Equal(t, fiber.StatusServiceUnavailable, doJSON(t, app, "GET", "/ready-down", "", &body))
	assert.Equal(t, "not_ready", body["status"])

	assert.Equal(t, fiber.StatusOK, doJSON(t, app, "GET", "/health", "", nil))
}
