package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-assistant/backend/pkg/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func embeddingServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// reversed so the client must honour the index field
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(j), 1}, Index: j}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Sleep = noSleep
	return cfg
}

func TestOpenAIEmbedBatchKeepsOrder(t *testing.T) {
	srv, _ := embeddingServer(t, 0, 0)
	e := NewOpenAIEmbedder("key", srv.URL+"/v1", "text-embedding-3-small", testRetry())

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, out)
}

func TestOpenAIEmbedRetriesRateLimit(t *testing.T) {
	srv, calls := embeddingServer(t, 2, http.StatusTooManyRequests)
	e := NewOpenAIEmbedder("key", srv.URL+"/v1", "text-embedding-3-small", testRetry())

	out, err := e.Embed(context.Background(), "savings account")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestOpenAIEmbedDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := embeddingServer(t, 5, http.StatusBadRequest)
	e := NewOpenAIEmbedder("key", srv.URL+"/v1", "text-embedding-3-small", testRetry())

	_, err := e.Embed(context.Background(), "savings account")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder("key", "http://127.0.0.1:1/v1", "m", testRetry())

	out, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
