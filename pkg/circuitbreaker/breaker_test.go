package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("embeddings", Config{FailureThreshold: 2, Cooldown: time.Minute, Now: clock.now})
	boom := errors.New("boom")

	assert.Equal(t, boom, b.Execute(func() error { return boom }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, boom, b.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("embeddings", Config{FailureThreshold: 1, Cooldown: time.Minute, Now: clock.now})
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	// failed trial reopens
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, b.State())

	clock.t = clock.t.Add(time.Minute)
	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("embeddings", Config{FailureThreshold: 2})
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerLogsTransitions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New("embeddings", Config{FailureThreshold: 1, Cooldown: time.Second, Now: clock.now, Logger: zap.New(core)})

	_ = b.Execute(func() error { return errors.New("boom") })
	clock.t = clock.t.Add(time.Second)
	_ = b.Execute(func() error { return nil })

	entries := logs.FilterMessage("Circuit breaker state changed").All()
	var moves []string
	for _, e := range entries {
		ctx := e.ContextMap()
		moves = append(moves, ctx["from"].(string)+"->"+ctx["to"].(string))
	}
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, moves)
}
