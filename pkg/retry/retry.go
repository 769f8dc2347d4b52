// Package retry runs an operation under a bounded exponential backoff policy.
//
// The policy is an explicit state machine (Machine) that is independent of
// whatever the operation does, so callers can drive it with scripted results
// and an injected sleeper in tests. Every retryable failure is followed by
// its backoff delay, including the failure on the final attempt; with the
// defaults this yields waits of 1s, 2s and 4s before giving up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted is returned (wrapping the last failure) once every attempt
// ended in a retryable failure.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable decides whether a failure may be retried. Nil treats every
	// failure as retryable.
	Retryable func(error) bool
	Sleep     SleepFunc
	Logger    *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Logger:       zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Sleep == nil {
		c.Sleep = DefaultSleep
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Step is the machine's verdict after one attempt.
type Step struct {
	// Wait is the backoff to observe before continuing; zero when none.
	Wait time.Duration
	// Done reports that no further attempt will be made.
	Done bool
	// Err is the terminal error; nil on success.
	Err error
}

// Machine tracks attempt count, current delay and the terminal outcome.
type Machine struct {
	cfg     Config
	attempt int
	delay   time.Duration
	done    bool
	err     error
}

func NewMachine(cfg Config) *Machine {
	cfg = cfg.withDefaults()
	return &Machine{cfg: cfg, delay: cfg.InitialDelay}
}

// Attempt returns the number of attempts recorded so far.
func (m *Machine) Attempt() int { return m.attempt }

// Delay returns the backoff that the next retryable failure will incur.
func (m *Machine) Delay() time.Duration { return m.delay }

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool { return m.done }

// Err returns the terminal error, if any.
func (m *Machine) Err() error { return m.err }

// Record feeds the result of one attempt into the machine.
func (m *Machine) Record(err error) Step {
	if m.done {
		return Step{Done: true, Err: m.err}
	}
	m.attempt++

	if err == nil {
		m.done = true
		return Step{Done: true}
	}

	if m.cfg.Retryable != nil && !m.cfg.Retryable(err) {
		m.done = true
		m.err = err
		return Step{Done: true, Err: err}
	}

	wait := addJitter(m.delay, m.cfg.JitterFraction)
	m.delay = time.Duration(math.Min(float64(m.cfg.MaxDelay), float64(m.delay)*m.cfg.Multiplier))

	if m.attempt >= m.cfg.MaxAttempts {
		m.done = true
		m.err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, m.attempt, err)
		return Step{Wait: wait, Done: true, Err: m.err}
	}
	return Step{Wait: wait}
}

// Do runs operation until it succeeds, fails permanently, or the attempts
// are exhausted. The attempt number passed to operation starts at 1.
func Do(ctx context.Context, cfg Config, operation func(attempt int) error) error {
	cfg = cfg.withDefaults()
	m := NewMachine(cfg)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt := m.Attempt() + 1
		err := operation(attempt)
		step := m.Record(err)

		switch {
		case err == nil:
			if attempt > 1 {
				cfg.Logger.Info("Operation succeeded after retry", zap.Int("attempt", attempt))
			}
		case step.Done && !errors.Is(step.Err, ErrExhausted):
			cfg.Logger.Debug("Error not retryable", zap.Error(err), zap.Int("attempt", attempt))
		default:
			cfg.Logger.Warn("Operation failed, backing off",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Duration("delay", step.Wait),
			)
		}

		if step.Wait > 0 {
			if err := cfg.Sleep(ctx, step.Wait); err != nil {
				return err
			}
		}
		if step.Done {
			return step.Err
		}
	}
}

func DoWithResult[T any](ctx context.Context, cfg Config, operation func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(attempt int) error {
		var err error
		result, err = operation(attempt)
		return err
	})
	return result, err
}

// DefaultSleep waits on a timer, returning early if ctx is done.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}

	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	if rand.Intn(2) == 0 {
		return duration - jitter
	}
	return duration + jitter
}
