// Package session keeps the current conversation transcript in Redis. Keys
// expire with the session; nothing outlives it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/pkg/logger"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	keyPrefix = "session:"
)

var ErrInvalidSessionID = errors.New("invalid session id")

type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CustomerID int64     `json:"customer_id"`
	RequestID  string    `json:"request_id,omitempty"`
	At         time.Time `json:"at"`
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func Connect(ctx context.Context, host string, port int, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))
	return client, nil
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// Append adds messages to the transcript and pushes its expiry forward.
func (s *Store) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key(sessionID), values...)
	pipe.Expire(ctx, key(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.SessionWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to append session messages: %w", err)
	}

	metrics.SessionWrites.WithLabelValues("ok").Inc()
	logger.Debug("Session updated", zap.String("session_id", sessionID), zap.Int("messages", len(msgs)))
	return nil
}

// Messages returns the transcript oldest first; an unknown or expired
// session yields an empty slice.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	raw, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
