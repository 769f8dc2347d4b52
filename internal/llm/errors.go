package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited marks an HTTP 429 from the completion endpoint.
	ErrRateLimited = errors.New("completion endpoint rate limited")
	// ErrTransport marks a failure below HTTP: DNS, connect, reset, timeout.
	ErrTransport = errors.New("completion endpoint unreachable")
	// ErrNoCandidates marks a well-formed response that carries no answer.
	ErrNoCandidates = errors.New("completion response has no candidates")
	// ErrMalformedResponse marks a body that cannot be decoded or lacks text.
	ErrMalformedResponse = errors.New("completion response malformed")
)

// StatusError is a non-retryable HTTP failure.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.Code, e.Body)
}

// Retryable reports whether a transport error may be retried with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport)
}
