package llm

import (
	"context"
	"errors"
	"time"

	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/model"
)

// RetryingClient wraps a Client with spec.md §5's retry rule ("one
// retry for a failed LLM call, with backoff starting at one second")
// and a circuit breaker, adapted from the teacher's circuit_breaker.go
// usage pattern in internal/extraction/extractor.go (breaker wraps the
// external call, not the whole pipeline).
type RetryingClient struct {
	inner   Client
	breaker *CircuitBreaker
	backoff time.Duration
	log     logging.Logger
}

// NewRetryingClient wraps inner with a single retry (backoff
// starting at 1s, per spec.md §5) and a circuit breaker that opens
// after 5 consecutive failures for 30s.
func NewRetryingClient(inner Client, log logging.Logger) *RetryingClient {
	if log == nil {
		log = logging.Nop()
	}
	return &RetryingClient{
		inner:   inner,
		breaker: NewCircuitBreaker(5, 30*time.Second),
		backoff: time.Second,
		log:     log,
	}
}

// Extract implements Client, retrying once on failure (including a
// malformed response) after backoff, through the circuit breaker.
func (r *RetryingClient) Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints Constraints) (map[string]*string, error) {
	var out map[string]*string

	attempt := func() error {
		var err error
		out, err = r.inner.Extract(ctx, doc, schema, constraints)
		return err
	}

	err := r.breaker.Call(attempt)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrOpen{}) {
		return nil, err
	}

	r.log.Warn("llm call failed, retrying", "error", err.Error())

	select {
	case <-time.After(r.backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	err = r.breaker.Call(attempt)
	if err != nil {
		return nil, err
	}
	return out, nil
}
