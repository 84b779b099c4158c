package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// RetryConfig controls transport-level retries of a Client.
// These are separate from the corrective retries the resolver issues for malformed replies.
type RetryConfig struct {
	MaxAttempts int
	// Backoff is the first wait. Later waits grow exponentially with jitter.
	// Zero retries immediately.
	Backoff     time.Duration
	ShouldRetry func(error) bool
}

// WithRetry wraps a client with error-only retries.
// Canceled or expired contexts are never retried.
func WithRetry(next Client, cfg RetryConfig) Client {
	if next == nil {
		return nil
	}
	return &retryClient{next: next, cfg: cfg}
}

type retryClient struct {
	next Client
	cfg  RetryConfig
}

func (c *retryClient) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, Classify(err)
	}

	out, err := backoff.Retry(ctx, func() (Completion, error) {
		out, err := c.next.Complete(ctx, req)
		if err != nil && !c.shouldRetry(ctx, err) {
			return Completion{}, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(c.policy()),
		backoff.WithMaxTries(uint(max(c.cfg.MaxAttempts, 1))),
	)
	if err != nil {
		return Completion{}, Classify(err)
	}
	return out, nil
}

func (c *retryClient) policy() backoff.BackOff {
	if c.cfg.Backoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Backoff
	return b
}

func (c *retryClient) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if c.cfg.ShouldRetry != nil {
		return c.cfg.ShouldRetry(err)
	}
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case domain.ClientNetwork, domain.ClientRateLimit, domain.ClientTimeout:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
