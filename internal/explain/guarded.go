package explain

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/resilience"
)

// Guarded wraps an Explainer with a per-attempt timeout, bounded retry, and
// an optional circuit breaker. Answers are trimmed; a blank answer is
// reported as ErrEmptyAnswer and not retried.
type Guarded struct {
	next    Explainer
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

type GuardOption func(*Guarded)

func WithBreaker(cb *resilience.CircuitBreaker) GuardOption {
	return func(g *Guarded) { g.breaker = cb }
}

func WithRetry(cfg resilience.RetryConfig) GuardOption {
	return func(g *Guarded) { g.retry = cfg }
}

func NewGuarded(next Explainer, timeout time.Duration, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
		},
		logger: slog.Default().With("component", "explainer"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.Retryable == nil {
		g.retry.Retryable = func(err error) bool {
			return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, ErrEmptyAnswer)
		}
	}
	return g
}

func (g *Guarded) Explain(ctx context.Context, question string, excerpts []Excerpt) (string, error) {
	var answer string
	attempt := func() error {
		a, err := resilience.Call(ctx, g.timeout, "explain", func(ctx context.Context) (string, error) {
			return g.next.Explain(ctx, question, excerpts)
		})
		if err != nil {
			return err
		}
		a = strings.TrimSpace(a)
		if a == "" {
			return ErrEmptyAnswer
		}
		answer = a
		return nil
	}
	guarded := attempt
	if g.breaker != nil {
		guarded = func() error { return g.breaker.Execute(attempt) }
	}
	start := time.Now()
	if err := resilience.Retry(ctx, "explain", g.retry, guarded); err != nil {
		g.logger.Warn("explanation failed", "error", err, "excerpts", len(excerpts))
		return "", err
	}
	g.logger.Debug("explanation generated", "latency", time.Since(start), "chars", len(answer))
	return answer, nil
}
