package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/icco/cinemate/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings configures a provider circuit breaker.
type BreakerSettings struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32
	// Interval is the closed-state window after which counts reset.
	Interval time.Duration
	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration
	// MinRequests is the sample size needed before the circuit may trip.
	MinRequests uint32
	// FailureRatio trips the circuit once reached.
	FailureRatio float64
}

// DefaultBreakerSettings mirrors the production defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// Breaker wraps a Recommender with a circuit breaker. While the circuit is
// open calls fail immediately with a *ProviderError instead of reaching the
// provider, so callers go straight to their fallback. It never retries.
type Breaker struct {
	name   string
	next   Recommender
	cb     *gobreaker.CircuitBreaker[[]string]
	logger *slog.Logger
}

var _ Recommender = (*Breaker)(nil)

func NewBreaker(name string, next Recommender, s BreakerSettings, logger *slog.Logger) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logger.Warn("Opening provider circuit",
					slog.String("breaker", name),
					slog.Uint64("failures", uint64(counts.TotalFailures)),
					slog.Float64("failure_ratio", ratio))
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Provider circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: healthyOutcome,
	})

	return &Breaker{
		name:   name,
		next:   next,
		cb:     cb,
		logger: logger,
	}
}

// Recommend forwards to the wrapped provider unless the circuit is open.
func (b *Breaker) Recommend(ctx context.Context, title string) ([]string, error) {
	ids, err := b.cb.Execute(func() ([]string, error) {
		return b.next.Recommend(ctx, title)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.DebugContext(ctx, "Provider call rejected by circuit breaker",
				slog.String("breaker", b.name),
				slog.Any("error", err))
			return nil, &ProviderError{Provider: b.name, Err: err}
		}
		return nil, err
	}
	return ids, nil
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State reports the circuit state: "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// healthyOutcome reports whether a provider result leaves the circuit
// untouched. A caller that gave up says nothing about the provider, and a 4xx
// answer (an unknown title, say) is the provider working normally. Timeouts
// and throttling still count as failures.
func healthyOutcome(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch code := pe.StatusCode; {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return false
		case code >= 400 && code < 500:
			return true
		}
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
