// Package provider contains the primary recommendation providers: the ML
// similarity service, an OpenAI-backed alternative, and a circuit breaker
// that can wrap either. Every provider makes exactly one attempt per call
// and reports any failure as a *ProviderError.
package provider

import (
	"context"
	"fmt"
)

// Recommender returns catalog identifiers similar to a title, best first.
type Recommender interface {
	Recommend(ctx context.Context, title string) ([]string, error)
}

// ProviderError is any failure of a primary provider: transport errors,
// timeouts, non-2xx responses, malformed payloads and open circuits.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
