package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Router selects the best provider based on availability, falling back
// through providers in registration order.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the router.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	r.fallback = append(r.fallback, name)
}

// Complete routes a request to the first provider that succeeds.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.fallback {
		provider := r.providers[name]

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			continue
		}

		slog.Debug("AI request completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed")
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// HealthCheck reports healthy if any registered provider is reachable.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.fallback) == 0 {
		return fmt.Errorf("no AI providers registered")
	}

	var lastErr error
	for _, name := range r.fallback {
		if err := r.providers[name].HealthCheck(ctx); err != nil {
			lastErr = fmt.Errorf("provider %s: %w", name, err)
			continue
		}
		return nil
	}
	return lastErr
}
