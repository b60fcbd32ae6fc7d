// Package inference defines the boundary between the task harness and
// whatever produces answers to prompts.
package inference

import "context"

// Provider answers a prompt that has already passed the harm screen.
// Errors belong to the provider and are surfaced to callers unchanged.
type Provider interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

// Respond calls f(ctx, prompt).
func (f ProviderFunc) Respond(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var _ Provider = ProviderFunc(nil)
