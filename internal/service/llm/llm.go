// Package llm generates short chat messages from a prompt.
//
// Defines a Generator interface with OpenAI-compatible, Ollama, and no-op
// implementations. Consumers depend on the interface so the provider can be
// swapped by configuration.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned by the no-op generator.
	ErrNotConfigured = errors.New("llm: no provider configured")
	// ErrEmptyResponse means the provider answered but produced no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NoopGenerator always fails with ErrNotConfigured. Used when no API key or
// local model is configured, so proactive passes log and move on.
type NoopGenerator struct{}

// Generate returns ErrNotConfigured.
func (NoopGenerator) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
