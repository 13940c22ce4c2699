package xiaoban

import "context"

// Generator produces the text of a proactive message from a prompt.
// When provided via WithGenerator, replaces the configured OpenAI/Ollama/noop
// backend. An error or empty string means "no message this time"; the engine
// moves on to the next matching rule and records no cooldown.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
