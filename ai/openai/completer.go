package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/recollect/ai"
	"github.com/tmc/langchaingo/llms"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	chat *chatClient
}

func newCompleter(model llms.Model, config *ai.Config) *Completer {
	return &Completer{
		chat: &chatClient{
			model:   model,
			timeout: config.RequestTimeout,
			logger:  slog.Default().With("component", "openai-completer"),
		},
	}
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	model, err := newChatModel(config)
	if err != nil {
		return nil, err
	}
	return newCompleter(model, config), nil
}

// Complete returns the model's plain-text reply at temperature 0.
func (c *Completer) Complete(ctx context.Context, system, prompt string) (ai.Completion, error) {
	text, tokens, err := c.chat.generate(ctx, system, prompt, false)
	if err != nil {
		c.chat.logger.Error("completion failed", "err", err)
		return ai.Completion{}, err
	}
	return ai.Completion{Text: text, TokensUsed: tokens}, nil
}
