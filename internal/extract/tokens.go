package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/pkg/anthropic"
)

// TokenCounter measures the input size of a rendered prompt for a model.
type TokenCounter interface {
	Count(ctx context.Context, model string, p Prompt) (int64, error)
}

// CounterFunc adapts a function to TokenCounter.
type CounterFunc func(ctx context.Context, model string, p Prompt) (int64, error)

// Count calls f.
func (f CounterFunc) Count(ctx context.Context, model string, p Prompt) (int64, error) {
	return f(ctx, model, p)
}

// AnthropicCounter counts tokens with the count-tokens endpoint of the
// target model.
type AnthropicCounter struct {
	Client anthropic.Client
}

// Count returns the input token count of p as seen by model.
func (c AnthropicCounter) Count(ctx context.Context, model string, p Prompt) (int64, error) {
	n, err := c.Client.CountTokens(ctx, anthropic.MessageRequest{
		Model:    model,
		System:   systemBlocks(p.System),
		Messages: []anthropic.Message{{Role: "user", Content: p.User}},
	})
	if err != nil {
		return 0, eris.Wrap(err, "extract: count tokens")
	}
	return n, nil
}

func systemBlocks(text string) []anthropic.SystemBlock {
	if text == "" {
		return nil
	}
	return []anthropic.SystemBlock{{Text: text}}
}
