package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/recollect/core"
	"github.com/tmc/langchaingo/llms"
)

// maxParseAttempts bounds how many times a malformed JSON reply is retried.
const maxParseAttempts = 3

// chatClient wraps a langchaingo model with the call conventions shared by
// the extractors and the completer.
type chatClient struct {
	model   llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

// generate sends a system and user message at temperature 0 and returns the
// first choice along with the tokens the server reported.
func (c *chatClient) generate(ctx context.Context, system, user string, jsonMode bool) (string, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	opts := []llms.CallOption{llms.WithTemperature(0.0)}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	response, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", 0, classifyError(err)
	}
	if len(response.Choices) < 1 {
		return "", 0, nil
	}

	choice := response.Choices[0]
	return choice.Content, tokensFromInfo(choice.GenerationInfo), nil
}

// generateJSON asks for a JSON reply and decodes it into out. Malformed
// replies are repaired where possible and retried up to maxParseAttempts.
// Token counts accumulate across attempts.
func (c *chatClient) generateJSON(ctx context.Context, system, user string, out any) (int, error) {
	var tokens int
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		text, used, err := c.generate(ctx, system, user, true)
		tokens += used
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return tokens, err
		}

		text = quoteBareKeys(stripCodeFence(text))
		if text == "" {
			lastErr = errors.New("empty reply")
			continue
		}
		if err := json.Unmarshal([]byte(text), out); err != nil {
			lastErr = err
			c.logger.Warn("error parsing model response",
				"attempt", attempt+1,
				"response", text,
				"err", err)
			continue
		}
		return tokens, nil
	}

	c.logger.Error("failed to parse model response after retries", "err", lastErr)
	return tokens, fmt.Errorf("%w: %v", core.ErrParse, lastErr)
}

// classifyError maps transport failures onto the core error kinds.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", core.ErrInferenceCall, core.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", core.ErrInferenceCall, err)
}

// tokensFromInfo reads the usage the OpenAI client stores in GenerationInfo.
func tokensFromInfo(info map[string]any) int {
	if info == nil {
		return 0
	}
	switch v := info["TotalTokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// quoteBareKeys restores the opening quote models sometimes drop from an
// object key, so `{name":` becomes `{"name":`.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		c := s[i]
		b.WriteByte(c)
		i++
		if c != '{' && c != ',' {
			continue
		}
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
			b.WriteByte(s[i])
			i++
		}
		j := i
		for j < len(s) && (isLetter(s[j]) || s[j] == '_' || s[j] == ' ') {
			j++
		}
		if j > i && isLetter(s[i]) && strings.HasPrefix(s[j:], `":`) {
			b.WriteByte('"')
			b.WriteString(strings.TrimRight(s[i:j], " "))
			i = j
		}
	}
	return b.String()
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
