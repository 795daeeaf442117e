package openai

import (
	"context"
	"log/slog"
	"testing"

	"github.com/poiesic/recollect/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func newTestChat(responses ...string) *chatClient {
	return &chatClient{model: fake.NewFakeLLM(responses), logger: slog.Default()}
}

func TestGenerateJSON(t *testing.T) {
	type reply struct {
		Entities []struct {
			Name string `json:"name"`
		} `json:"entities"`
	}

	t.Run("strips code fences", func(t *testing.T) {
		chat := newTestChat("```json\n{\"entities\":[{\"name\":\"John\"}]}\n```")
		var out reply
		_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
		require.NoError(t, err)
		require.Len(t, out.Entities, 1)
		assert.Equal(t, "John", out.Entities[0].Name)
	})

	t.Run("repairs missing key quote", func(t *testing.T) {
		chat := newTestChat(`{"entities":[{name":"Acme"}]}`)
		var out reply
		_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
		require.NoError(t, err)
		require.Len(t, out.Entities, 1)
		assert.Equal(t, "Acme", out.Entities[0].Name)
	})

	t.Run("retries malformed reply", func(t *testing.T) {
		chat := newTestChat("not json", `{"entities":[]}`)
		var out reply
		_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
		require.NoError(t, err)
		assert.Empty(t, out.Entities)
	})

	t.Run("gives up with parse error", func(t *testing.T) {
		chat := newTestChat("nope")
		var out reply
		_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
		assert.ErrorIs(t, err, core.ErrParse)
	})

	t.Run("transport failure is an inference error", func(t *testing.T) {
		chat := newTestChat()
		var out reply
		_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
		assert.ErrorIs(t, err, core.ErrInferenceCall)
		assert.NotErrorIs(t, err, core.ErrParse)
	})
}

func TestQuoteBareKeys(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"well formed", `{"name":"x"}`, `{"name":"x"}`},
		{"first key", `{name":"x"}`, `{"name":"x"}`},
		{"after comma", `{"a":"b", type":"c"}`, `{"a":"b", "type":"c"}`},
		{"trailing space in key", "{\n  due date \":\"friday\"}", "{\n  \"due date\":\"friday\"}"},
		{"array", `[1, 2]`, `[1, 2]`},
		{"bare word value", `{"a":"b", c}`, `{"a":"b", c}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteBareKeys(tt.in))
		})
	}
}

func TestGenerateJSON_RepairsBareKeys(t *testing.T) {
	chat := newTestChat(`{entities":[{name":"Maria"}]}`)
	var out struct {
		Entities []struct {
			Name string `json:"name"`
		} `json:"entities"`
	}
	_, err := chat.generateJSON(context.Background(), "sys", "user", &out)
	require.NoError(t, err)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "Maria", out.Entities[0].Name)
}

func TestTokensFromInfo(t *testing.T) {
	assert.Equal(t, 0, tokensFromInfo(nil))
	assert.Equal(t, 42, tokensFromInfo(map[string]any{"TotalTokens": 42}))
	assert.Equal(t, 7, tokensFromInfo(map[string]any{"TotalTokens": float64(7)}))
	assert.Equal(t, 0, tokensFromInfo(map[string]any{"TotalTokens": "many"}))
}

func TestClassifyError(t *testing.T) {
	err := classifyError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, core.ErrInferenceCall)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
