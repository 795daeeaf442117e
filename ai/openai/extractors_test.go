package openai

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestEntityExtractor(t *testing.T) {
	llm := fake.NewFakeLLM([]string{`{"entities":[
		{"name":"John","type":"person"},
		{"name":"john","type":"Person"},
		{"name":"Acme Corp","type":"company"},
		{"name":"  ","type":"place"}
	]}`})
	extractor := newEntityExtractor(llm, ai.DefaultConfig())

	got, err := extractor.ExtractEntities(context.Background(), "John from Acme Corp called.")
	require.NoError(t, err)
	assert.Equal(t, []core.Entity{
		{Name: "John", Type: "person"},
		{Name: "Acme Corp", Type: "other"},
	}, got.Entities)
}

func TestEntityExtractorEmpty(t *testing.T) {
	llm := fake.NewFakeLLM([]string{`{"entities":[]}`})
	extractor := newEntityExtractor(llm, ai.DefaultConfig())

	got, err := extractor.ExtractEntities(context.Background(), "weather is nice today")
	require.NoError(t, err)
	assert.Empty(t, got.Entities)
}

func TestCommitmentExtractor(t *testing.T) {
	llm := fake.NewFakeLLM([]string{
		"```\n" + `{"commitments":[{"text":" send the report to John ","due":"by Friday","assignee":"me"},{"text":"","due":"","assignee":""}]}` + "\n```",
	})
	extractor := newCommitmentExtractor(llm, ai.DefaultConfig())

	got, err := extractor.ExtractCommitments(context.Background(), "I will send the report to John by Friday.", time.Now())
	require.NoError(t, err)
	require.Len(t, got.Commitments, 1)
	assert.Equal(t, ai.ExtractedCommitment{Text: "send the report to John", Due: "by Friday", Assignee: "me"}, got.Commitments[0])
}

func TestCompleter(t *testing.T) {
	llm := fake.NewFakeLLM([]string{"1: 0.9\n2: 0.1"})
	completer := newCompleter(llm, ai.DefaultConfig())

	got, err := completer.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "1: 0.9\n2: 0.1", got.Text)
}

func TestBuildCommitmentUserPrompt(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "Received: Friday, 2025-03-07\n\nship it", buildCommitmentUserPrompt("ship it", at))
	assert.Equal(t, "ship it", buildCommitmentUserPrompt("ship it", time.Time{}))
}
