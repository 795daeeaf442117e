package mock

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVector(t *testing.T) {
	a := DeterministicVector("hello", 16)
	b := DeterministicVector("hello", 16)
	c := DeterministicVector("world", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedderCounts(t *testing.T) {
	m := NewMockEmbedder(0)
	assert.Equal(t, DefaultDimensions, m.Dimensions())

	_, err := m.EmbedText(context.Background(), "a")
	require.NoError(t, err)
	vecs, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, m.CallCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
}

func TestMockExtractorDefaults(t *testing.T) {
	ctx := context.Background()
	text := "I will send the report to John by Friday."

	entities, err := NewMockEntityExtractor().ExtractEntities(ctx, text)
	require.NoError(t, err)
	names := make([]string, 0, len(entities.Entities))
	for _, e := range entities.Entities {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"John", "Friday"}, names)

	commitments, err := NewMockCommitmentExtractor().ExtractCommitments(ctx, text, time.Now())
	require.NoError(t, err)
	require.Len(t, commitments.Commitments, 1)
	assert.Equal(t, "I will send the report to John by Friday", commitments.Commitments[0].Text)

	none, err := NewMockCommitmentExtractor().ExtractCommitments(ctx, "Random thought: the weather is nice today.", time.Now())
	require.NoError(t, err)
	assert.Empty(t, none.Commitments)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	require.NotNil(t, p.Embedder())
	require.NotNil(t, p.Completer())

	mp := p.(*MockProvider)
	assert.False(t, mp.Closed())
	require.NoError(t, p.Close())
	assert.True(t, mp.Closed())
}
