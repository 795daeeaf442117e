package mock

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
)

// MockEntityExtractor is a test double for ai.EntityExtractor.
type MockEntityExtractor struct {
	// ExtractEntitiesFunc is called by ExtractEntities if set.
	// If nil, capitalized words become entities of type "other".
	ExtractEntitiesFunc func(ctx context.Context, text string) (ai.EntityExtraction, error)

	callCount atomic.Int64
}

// NewMockEntityExtractor creates a mock entity extractor with default behavior.
func NewMockEntityExtractor() *MockEntityExtractor {
	return &MockEntityExtractor{}
}

// ExtractEntities returns the injected result or the capitalized words of text.
func (m *MockEntityExtractor) ExtractEntities(ctx context.Context, text string) (ai.EntityExtraction, error) {
	m.callCount.Add(1)

	if m.ExtractEntitiesFunc != nil {
		return m.ExtractEntitiesFunc(ctx, text)
	}

	var entities []core.Entity
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) < 2 || !unicode.IsUpper([]rune(word)[0]) {
			continue
		}
		entities = append(entities, core.Entity{Name: word, Type: "other"})
	}
	return ai.EntityExtraction{
		Entities:   core.DedupeEntities(entities),
		TokensUsed: estimateTokens(text),
	}, nil
}

// CallCount returns the number of times ExtractEntities was called.
func (m *MockEntityExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockEntityExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractEntitiesFunc = nil
}

// MockCommitmentExtractor is a test double for ai.CommitmentExtractor.
type MockCommitmentExtractor struct {
	// ExtractCommitmentsFunc is called by ExtractCommitments if set.
	// If nil, every sentence containing "will" or "must" becomes a commitment.
	ExtractCommitmentsFunc func(ctx context.Context, text string, receivedAt time.Time) (ai.CommitmentExtraction, error)

	callCount atomic.Int64
}

// NewMockCommitmentExtractor creates a mock commitment extractor with default behavior.
func NewMockCommitmentExtractor() *MockCommitmentExtractor {
	return &MockCommitmentExtractor{}
}

// ExtractCommitments returns the injected result or a naive sentence match.
func (m *MockCommitmentExtractor) ExtractCommitments(ctx context.Context, text string, receivedAt time.Time) (ai.CommitmentExtraction, error) {
	m.callCount.Add(1)

	if m.ExtractCommitmentsFunc != nil {
		return m.ExtractCommitmentsFunc(ctx, text, receivedAt)
	}

	var commitments []ai.ExtractedCommitment
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' }) {
		lower := " " + strings.ToLower(sentence) + " "
		if strings.Contains(lower, " will ") || strings.Contains(lower, " must ") {
			commitments = append(commitments, ai.ExtractedCommitment{Text: strings.TrimSpace(sentence)})
		}
	}
	return ai.CommitmentExtraction{
		Commitments: commitments,
		TokensUsed:  estimateTokens(text),
	}, nil
}

// CallCount returns the number of times ExtractCommitments was called.
func (m *MockCommitmentExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockCommitmentExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractCommitmentsFunc = nil
}

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Reply is returned.
	CompleteFunc func(ctx context.Context, system, prompt string) (ai.Completion, error)

	// Reply is the canned answer used when CompleteFunc is nil.
	Reply string

	callCount atomic.Int64
}

// NewMockCompleter creates a mock completer that always answers reply.
func NewMockCompleter(reply string) *MockCompleter {
	return &MockCompleter{Reply: reply}
}

// Complete returns the injected result or the canned reply.
func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (ai.Completion, error) {
	m.callCount.Add(1)

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt)
	}
	return ai.Completion{Text: m.Reply, TokensUsed: estimateTokens(system + prompt)}, nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockCompleter) Reset() {
	m.callCount.Store(0)
	m.CompleteFunc = nil
}

func estimateTokens(text string) int {
	return (len([]rune(text)) + 3) / 4
}
