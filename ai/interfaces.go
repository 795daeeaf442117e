package ai

import (
	"context"
	"time"

	"github.com/poiesic/recollect/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EntityExtractor finds named entities in text.
// Implementations must be thread-safe for concurrent use.
type EntityExtractor interface {
	// ExtractEntities returns the entities mentioned in text together with
	// the tokens the call consumed. Returns an empty result when nothing
	// is found.
	ExtractEntities(ctx context.Context, text string) (EntityExtraction, error)
}

// CommitmentExtractor finds obligations and promises in text.
// Implementations must be thread-safe for concurrent use.
type CommitmentExtractor interface {
	// ExtractCommitments returns the commitments stated in text. receivedAt
	// anchors relative dates such as "tomorrow".
	ExtractCommitments(ctx context.Context, text string, receivedAt time.Time) (CommitmentExtraction, error)
}

// Completer runs a single deterministic chat completion.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends a system and a user message at temperature 0 and
	// returns the model's reply.
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}

// EntityExtraction is the result of an entity extraction call.
type EntityExtraction struct {
	Entities   []core.Entity
	TokensUsed int
}

// ExtractedCommitment is a commitment as reported by a model. Due is the
// raw time expression; callers resolve it.
type ExtractedCommitment struct {
	Text     string `json:"text"`
	Due      string `json:"due"`
	Assignee string `json:"assignee"`
}

// CommitmentExtraction is the result of a commitment extraction call.
type CommitmentExtraction struct {
	Commitments []ExtractedCommitment
	TokensUsed  int
}

// Completion is a model reply.
type Completion struct {
	Text       string
	TokensUsed int
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// The services share configuration and resources.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// EntityExtractor returns the entity extraction service.
	EntityExtractor() EntityExtractor

	// CommitmentExtractor returns the commitment extraction service.
	CommitmentExtractor() CommitmentExtractor

	// Completer returns the chat completion service used for reranking.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
