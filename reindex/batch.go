package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/recollect/core"
)

// Embedder produces vectors for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Writer persists memories to the durable store and the vector index
// together.
type Writer interface {
	WriteBatch(ctx context.Context, memories ...*core.Memory) error
}

// BatchProcessor re-embeds one batch of memories and writes it back.
type BatchProcessor struct {
	embedder       Embedder
	writer         Writer
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for the embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder Embedder, writer Writer, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		writer:         writer,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process replaces the embedding of every memory in the batch and rewrites
// them through the writer.
func (bp *BatchProcessor) Process(ctx context.Context, memories []*core.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	texts := make([]string, len(memories))
	for i, memory := range memories {
		texts[i] = memory.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedBatch(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(memories) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrInferenceCall, len(memories), len(embeddings))
	}

	for i, memory := range memories {
		memory.Embedding = embeddings[i]
	}

	if err := bp.writer.WriteBatch(ctx, memories...); err != nil {
		return fmt.Errorf("failed to write memories: %w", err)
	}
	return nil
}
