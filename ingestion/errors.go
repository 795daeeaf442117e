package ingestion

import "errors"

var (
	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGovernorRequired is returned when a rate governor is not provided.
	ErrGovernorRequired = errors.New("rate governor required")

	// ErrCacheRequired is returned when a stage cache is not provided.
	ErrCacheRequired = errors.New("stage cache required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrMemoryRepositoryRequired is returned when a memory repository is not provided.
	ErrMemoryRepositoryRequired = errors.New("memory repository required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrRunRepositoryRequired is returned when a run repository is not provided.
	ErrRunRepositoryRequired = errors.New("run repository required")

	// ErrAlreadyProcessing is returned when a content unit is submitted while
	// an earlier run for the same ID is still in flight.
	ErrAlreadyProcessing = errors.New("content unit already processing")
)
