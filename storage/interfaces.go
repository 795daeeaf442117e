package storage

import (
	"context"
	"time"

	"github.com/poiesic/recollect/core"
)

// MemoryRepository is the durable store for Memories.
// Implementations must be thread-safe and support concurrent access.
type MemoryRepository interface {
	// StageMemories upserts memories and marks each as pending in a single
	// transaction. Existing records keep their CreatedAt and get their
	// Version bumped. Returns the previously stored version of each memory,
	// aligned with the input, with nil entries for memories that were new.
	StageMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error)

	// MarkPending sets pending markers on stored memories without touching
	// their records. IDs with no stored memory are skipped.
	MarkPending(ctx context.Context, ids ...core.ID) error

	// ClearPending removes the pending markers for the given IDs.
	ClearPending(ctx context.Context, ids ...core.ID) error

	// RollbackMemories undoes a StageMemories call. For each staged memory
	// the previous version is restored, or the record is deleted when
	// previous is nil. Pending markers are cleared.
	RollbackMemories(ctx context.Context, staged, previous []*core.Memory) error

	// ListPending returns the IDs of memories whose indexing never finished.
	ListPending(ctx context.Context) ([]core.ID, error)

	// GetMemory retrieves a single memory by ID.
	// Returns ErrNotFound if the memory doesn't exist.
	GetMemory(ctx context.Context, id core.ID) (*core.Memory, error)

	// GetMemories retrieves multiple memories by their IDs.
	// Returns only the memories that exist (no error for missing memories).
	GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error)

	// DeleteMemories removes memories and their index entries.
	// Missing IDs are ignored.
	DeleteMemories(ctx context.Context, ids ...core.ID) error

	// GetRecentMemories retrieves the N most recently created memories,
	// newest first.
	GetRecentMemories(ctx context.Context, limit int) ([]*core.Memory, error)

	// ScanMemories calls fn with successive batches of memories in ID order.
	// Iteration stops on the first error from fn.
	ScanMemories(ctx context.Context, batchSize int, fn func([]*core.Memory) error) error

	// CountMemories returns the number of stored memories.
	CountMemories(ctx context.Context) (int, error)

	// Close releases repository resources.
	Close() error
}

// VectorDocument is one entry in the vector index.
type VectorDocument struct {
	Id     core.ID
	Vector []float32
	Kind   core.SourceType
}

// VectorMatch is a nearest-neighbour hit.
type VectorMatch struct {
	Id    core.ID
	Score float64
	Kind  core.SourceType
}

// VectorIndex stores embeddings for nearest-neighbour search.
// Its dimensionality is fixed when it is created; documents with a
// different length are rejected with core.ErrConfiguration.
type VectorIndex interface {
	// Upsert inserts or replaces one or more documents.
	Upsert(ctx context.Context, docs ...VectorDocument) error

	// Query returns up to n nearest documents, most similar first.
	Query(ctx context.Context, vector []float32, n int) ([]VectorMatch, error)

	// Delete removes documents by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids ...core.ID) error

	// Has reports whether a document exists.
	Has(ctx context.Context, id core.ID) (bool, error)

	// Count returns the number of indexed documents.
	Count() int

	// Dimensions returns the fixed vector length.
	Dimensions() int
}

// KeyValueStore is a small key-value store with per-key expiry, shared
// between pipeline instances. It backs the rate governor counters and the
// shared tier of the stage cache.
type KeyValueStore interface {
	// Get returns the value for key. found is false for missing or
	// expired keys.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value under key. A ttl of zero means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RunRepository persists finished pipeline runs.
type RunRepository interface {
	// SaveRun appends a run record to the log.
	SaveRun(ctx context.Context, run *core.RunRecord) error

	// ListRuns returns up to limit runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]*core.RunRecord, error)
}
