// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// Indexer writes Memories to the durable store and the vector index as one
// logical operation.
//
// The durable record is staged first, together with a pending marker, in a
// single transaction. The vector entry is written second. If that fails the
// durable side is rolled back; if the rollback fails as well the pending
// marker survives and Reconcile resolves it later.
type Indexer struct {
	repo       storage.MemoryRepository
	index      storage.VectorIndex
	reembedder Reembedder
	logger     *slog.Logger
}

// Reembedder computes a new embedding for a memory's content.
type Reembedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithReembedder lets Reconcile roll forward pending memories whose stored
// embedding is missing or no longer fits the index.
func WithReembedder(r Reembedder) IndexerOption {
	return func(x *Indexer) {
		x.reembedder = r
	}
}

// ReconcileReport summarizes a Reconcile pass. Deferred memories stay
// pending for a later pass.
type ReconcileReport struct {
	Pending       int
	RolledForward int
	Reembedded    int
	Removed       int
	Deferred      int
}

// NewIndexer creates an Indexer over repo and index.
func NewIndexer(repo storage.MemoryRepository, index storage.VectorIndex, logger *slog.Logger, opts ...IndexerOption) (*Indexer, error) {
	if repo == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	x := &Indexer{
		repo:   repo,
		index:  index,
		logger: logger.With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Write indexes one memory.
func (x *Indexer) Write(ctx context.Context, memory *core.Memory) error {
	return x.WriteBatch(ctx, memory)
}

// WriteBatch indexes memories together. Either all of them become
// discoverable by ID and by vector, or none do.
func (x *Indexer) WriteBatch(ctx context.Context, memories ...*core.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	dims := x.index.Dimensions()
	for _, memory := range memories {
		if err := core.ValidateMemory(memory, dims); err != nil {
			return err
		}
	}

	previous, err := x.repo.StageMemories(ctx, memories...)
	if err != nil {
		x.logger.Error("failed to stage memories", "count", len(memories), "err", err)
		return storageError("stage memories", err)
	}

	ids := make([]core.ID, len(memories))
	docs := make([]storage.VectorDocument, len(memories))
	for i, memory := range memories {
		ids[i] = memory.Id
		docs[i] = vectorDocument(memory)
	}

	if err := x.index.Upsert(ctx, docs...); err != nil {
		x.logger.Error("vector upsert failed, compensating", "count", len(memories), "err", err)
		if compErr := x.compensate(context.WithoutCancel(ctx), memories, previous); compErr != nil {
			x.logger.Error("compensation failed, leaving pending markers", "err", compErr)
			err = errors.Join(err, compErr)
		}
		return storageError("vector upsert", err)
	}

	if err := x.repo.ClearPending(ctx, ids...); err != nil {
		// both sides are written; reconciliation clears the marker later
		x.logger.Warn("failed to clear pending markers", "count", len(ids), "err", err)
	}
	return nil
}

// compensate undoes a staged write after the vector side failed. Vectors of
// new memories are removed and vectors of replaced memories restored.
func (x *Indexer) compensate(ctx context.Context, staged, previous []*core.Memory) error {
	var remove []core.ID
	var restore []storage.VectorDocument
	for i, memory := range staged {
		if prev := previous[i]; prev != nil && len(prev.Embedding) > 0 {
			restore = append(restore, vectorDocument(prev))
			continue
		}
		remove = append(remove, memory.Id)
	}

	var errs []error
	if len(remove) > 0 {
		if err := x.index.Delete(ctx, remove...); err != nil {
			errs = append(errs, fmt.Errorf("delete vectors: %w", err))
		}
	}
	if len(restore) > 0 {
		if err := x.index.Upsert(ctx, restore...); err != nil {
			errs = append(errs, fmt.Errorf("restore vectors: %w", err))
		}
	}
	if len(errs) > 0 {
		// keep the durable side and its markers so reconciliation can decide
		return errors.Join(errs...)
	}
	if err := x.repo.RollbackMemories(ctx, staged, previous); err != nil {
		return fmt.Errorf("rollback durable records: %w", err)
	}
	return nil
}

// Reconcile resolves pending markers left by interrupted writes. A memory
// whose durable record carries a usable embedding is rolled forward into the
// vector index. With a Reembedder, a memory whose embedding is missing or has
// the wrong length is embedded again and rolled forward; anything else is
// removed from both sides.
func (x *Indexer) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	ids, err := x.repo.ListPending(ctx)
	if err != nil {
		return report, storageError("list pending", err)
	}
	report.Pending = len(ids)
	if len(ids) == 0 {
		return report, nil
	}
	x.logger.Info("reconciling pending memories", "count", len(ids))

	memories, err := x.repo.GetMemories(ctx, ids...)
	if err != nil {
		return report, storageError("load pending", err)
	}

	dims := x.index.Dimensions()
	found := make(map[core.ID]bool, len(memories))
	var forward, reembed []*core.Memory
	var remove []core.ID
	for _, memory := range memories {
		found[memory.Id] = true
		err := core.ValidateMemory(memory, dims)
		switch {
		case err == nil:
			forward = append(forward, memory)
		case x.reembedder != nil && embeddingUnusable(err):
			reembed = append(reembed, memory)
		default:
			remove = append(remove, memory.Id)
		}
	}
	for _, id := range ids {
		if !found[id] {
			remove = append(remove, id)
		}
	}

	var errs []error
	if len(forward) > 0 {
		docs := make([]storage.VectorDocument, len(forward))
		forwardIDs := make([]core.ID, len(forward))
		for i, memory := range forward {
			docs[i] = vectorDocument(memory)
			forwardIDs[i] = memory.Id
		}
		if err := x.index.Upsert(ctx, docs...); err != nil {
			errs = append(errs, fmt.Errorf("roll forward: %w", err))
		} else if err := x.repo.ClearPending(ctx, forwardIDs...); err != nil {
			errs = append(errs, fmt.Errorf("clear pending: %w", err))
		} else {
			report.RolledForward = len(forward)
		}
	}
	for _, memory := range reembed {
		if err := x.reembed(ctx, memory); err != nil {
			x.logger.Warn("re-embedding pending memory failed", "id", memory.Id, "err", err)
			errs = append(errs, fmt.Errorf("re-embed %d: %w", memory.Id, err))
			report.Deferred++
			continue
		}
		report.Reembedded++
		report.RolledForward++
	}
	if len(remove) > 0 {
		if err := x.index.Delete(ctx, remove...); err != nil {
			errs = append(errs, fmt.Errorf("remove vectors: %w", err))
		} else if err := x.repo.DeleteMemories(ctx, remove...); err != nil {
			errs = append(errs, fmt.Errorf("remove records: %w", err))
		} else {
			report.Removed = len(remove)
		}
	}

	if len(errs) > 0 {
		return report, storageError("reconcile", errors.Join(errs...))
	}
	x.logger.Info("reconciliation finished", "rolled_forward", report.RolledForward,
		"reembedded", report.Reembedded, "removed", report.Removed)
	return report, nil
}

// reembed replaces memory's embedding and writes it through the normal
// staged path, which clears its pending marker.
func (x *Indexer) reembed(ctx context.Context, memory *core.Memory) error {
	vector, err := x.reembedder.Embed(ctx, memory.Content)
	if err != nil {
		return err
	}
	memory.Embedding = vector
	return x.WriteBatch(ctx, memory)
}

func embeddingUnusable(err error) bool {
	return errors.Is(err, core.ErrEmptyEmbedding) || errors.Is(err, core.ErrConfiguration)
}

func vectorDocument(memory *core.Memory) storage.VectorDocument {
	return storage.VectorDocument{Id: memory.Id, Vector: memory.Embedding, Kind: memory.SourceType}
}

// storageError tags err as a storage failure unless it already carries a
// configuration or storage kind.
func storageError(op string, err error) error {
	if errors.Is(err, core.ErrConfiguration) || errors.Is(err, core.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStorage, op, err)
}
