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


package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// Retriever finds the memories nearest to a query vector.
type Retriever struct {
	index  storage.VectorIndex
	repo   storage.MemoryRepository
	logger *slog.Logger
}

// NewRetriever creates a Retriever over a vector index and the durable
// memory store. A nil logger uses slog.Default().
func NewRetriever(index storage.VectorIndex, repo storage.MemoryRepository, logger *slog.Logger) (*Retriever, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if repo == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:  index,
		repo:   repo,
		logger: logger.With("component", "retriever"),
	}, nil
}

// Search returns up to overFetch candidates ordered by descending vector
// similarity. Matches whose durable record is missing are dropped; they
// belong to a write that reconciliation has not resolved yet.
//
// Vector scores are cosine similarities clamped to [0,1].
func (r *Retriever) Search(ctx context.Context, vector []float32, overFetch int) ([]core.RerankCandidate, error) {
	if overFetch <= 0 {
		return nil, ErrInvalidTopK
	}
	if dims := r.index.Dimensions(); len(vector) != dims {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d", core.ErrConfiguration, len(vector), dims)
	}

	matches, err := r.index.Query(ctx, vector, overFetch)
	if err != nil {
		r.logger.Error("vector query failed", "err", err)
		return nil, fmt.Errorf("%w: vector query: %w", core.ErrStorage, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]core.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.Id
	}
	memories, err := r.repo.GetMemories(ctx, ids...)
	if err != nil {
		r.logger.Error("error retrieving memories", "count", len(ids), "err", err)
		return nil, fmt.Errorf("%w: hydrate candidates: %w", core.ErrStorage, err)
	}
	byID := make(map[core.ID]*core.Memory, len(memories))
	for _, m := range memories {
		if m != nil {
			byID[m.Id] = m
		}
	}

	candidates := make([]core.RerankCandidate, 0, len(matches))
	for _, match := range matches {
		memory, ok := byID[match.Id]
		if !ok {
			r.logger.Debug("dropping match without durable record", "id", uint64(match.Id))
			continue
		}
		candidates = append(candidates, core.RerankCandidate{
			Id:          memory.Id,
			Content:     memory.Content,
			VectorScore: min(max(match.Score, 0), 1),
			Kind:        memory.SourceType,
		})
	}
	return candidates, nil
}
