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


// Package chromem implements storage.VectorIndex on chromem-go, an embedded
// pure Go vector database. Documents carry only an embedding and the
// memory's source kind; content lives in the durable store.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

const (
	collectionName = "memories"
	kindKey        = "kind"
	dimensionsKey  = "dimensions"
)

var (
	// ErrInvalidDimensions is returned when an index is opened with dims <= 0.
	ErrInvalidDimensions = errors.New("vector dimensions must be positive")

	errEmbeddingDisabled = errors.New("index stores precomputed embeddings only")
)

// Index implements storage.VectorIndex.
type Index struct {
	db     *chromem.DB
	coll   *chromem.Collection
	dims   int
	logger *slog.Logger

	// writers hold it exclusively so Has and Query see whole batches
	mu sync.RWMutex
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Open opens the index persisted under path, or an in-memory index when
// path is empty. Reopening a persisted index with a different dimensionality
// fails with core.ErrConfiguration.
func Open(ctx context.Context, path string, dims int, opts ...Option) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, ErrInvalidDimensions)
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: open vector index: %w", core.ErrStorage, err)
		}
	}

	meta := map[string]string{dimensionsKey: strconv.Itoa(dims)}
	coll, err := db.GetOrCreateCollection(collectionName, meta, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %w", core.ErrStorage, err)
	}

	idx := &Index{
		db:     db,
		coll:   coll,
		dims:   dims,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "vector-index")

	if err := idx.checkStoredDimensions(ctx); err != nil {
		return nil, err
	}
	idx.logger.Debug("vector index open", "path", path, "dimensions", dims, "documents", coll.Count())
	return idx, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingDisabled
}

// checkStoredDimensions probes an existing collection for its vector length.
func (i *Index) checkStoredDimensions(ctx context.Context) error {
	if i.coll.Count() == 0 {
		return nil
	}
	probe := make([]float32, i.dims)
	probe[0] = 1
	res, err := i.coll.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: stored vectors do not match %d dimensions: %w", core.ErrConfiguration, i.dims, err)
	}
	if len(res) > 0 && len(res[0].Embedding) != i.dims {
		return fmt.Errorf("%w: stored vectors have %d dimensions, expected %d",
			core.ErrConfiguration, len(res[0].Embedding), i.dims)
	}
	return nil
}

// Dimensions returns the fixed vector length.
func (i *Index) Dimensions() int {
	return i.dims
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.coll.Count()
}

// Upsert inserts or replaces documents.
func (i *Index) Upsert(ctx context.Context, docs ...storage.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if len(doc.Vector) != i.dims {
			return fmt.Errorf("%w: document %d has %d dimensions, index expects %d",
				core.ErrConfiguration, doc.Id, len(doc.Vector), i.dims)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, doc := range docs {
		err := i.coll.AddDocument(ctx, chromem.Document{
			ID:        formatID(doc.Id),
			Metadata:  map[string]string{kindKey: string(doc.Kind)},
			Embedding: doc.Vector,
		})
		if err != nil {
			return fmt.Errorf("%w: upsert vector %d: %w", core.ErrStorage, doc.Id, err)
		}
	}
	return nil
}

// Query returns up to n nearest documents by cosine similarity.
func (i *Index) Query(ctx context.Context, vector []float32, n int) ([]storage.VectorMatch, error) {
	if len(vector) != i.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			core.ErrConfiguration, len(vector), i.dims)
	}
	if n <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	// chromem rejects nResults larger than the collection
	if count := i.coll.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := i.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query vectors: %w", core.ErrStorage, err)
	}

	matches := make([]storage.VectorMatch, 0, len(results))
	for _, r := range results {
		id, err := parseID(r.ID)
		if err != nil {
			i.logger.Warn("skipping document with malformed id", "id", r.ID)
			continue
		}
		matches = append(matches, storage.VectorMatch{
			Id:    id,
			Score: float64(r.Similarity),
			Kind:  core.SourceType(r.Metadata[kindKey]),
		})
	}
	return matches, nil
}

// Delete removes documents. Missing IDs are ignored.
func (i *Index) Delete(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for n, id := range ids {
		strIDs[n] = formatID(id)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.coll.Delete(ctx, nil, nil, strIDs...); err != nil {
		return fmt.Errorf("%w: delete vectors: %w", core.ErrStorage, err)
	}
	return nil
}

// Has reports whether a document exists.
func (i *Index) Has(ctx context.Context, id core.ID) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, err := i.coll.GetByID(ctx, formatID(id))
	return err == nil, nil
}

func formatID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(s string) (core.ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return core.ID(v), err
}
