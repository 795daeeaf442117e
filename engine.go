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


// Package recollect wires the ingestion pipeline and the retrieval engine
// over one data directory.
package recollect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/ai/openai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/ingestion"
	"github.com/poiesic/recollect/reindex"
	"github.com/poiesic/recollect/search"
	"github.com/poiesic/recollect/stagecache"
	"github.com/poiesic/recollect/storage"
	"github.com/poiesic/recollect/storage/badger"
	"github.com/poiesic/recollect/storage/chromem"
	"github.com/poiesic/recollect/storage/redis"
)

const (
	storeDir   = "store"
	vectorsDir = "vectors"

	pendingBatchSize = 256
)

// Engine owns every store and service behind ingestion and search.
type Engine struct {
	backend   *badger.Backend
	memories  *badger.MemoryRepository
	runs      *badger.RunRepository
	shared    storage.KeyValueStore
	redis     *redis.KeyValueStore
	index     *chromem.Index
	cache     *stagecache.Cache
	governor  *governor.Governor
	provider  ai.AIProvider
	embedding *ingestion.EmbeddingStage
	indexer   *ingestion.Indexer
	pipeline  *ingestion.Pipeline
	searcher  *search.Searcher
	logger    *slog.Logger
}

// Stats describes the engine's stores and recent pipeline runs.
type Stats struct {
	Memories int
	Vectors  int
	Pending  int
	Runs     ingestion.RunStats
	Windows  []core.RateWindow
}

// Open opens or creates the engine rooted at path. Pending writes left by
// an earlier crash are reconciled before Open returns. With WithFreshIndex
// every stored memory is marked pending instead, and stays so until Reindex
// or a later Reconcile writes its vector.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.aiConfig
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	e := &Engine{logger: options.logger.With("component", "engine")}
	if err := e.open(ctx, path, cfg, options); err != nil {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Warn("cleanup after failed open", "err", closeErr)
		}
		return nil, err
	}

	if options.freshIndex {
		return e, nil
	}
	report, err := e.pipeline.Reconcile(ctx)
	if err != nil {
		e.logger.Warn("reconciliation on open failed", "err", err)
	} else if report.Pending > 0 {
		e.logger.Info("reconciled pending memories", "rolled_forward", report.RolledForward, "removed", report.Removed)
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, path string, cfg *ai.Config, options *engineOptions) error {
	logger := options.logger
	var err error

	storePath, vectorPath := filepath.Join(path, storeDir), filepath.Join(path, vectorsDir)
	if options.inMemory {
		storePath, vectorPath = "", ""
	}
	if e.backend, err = badger.OpenBackend(storePath, options.inMemory); err != nil {
		return err
	}
	if e.memories, err = badger.NewMemoryRepository(e.backend); err != nil {
		return err
	}
	if e.runs, err = badger.NewRunRepository(e.backend, 0); err != nil {
		return err
	}

	if options.redisURL != "" {
		if e.redis, err = redis.Dial(ctx, options.redisURL); err != nil {
			return err
		}
		e.shared = e.redis
	} else if e.shared, err = badger.NewKeyValueStore(e.backend); err != nil {
		return err
	}

	if options.freshIndex && vectorPath != "" {
		if err := e.markAllPending(ctx); err != nil {
			return err
		}
		logger.Info("discarding vector index", "path", vectorPath)
		if err := os.RemoveAll(vectorPath); err != nil {
			return fmt.Errorf("%w: remove vector index: %w", core.ErrStorage, err)
		}
	}
	if e.index, err = chromem.Open(ctx, vectorPath, cfg.EmbeddingDimensions, chromem.WithLogger(logger)); err != nil {
		return err
	}

	if e.cache, err = stagecache.New(stagecache.WithSharedStore(e.shared), stagecache.WithLogger(logger)); err != nil {
		return err
	}
	govOpts := append([]governor.Option{governor.WithLogger(logger)}, options.governorOpts...)
	if e.governor, err = governor.New(e.shared, govOpts...); err != nil {
		return err
	}

	e.provider = options.provider
	if e.provider == nil {
		if e.provider, err = openai.NewProvider(cfg); err != nil {
			return err
		}
	}

	if e.embedding, err = ingestion.NewEmbeddingStage(e.provider.Embedder(), e.cache, e.governor, cfg.EmbeddingDimensions,
		ingestion.WithCacheNamespace(cfg.EmbeddingModel),
		ingestion.WithEmbeddingLogger(logger)); err != nil {
		return err
	}
	if e.indexer, err = ingestion.NewIndexer(e.memories, e.index, logger, ingestion.WithReembedder(e.embedding)); err != nil {
		return err
	}

	store, err := ingestion.NewStoreRecorder(e.runs, logger)
	if err != nil {
		return err
	}
	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithRecorders(ingestion.NewLogRecorder(logger), store),
	}
	if options.minEntityTokens > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPreFilter(
			ingestion.NewPreFilter(ingestion.WithMinEntityTokens(options.minEntityTokens))))
	}
	pipelineOpts = append(pipelineOpts, options.pipelineOpts...)
	if e.pipeline, err = ingestion.NewPipeline(e.provider, e.governor, e.embedding, e.indexer, pipelineOpts...); err != nil {
		return err
	}

	retriever, err := search.NewRetriever(e.index, e.memories, logger)
	if err != nil {
		return err
	}
	rerankerOpts := append([]search.RerankerOption{search.WithRerankerLogger(logger)}, options.rerankerOpts...)
	reranker, err := search.NewReranker(e.provider.Completer(), e.governor, rerankerOpts...)
	if err != nil {
		return err
	}
	searchOpts := append([]search.Option{search.WithLogger(logger)}, options.searchOpts...)
	if e.searcher, err = search.NewSearcher(e.embedding, retriever, reranker, searchOpts...); err != nil {
		return err
	}
	return nil
}

// Ingest runs one content unit through the pipeline.
func (e *Engine) Ingest(ctx context.Context, unit *core.ContentUnit) (*core.PipelineRun, error) {
	return e.pipeline.Process(ctx, unit)
}

// IngestBatch runs units concurrently. Runs are returned in input order.
func (e *Engine) IngestBatch(ctx context.Context, units []*core.ContentUnit) ([]*core.PipelineRun, error) {
	return e.pipeline.IngestBatch(ctx, units)
}

// Search returns up to topK memories relevant to query, best first.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	return e.searcher.Search(ctx, query, topK)
}

// SearchWithMonitor is Search with callbacks at each step.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, topK int, monitor search.SearchMonitor) ([]core.SearchResult, error) {
	return e.searcher.SearchWithMonitor(ctx, query, topK, monitor)
}

// Memory returns a stored memory by ID.
func (e *Engine) Memory(ctx context.Context, id core.ID) (*core.Memory, error) {
	return e.memories.GetMemory(ctx, id)
}

// Recent returns up to limit memories, newest first by creation time.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*core.Memory, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	return e.memories.GetRecentMemories(ctx, limit)
}

// Reconcile resolves writes interrupted between the durable store and the
// vector index.
func (e *Engine) Reconcile(ctx context.Context) (ingestion.ReconcileReport, error) {
	return e.pipeline.Reconcile(ctx)
}

// Reindex re-embeds every stored memory with the current embedding model
// and overwrites its vector in place. A memory not reached before an
// interruption keeps its previous vector. progress may be nil.
func (e *Engine) Reindex(ctx context.Context, config *reindex.Config, progress io.Writer) (reindex.Report, error) {
	r, err := reindex.NewReindexer(e.memories, e.embedding, e.indexer, config, progress)
	if err != nil {
		return reindex.Report{}, err
	}
	return r.Run(ctx)
}

// markAllPending flags every stored memory so reconciliation rebuilds its
// vector if the index is lost.
func (e *Engine) markAllPending(ctx context.Context) error {
	err := e.memories.ScanMemories(ctx, pendingBatchSize, func(batch []*core.Memory) error {
		ids := make([]core.ID, len(batch))
		for i, memory := range batch {
			ids[i] = memory.Id
		}
		return e.memories.MarkPending(ctx, ids...)
	})
	if err != nil {
		return fmt.Errorf("%w: mark memories pending: %w", core.ErrStorage, err)
	}
	return nil
}

// Stats summarizes the stores and up to runLimit recent pipeline runs.
func (e *Engine) Stats(ctx context.Context, runLimit int) (Stats, error) {
	var stats Stats
	var err error
	if stats.Memories, err = e.memories.CountMemories(ctx); err != nil {
		return stats, err
	}
	stats.Vectors = e.index.Count()

	pending, err := e.memories.ListPending(ctx)
	if err != nil {
		return stats, err
	}
	stats.Pending = len(pending)

	runs, err := e.runs.ListRuns(ctx, runLimit)
	if err != nil {
		return stats, err
	}
	stats.Runs = ingestion.Summarize(runs)

	if stats.Windows, err = e.governor.Windows(ctx); err != nil {
		e.logger.Warn("rate windows unavailable", "err", err)
	}
	return stats, nil
}

// Close releases every resource. It is safe to call on a partially opened
// engine.
func (e *Engine) Close() error {
	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.cache != nil {
		e.cache.Close()
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Error("error closing redis client", "err", err)
			errs = append(errs, err)
		}
	}
	if e.runs != nil {
		if err := e.runs.Close(); err != nil {
			e.logger.Error("error closing run log", "err", err)
			errs = append(errs, err)
		}
	}
	if e.memories != nil {
		if err := e.memories.Close(); err != nil {
			e.logger.Error("error closing memory repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
