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


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// Config holds configuration for the reindex operation.
type Config struct {
	// BatchSize is the number of memories to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of memories)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Report summarizes a finished reindex.
type Report struct {
	Memories int
	Batches  int
	Elapsed  time.Duration
}

// Reindexer orchestrates the re-embedding of every stored memory.
type Reindexer struct {
	repo      storage.MemoryRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr); nil discards it
func NewReindexer(repo storage.MemoryRepository, embedder Embedder, writer Writer, config *Config, progress io.Writer) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrMemoryRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if writer == nil {
		return nil, ErrWriterRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embedder, writer, config.MaxRetries, config.RetryDelay),
		logger:    slog.Default().With("component", "reindexer", "dimensions", embedder.Dimensions()),
	}, nil
}

// Run re-embeds every memory in the durable store. An interrupted run can
// simply be started again; memories already rewritten are cheap cache hits.
func (r *Reindexer) Run(ctx context.Context) (Report, error) {
	var report Report

	total, err := r.repo.CountMemories(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: count memories: %w", core.ErrStorage, err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No memories found (0 records)\n")
		return report, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d memories (batch size: %d)\n", total, r.config.BatchSize)
	r.logger.Info("reindex started", "memories", total)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.repo.ScanMemories(ctx, r.config.BatchSize, func(memories []*core.Memory) error {
		if err := r.processor.Process(ctx, memories); err != nil {
			return fmt.Errorf("failed to process batch %d: %w", report.Batches+1, err)
		}
		report.Batches++
		report.Memories += len(memories)
		tracker.Increment(len(memories))
		return nil
	})
	report.Elapsed = tracker.Elapsed()
	if err != nil {
		r.logger.Error("reindex aborted", "processed", report.Memories, "err", err)
		return report, err
	}

	tracker.Finish()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d memories in %v\n",
		report.Memories, report.Elapsed.Round(time.Millisecond))
	r.logger.Info("reindex finished", "memories", report.Memories, "batches", report.Batches, "elapsed", report.Elapsed)
	return report, nil
}
