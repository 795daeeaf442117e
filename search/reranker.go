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
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"golang.org/x/sync/errgroup"
)

const (
	// RerankWeight and VectorWeight fuse the two scores into the final one.
	RerankWeight = 0.7
	VectorWeight = 0.3

	// DefaultBatchSize is the largest pool scored by a single prompt.
	DefaultBatchSize = 20

	// DefaultPreviewLength is how many runes of each candidate the model sees.
	DefaultPreviewLength = 280

	// DefaultMaxConcurrentBatches bounds in-flight rerank prompts per query.
	DefaultMaxConcurrentBatches = 4
)

// Reranker reorders retrieved candidates by asking a language model how
// relevant each one is to the query.
type Reranker struct {
	completer     ai.Completer
	governor      *governor.Governor
	batchSize     int
	previewLength int
	concurrency   int
	logger        *slog.Logger
}

// RerankerOption configures a Reranker.
type RerankerOption func(*Reranker)

// WithBatchSize sets the largest pool scored by one prompt.
func WithBatchSize(n int) RerankerOption {
	return func(r *Reranker) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPreviewLength sets how many runes of each candidate are sent.
func WithPreviewLength(n int) RerankerOption {
	return func(r *Reranker) {
		if n > 0 {
			r.previewLength = n
		}
	}
}

// WithMaxConcurrentBatches bounds how many batches are scored at once.
func WithMaxConcurrentBatches(n int) RerankerOption {
	return func(r *Reranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRerankerLogger sets a custom logger.
func WithRerankerLogger(logger *slog.Logger) RerankerOption {
	return func(r *Reranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReranker creates a Reranker. Every prompt is admitted by gov.
func NewReranker(completer ai.Completer, gov *governor.Governor, opts ...RerankerOption) (*Reranker, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	if gov == nil {
		return nil, ErrGovernorRequired
	}
	r := &Reranker{
		completer:     completer,
		governor:      gov,
		batchSize:     DefaultBatchSize,
		previewLength: DefaultPreviewLength,
		concurrency:   DefaultMaxConcurrentBatches,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reranker")
	return r, nil
}

// Rerank returns at most topK results ordered by descending final score.
//
// When there are no more candidates than topK no inference call is made and
// each final score equals the vector score. Otherwise the final score is
// RerankWeight·rerank + VectorWeight·vector. A failed or malformed rerank
// reply falls back to the vector score; Rerank itself never fails. Ties keep
// the original candidate order.
//
// Pools larger than the batch size are split into batches that are scored
// concurrently, each keeping ceil(topK·len(batch)/len(candidates)) results,
// and the survivors are merged and truncated globally.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []core.RerankCandidate, topK int) []core.SearchResult {
	return r.rerank(ctx, query, candidates, topK, &noopMonitor{})
}

// ranked is a result with its position in the original candidate list.
type ranked struct {
	core.SearchResult
	order int
}

func (r *Reranker) rerank(ctx context.Context, query string, candidates []core.RerankCandidate, topK int, monitor SearchMonitor) []core.SearchResult {
	if topK <= 0 || len(candidates) == 0 {
		return []core.SearchResult{}
	}
	if len(candidates) <= r.batchSize {
		return strip(r.scoreBatch(ctx, query, candidates, 0, topK, 0, monitor))
	}

	var batches [][]core.RerankCandidate
	for batch := range slices.Chunk(candidates, r.batchSize) {
		batches = append(batches, batch)
	}
	r.logger.Debug("reranking in batches", "candidates", len(candidates), "batches", len(batches), "top_k", topK)

	// goroutines only write their own slot
	partial := make([][]ranked, len(batches))
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for i, batch := range batches {
		batchTopK := (topK*len(batch) + len(candidates) - 1) / len(candidates)
		g.Go(func() error {
			partial[i] = r.scoreBatch(ctx, query, batch, i*r.batchSize, batchTopK, i, monitor)
			return nil
		})
	}
	_ = g.Wait()

	merged := slices.Concat(partial...)
	sortRanked(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return strip(merged)
}

// scoreBatch reranks one batch and keeps its best topK. offset is the
// batch's position in the full candidate list.
func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []core.RerankCandidate, offset, topK, index int, monitor SearchMonitor) []ranked {
	out := make([]ranked, len(batch))
	for i, c := range batch {
		out[i] = ranked{
			SearchResult: core.SearchResult{
				Id:          c.Id,
				Content:     c.Content,
				VectorScore: c.VectorScore,
				RerankScore: c.VectorScore,
				FinalScore:  c.VectorScore,
				Kind:        c.Kind,
			},
			order: offset + i,
		}
	}

	if len(batch) <= topK {
		monitor.RerankSkipped(index, len(batch), topK)
	} else if scores, err := r.scores(ctx, query, batch); err != nil {
		r.logger.Warn("rerank failed, falling back to vector scores", "batch", index, "candidates", len(batch), "err", err)
		monitor.RerankFallback(index, err)
	} else {
		monitor.AfterRerank(index, scores)
		for i := range out {
			out[i].RerankScore = scores[i]
			out[i].Reranked = true
			out[i].FinalScore = RerankWeight*scores[i] + VectorWeight*out[i].VectorScore
		}
	}

	sortRanked(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// scores asks the model for one relevance score per candidate.
func (r *Reranker) scores(ctx context.Context, query string, batch []core.RerankCandidate) ([]float64, error) {
	prompt := buildRerankPrompt(query, batch, r.previewLength)
	reply, err := governor.Call(ctx, r.governor, governor.EstimateTokens(rerankSystemPrompt, prompt),
		func(ctx context.Context) (string, int, error) {
			c, err := r.completer.Complete(ctx, rerankSystemPrompt, prompt)
			return c.Text, c.TokensUsed, err
		})
	if err != nil {
		return nil, err
	}
	return parseScores(reply, len(batch))
}

func sortRanked(results []ranked) {
	slices.SortFunc(results, func(a, b ranked) int {
		if c := cmp.Compare(b.FinalScore, a.FinalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})
}

func strip(results []ranked) []core.SearchResult {
	out := make([]core.SearchResult, len(results))
	for i, r := range results {
		out[i] = r.SearchResult
	}
	return out
}
