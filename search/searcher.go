package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/recollect/core"
)

// DefaultOverFetchFactor is how many candidates are retrieved per requested
// result, giving the reranker a meaningful pool.
const DefaultOverFetchFactor = 2

// QueryEmbedder turns query text into a vector in the index's space.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the retrieval API: embed, retrieve, rerank.
type Searcher struct {
	embedder  QueryEmbedder
	retriever *Retriever
	reranker  *Reranker
	overFetch int
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithOverFetchFactor sets how many candidates are retrieved per result.
func WithOverFetchFactor(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return ErrInvalidTopK
		}
		s.overFetch = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(embedder QueryEmbedder, retriever *Retriever, reranker *Reranker, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if reranker == nil {
		return nil, ErrRerankerRequired
	}

	s := &Searcher{
		embedder:  embedder,
		retriever: retriever,
		reranker:  reranker,
		overFetch: DefaultOverFetchFactor,
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns up to topK memories relevant to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, topK, nil)
}

// SearchWithMonitor is Search with callbacks at each step.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) ([]core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	monitor.Start(query, topK)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(vector))

	candidates, err := s.retriever.Search(ctx, vector, topK*s.overFetch)
	if err != nil {
		return nil, err
	}
	monitor.AfterRetrieval(candidates)

	results := s.reranker.rerank(ctx, query, candidates, topK, monitor)
	monitor.Finish(results)
	return results, nil
}
