package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/stagecache"
)

// EmbeddingStage produces fixed-length vectors for text, consulting the
// stage cache before spending an inference call. It serves both ingestion
// and query-time search.
type EmbeddingStage struct {
	embedder   ai.Embedder
	cache      *stagecache.Cache
	governor   *governor.Governor
	dims       int
	namespace  string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// EmbeddingOption configures an EmbeddingStage.
type EmbeddingOption func(*EmbeddingStage)

// WithCacheNamespace scopes cached vectors, typically to the model name, so
// switching models never serves stale vectors.
func WithCacheNamespace(namespace string) EmbeddingOption {
	return func(s *EmbeddingStage) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithCacheTTL sets how long vectors stay cached.
// Default is stagecache.DefaultTTL.
func WithCacheTTL(ttl time.Duration) EmbeddingOption {
	return func(s *EmbeddingStage) {
		s.ttl = ttl
	}
}

// WithEmbeddingRetryDelay sets the pause before retrying a failed call.
func WithEmbeddingRetryDelay(d time.Duration) EmbeddingOption {
	return func(s *EmbeddingStage) {
		s.retryDelay = d
	}
}

// WithEmbeddingLogger sets a custom logger.
func WithEmbeddingLogger(logger *slog.Logger) EmbeddingOption {
	return func(s *EmbeddingStage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEmbeddingStage creates an embedding stage producing vectors of dims length.
func NewEmbeddingStage(embedder ai.Embedder, cache *stagecache.Cache, gov *governor.Governor, dims int, opts ...EmbeddingOption) (*EmbeddingStage, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if gov == nil {
		return nil, ErrGovernorRequired
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", core.ErrConfiguration)
	}

	s := &EmbeddingStage{
		embedder:   embedder,
		cache:      cache,
		governor:   gov,
		dims:       dims,
		namespace:  "embedding",
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// dimensions are part of the key so a reconfigured index never reads old vectors
	s.namespace = s.namespace + ":" + strconv.Itoa(dims)
	s.logger = s.logger.With("component", "embedding-stage")
	return s, nil
}

// Dimensions returns the vector length this stage produces.
func (s *EmbeddingStage) Dimensions() int {
	return s.dims
}

// Embed returns the vector for text. A cache hit costs no inference call.
// A vector of the wrong length is a core.ErrConfiguration and is never
// retried or cached.
func (s *EmbeddingStage) Embed(ctx context.Context, text string) ([]float32, error) {
	key := stagecache.Fingerprint(s.namespace, text)
	if vec, ok := s.cache.GetVector(ctx, key); ok && len(vec) == s.dims {
		s.logger.Debug("embedding cache hit", "key", key)
		return vec, nil
	}

	vec, err := retryInference(ctx, s.retryDelay, s.logger, func(ctx context.Context) ([]float32, error) {
		return governor.Call(ctx, s.governor, governor.EstimateTokens(text), func(ctx context.Context) ([]float32, int, error) {
			v, err := s.embedder.EmbedText(ctx, text)
			return v, 0, err
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkDimensions(vec); err != nil {
		return nil, err
	}

	s.cache.PutVector(ctx, key, vec, s.ttl)
	return vec, nil
}

// EmbedBatch embeds texts in order. Cached texts are served from the cache
// and the rest are embedded with a single governed call.
func (s *EmbeddingStage) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		keys[i] = stagecache.Fingerprint(s.namespace, text)
		if vec, ok := s.cache.GetVector(ctx, keys[i]); ok && len(vec) == s.dims {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := retryInference(ctx, s.retryDelay, s.logger, func(ctx context.Context) ([][]float32, error) {
		return governor.Call(ctx, s.governor, governor.EstimateTokens(pending...), func(ctx context.Context) ([][]float32, int, error) {
			v, err := s.embedder.EmbedTexts(ctx, pending)
			return v, 0, err
		})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", core.ErrInferenceCall, len(vecs), len(pending))
	}

	for j, i := range missing {
		if err := s.checkDimensions(vecs[j]); err != nil {
			return nil, err
		}
		out[i] = vecs[j]
		s.cache.PutVector(ctx, keys[i], vecs[j], s.ttl)
	}
	return out, nil
}

func (s *EmbeddingStage) checkDimensions(vec []float32) error {
	if len(vec) != s.dims {
		s.logger.Error("embedding dimension mismatch", "got", len(vec), "want", s.dims)
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d", core.ErrConfiguration, len(vec), s.dims)
	}
	return nil
}
