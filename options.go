package recollect

import (
	"log/slog"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/ingestion"
	"github.com/poiesic/recollect/search"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	aiConfig        *ai.Config
	provider        ai.AIProvider
	redisURL        string
	inMemory        bool
	freshIndex      bool
	logger          *slog.Logger
	governorOpts    []governor.Option
	pipelineOpts    []ingestion.Option
	rerankerOpts    []search.RerankerOption
	searchOpts      []search.Option
	minEntityTokens int
}

// WithAIConfig sets the inference endpoint configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) Option {
	return func(o *engineOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider uses provider instead of connecting to the configured
// endpoint. The AI config still supplies the embedding dimensions and the
// cache namespace. The engine closes the provider.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithRedisURL shares rate-limit counters and cached stage results through
// Redis, so several engines stay within one budget. Without it they live in
// the local store.
func WithRedisURL(url string) Option {
	return func(o *engineOptions) {
		o.redisURL = url
	}
}

// WithInMemory keeps everything in memory. The path passed to Open is
// ignored.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithFreshIndex discards the persisted vector index on open. Use it with
// Reindex when the embedding dimensions change.
func WithFreshIndex() Option {
	return func(o *engineOptions) {
		o.freshIndex = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGovernorOptions configures the rate governor.
func WithGovernorOptions(opts ...governor.Option) Option {
	return func(o *engineOptions) {
		o.governorOpts = append(o.governorOpts, opts...)
	}
}

// WithPipelineOptions configures the ingestion pipeline.
func WithPipelineOptions(opts ...ingestion.Option) Option {
	return func(o *engineOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithMinEntityTokens sets the pre-filter's entity token threshold.
func WithMinEntityTokens(n int) Option {
	return func(o *engineOptions) {
		o.minEntityTokens = n
	}
}

// WithRerankerOptions configures the reranker.
func WithRerankerOptions(opts ...search.RerankerOption) Option {
	return func(o *engineOptions) {
		o.rerankerOpts = append(o.rerankerOpts, opts...)
	}
}

// WithSearchOptions configures the searcher.
func WithSearchOptions(opts ...search.Option) Option {
	return func(o *engineOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}
