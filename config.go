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


package recollect

import (
	"fmt"
	"os"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/ingestion"
	"github.com/poiesic/recollect/search"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk engine configuration. Zero values keep the
// package defaults.
type FileConfig struct {
	DataDir  string         `yaml:"data_dir"`
	RedisURL string         `yaml:"redis_url"`
	AI       AIFileConfig   `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Governor GovernorConfig `yaml:"governor"`
	Search   SearchConfig   `yaml:"search"`
}

type AIFileConfig struct {
	EmbeddingHost       string        `yaml:"embedding_host"`
	ChatHost            string        `yaml:"chat_host"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	ChatModel           string        `yaml:"chat_model"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions"`
	APIKey              string        `yaml:"api_key"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
}

type PipelineConfig struct {
	PoolSize        int           `yaml:"pool_size"`
	Budget          time.Duration `yaml:"budget"`
	MinEntityTokens int           `yaml:"min_entity_tokens"`
}

type GovernorConfig struct {
	CallsPerMinute int64 `yaml:"calls_per_minute"`
	TokensPerHour  int64 `yaml:"tokens_per_hour"`
}

type SearchConfig struct {
	OverFetchFactor int `yaml:"over_fetch_factor"`
	RerankBatchSize int `yaml:"rerank_batch_size"`
	PreviewLength   int `yaml:"preview_length"`
}

// LoadFileConfig reads a YAML configuration file. The API key may also come
// from RECOLLECT_API_KEY.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", core.ErrConfiguration, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", core.ErrConfiguration, path, err)
	}
	if fc.AI.APIKey == "" {
		fc.AI.APIKey = os.Getenv("RECOLLECT_API_KEY")
	}
	return &fc, nil
}

// AIConfig overlays the file's AI section on ai.DefaultConfig().
func (fc *FileConfig) AIConfig() *ai.Config {
	cfg := ai.DefaultConfig()
	a := fc.AI
	if a.EmbeddingHost != "" {
		cfg.EmbeddingHost = a.EmbeddingHost
	}
	if a.ChatHost != "" {
		cfg.ChatHost = a.ChatHost
	}
	if a.EmbeddingModel != "" {
		cfg.EmbeddingModel = a.EmbeddingModel
	}
	if a.ChatModel != "" {
		cfg.ChatModel = a.ChatModel
	}
	if a.EmbeddingDimensions != 0 {
		cfg.EmbeddingDimensions = a.EmbeddingDimensions
	}
	if a.APIKey != "" {
		cfg.APIKey = a.APIKey
	}
	if a.RequestTimeout != 0 {
		cfg.RequestTimeout = a.RequestTimeout
	}
	return cfg
}

// Options converts the file into engine options.
func (fc *FileConfig) Options() []Option {
	opts := []Option{WithAIConfig(fc.AIConfig())}
	if fc.RedisURL != "" {
		opts = append(opts, WithRedisURL(fc.RedisURL))
	}

	var pipeline []ingestion.Option
	if fc.Pipeline.PoolSize > 0 {
		pipeline = append(pipeline, ingestion.WithPoolSize(fc.Pipeline.PoolSize))
	}
	if fc.Pipeline.Budget > 0 {
		pipeline = append(pipeline, ingestion.WithBudget(fc.Pipeline.Budget))
	}
	if len(pipeline) > 0 {
		opts = append(opts, WithPipelineOptions(pipeline...))
	}
	if fc.Pipeline.MinEntityTokens > 0 {
		opts = append(opts, WithMinEntityTokens(fc.Pipeline.MinEntityTokens))
	}

	var gov []governor.Option
	if fc.Governor.CallsPerMinute > 0 {
		gov = append(gov, governor.WithCallsPerMinute(fc.Governor.CallsPerMinute))
	}
	if fc.Governor.TokensPerHour > 0 {
		gov = append(gov, governor.WithTokensPerHour(fc.Governor.TokensPerHour))
	}
	if len(gov) > 0 {
		opts = append(opts, WithGovernorOptions(gov...))
	}

	if fc.Search.OverFetchFactor > 0 {
		opts = append(opts, WithSearchOptions(search.WithOverFetchFactor(fc.Search.OverFetchFactor)))
	}
	var rerank []search.RerankerOption
	if fc.Search.RerankBatchSize > 0 {
		rerank = append(rerank, search.WithBatchSize(fc.Search.RerankBatchSize))
	}
	if fc.Search.PreviewLength > 0 {
		rerank = append(rerank, search.WithPreviewLength(fc.Search.PreviewLength))
	}
	if len(rerank) > 0 {
		opts = append(opts, WithRerankerOptions(rerank...))
	}
	return opts
}
