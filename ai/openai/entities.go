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


package openai

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/tmc/langchaingo/llms"
)

// EntityExtractor implements ai.EntityExtractor using OpenAI-compatible chat APIs.
type EntityExtractor struct {
	chat *chatClient
}

// entityReply is the JSON shape the model is asked to produce.
type entityReply struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
}

func newEntityExtractor(model llms.Model, config *ai.Config) *EntityExtractor {
	return &EntityExtractor{
		chat: &chatClient{
			model:   model,
			timeout: config.RequestTimeout,
			logger:  slog.Default().With("component", "openai-entities"),
		},
	}
}

// NewEntityExtractor creates a new entity extractor using the provided configuration.
//
// Returns ai.EntityExtractor interface to enforce abstraction.
func NewEntityExtractor(config *ai.Config) (ai.EntityExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	model, err := newChatModel(config)
	if err != nil {
		return nil, err
	}
	return newEntityExtractor(model, config), nil
}

// ExtractEntities asks the model for the named entities in text. Types
// outside ai.EntityTypes are reported as "other" and duplicates are dropped.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text string) (ai.EntityExtraction, error) {
	var reply entityReply
	tokens, err := e.chat.generateJSON(ctx, entitySystemPrompt(), collapseWhitespace(text), &reply)
	if err != nil {
		return ai.EntityExtraction{TokensUsed: tokens}, err
	}

	entities := make([]core.Entity, 0, len(reply.Entities))
	for _, raw := range reply.Entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}
		entities = append(entities, core.Entity{Name: name, Type: normalizeEntityType(raw.Type)})
	}
	entities = core.DedupeEntities(entities)

	e.chat.logger.Debug("extracted entities", "total", len(reply.Entities), "kept", len(entities))
	return ai.EntityExtraction{Entities: entities, TokensUsed: tokens}, nil
}

func normalizeEntityType(t string) string {
	t = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_")
	if slices.Contains(ai.EntityTypes, t) {
		return t
	}
	return "other"
}
