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
	"strings"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/tmc/langchaingo/llms"
)

// CommitmentExtractor implements ai.CommitmentExtractor using OpenAI-compatible chat APIs.
type CommitmentExtractor struct {
	chat *chatClient
}

type commitmentReply struct {
	Commitments []ai.ExtractedCommitment `json:"commitments"`
}

func newCommitmentExtractor(model llms.Model, config *ai.Config) *CommitmentExtractor {
	return &CommitmentExtractor{
		chat: &chatClient{
			model:   model,
			timeout: config.RequestTimeout,
			logger:  slog.Default().With("component", "openai-commitments"),
		},
	}
}

// NewCommitmentExtractor creates a new commitment extractor using the provided configuration.
//
// Returns ai.CommitmentExtractor interface to enforce abstraction.
func NewCommitmentExtractor(config *ai.Config) (ai.CommitmentExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	model, err := newChatModel(config)
	if err != nil {
		return nil, err
	}
	return newCommitmentExtractor(model, config), nil
}

// ExtractCommitments asks the model for the promises and obligations in text.
func (e *CommitmentExtractor) ExtractCommitments(ctx context.Context, text string, receivedAt time.Time) (ai.CommitmentExtraction, error) {
	var reply commitmentReply
	user := buildCommitmentUserPrompt(collapseWhitespace(text), receivedAt)
	tokens, err := e.chat.generateJSON(ctx, commitmentSystemPrompt, user, &reply)
	if err != nil {
		return ai.CommitmentExtraction{TokensUsed: tokens}, err
	}

	commitments := make([]ai.ExtractedCommitment, 0, len(reply.Commitments))
	for _, c := range reply.Commitments {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		c.Due = strings.TrimSpace(c.Due)
		c.Assignee = strings.TrimSpace(c.Assignee)
		commitments = append(commitments, c)
	}

	e.chat.logger.Debug("extracted commitments", "count", len(commitments))
	return ai.CommitmentExtraction{Commitments: commitments, TokensUsed: tokens}, nil
}
