package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
)

// promptOverheadTokens approximates the fixed instructions sent with every
// extraction call, for quota estimates.
const promptOverheadTokens = 400

// entityStage extracts named entities through the governed extractor.
type entityStage struct {
	extractor  ai.EntityExtractor
	governor   *governor.Governor
	retryDelay time.Duration
	logger     *slog.Logger
}

func (s *entityStage) extract(ctx context.Context, unit *core.ContentUnit) ([]core.Entity, error) {
	estimate := governor.EstimateTokens(unit.RawText) + promptOverheadTokens
	return retryInference(ctx, s.retryDelay, s.logger, func(ctx context.Context) ([]core.Entity, error) {
		return governor.Call(ctx, s.governor, estimate, func(ctx context.Context) ([]core.Entity, int, error) {
			found, err := s.extractor.ExtractEntities(ctx, unit.RawText)
			if err != nil {
				return nil, found.TokensUsed, err
			}
			return core.DedupeEntities(found.Entities), found.TokensUsed, nil
		})
	})
}
