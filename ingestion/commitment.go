package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
)

// commitmentStage extracts commitments through the governed extractor and
// resolves their due dates against the unit's receipt time.
type commitmentStage struct {
	extractor  ai.CommitmentExtractor
	governor   *governor.Governor
	retryDelay time.Duration
	logger     *slog.Logger
}

func (s *commitmentStage) extract(ctx context.Context, unit *core.ContentUnit) ([]core.Commitment, error) {
	estimate := governor.EstimateTokens(unit.RawText) + promptOverheadTokens
	found, err := retryInference(ctx, s.retryDelay, s.logger, func(ctx context.Context) ([]ai.ExtractedCommitment, error) {
		return governor.Call(ctx, s.governor, estimate, func(ctx context.Context) ([]ai.ExtractedCommitment, int, error) {
			res, err := s.extractor.ExtractCommitments(ctx, unit.RawText, unit.ReceivedAt)
			return res.Commitments, res.TokensUsed, err
		})
	})
	if err != nil {
		return nil, err
	}

	commitments := make([]core.Commitment, 0, len(found))
	for _, c := range found {
		commitment := core.Commitment{Text: c.Text, Assignee: c.Assignee}
		if c.Due != "" {
			if due, ok := ResolveTime(c.Due, unit.ReceivedAt); ok {
				commitment.DueDate = &due
			} else {
				s.logger.Debug("unresolved due date", "due", c.Due)
			}
		}
		commitments = append(commitments, commitment)
	}
	return commitments, nil
}
