package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/core"
)

// DefaultRetryDelay is the pause before the single retry of a failed
// inference call.
const DefaultRetryDelay = 250 * time.Millisecond

// retryInference calls fn a second time after delay when the first attempt
// fails with core.ErrInferenceCall. Configuration, quota and parse errors are
// returned as is.
func retryInference[T any](ctx context.Context, delay time.Duration, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil || !errors.Is(err, core.ErrInferenceCall) || errors.Is(err, core.ErrConfiguration) {
		return result, err
	}

	logger.Debug("inference call failed, retrying once", "delay", delay, "error", err)
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		var zero T
		return zero, ctx.Err()
	case <-timer.C:
	}
	return fn(ctx)
}
