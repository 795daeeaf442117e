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


package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/core"
)

// stageOutcome controls how runStage treats a stage.
type stageOutcome struct {
	// skip records the stage as skipped without running it.
	skip bool
	// degradeOnQuota turns a quota rejection into a skip instead of a failure.
	degradeOnQuota bool
}

// runStage executes fn and records the stage's StageResult on run. Skipped
// stages always record a zero duration. Failures are returned wrapped in a
// core.StageError.
func runStage[T any](ctx context.Context, run *core.PipelineRun, stage core.StageName, how stageOutcome,
	logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if how.skip {
		run.Record(core.StageResult{Stage: stage, Skipped: true})
		return zero, nil
	}

	start := time.Now()
	payload, err := fn(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		run.Record(core.StageResult{Stage: stage, Duration: elapsed, Payload: payload})
		return payload, nil
	case how.degradeOnQuota && errors.Is(err, core.ErrQuotaExceeded):
		logger.Warn("quota exhausted, skipping stage", "stage", stage, "error", err)
		run.Record(core.StageResult{Stage: stage, Skipped: true, Err: err.Error()})
		return zero, nil
	default:
		logger.Debug("stage failed", "stage", stage, "elapsed", elapsed, "error", err)
		run.Record(core.StageResult{Stage: stage, Duration: elapsed, Err: err.Error()})
		return zero, core.NewStageError(stage, err)
	}
}
