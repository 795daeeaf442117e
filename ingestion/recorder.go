package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// RunRecorder receives every finished pipeline run. Implementations must be
// safe for concurrent use and must not block for long.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *core.RunRecord)
}

// LogRecorder writes one structured log line per run.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "pipeline-runs")}
}

// RecordRun logs the run's outcome and per-stage timings.
func (r *LogRecorder) RecordRun(ctx context.Context, run *core.RunRecord) {
	attrs := []any{
		"run_id", run.RunID,
		"content_unit", uint64(run.ContentUnitID),
		"state", run.State,
		"total_ms", run.Total().Milliseconds(),
	}
	for _, res := range run.Results {
		if res.Skipped {
			attrs = append(attrs, string(res.Stage), "skipped")
			continue
		}
		attrs = append(attrs, string(res.Stage)+"_ms", res.DurationMs())
	}
	if run.State == core.RunFailed {
		attrs = append(attrs, "failed_stage", run.FailedStage, "error", run.Error)
		r.logger.Warn("pipeline run failed", attrs...)
		return
	}
	r.logger.Info("pipeline run finished", attrs...)
}

// StoreRecorder appends runs to a storage.RunRepository.
type StoreRecorder struct {
	repo   storage.RunRepository
	logger *slog.Logger
}

// NewStoreRecorder creates a StoreRecorder.
func NewStoreRecorder(repo storage.RunRepository, logger *slog.Logger) (*StoreRecorder, error) {
	if repo == nil {
		return nil, ErrRunRepositoryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRecorder{repo: repo, logger: logger.With("component", "run-store")}, nil
}

// RecordRun persists the run. Failures are logged.
func (r *StoreRecorder) RecordRun(ctx context.Context, run *core.RunRecord) {
	if err := r.repo.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to save pipeline run", "run_id", run.RunID, "err", err)
	}
}

// StageStats aggregates one stage across many runs.
type StageStats struct {
	Stage    core.StageName
	Runs     int
	Skipped  int
	Failed   int
	Mean     time.Duration
	Max      time.Duration
	executed time.Duration
}

// SkipRate is the fraction of runs in which the stage was skipped.
func (s StageStats) SkipRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Skipped) / float64(s.Runs)
}

// RunStats aggregates many runs.
type RunStats struct {
	Runs      int
	Completed int
	Failed    int
	MeanTotal time.Duration
	MaxTotal  time.Duration
	Stages    []StageStats
}

// Summarize aggregates run records. Mean stage durations cover executed
// stages only; skipped stages count toward the skip rate.
func Summarize(runs []*core.RunRecord) RunStats {
	stats := RunStats{Runs: len(runs)}
	byStage := make(map[core.StageName]*StageStats)
	var total time.Duration

	for _, run := range runs {
		switch run.State {
		case core.RunComplete:
			stats.Completed++
		case core.RunFailed:
			stats.Failed++
		}
		t := run.Total()
		total += t
		stats.MaxTotal = max(stats.MaxTotal, t)

		for _, res := range run.Results {
			s, ok := byStage[res.Stage]
			if !ok {
				s = &StageStats{Stage: res.Stage}
				byStage[res.Stage] = s
			}
			s.Runs++
			switch {
			case res.Skipped:
				s.Skipped++
			default:
				s.executed += res.Duration
				s.Max = max(s.Max, res.Duration)
			}
			if res.Err != "" && !res.Skipped {
				s.Failed++
			}
		}
	}

	if stats.Runs > 0 {
		stats.MeanTotal = total / time.Duration(stats.Runs)
	}
	for _, stage := range core.StageOrder {
		s, ok := byStage[stage]
		if !ok {
			continue
		}
		if n := s.Runs - s.Skipped; n > 0 {
			s.Mean = s.executed / time.Duration(n)
		}
		stats.Stages = append(stats.Stages, *s)
	}
	return stats
}
