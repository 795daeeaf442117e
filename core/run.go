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


package core

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StagePreFilter  StageName = "prefilter"
	StageEntity     StageName = "entity"
	StageCommitment StageName = "commitment"
	StageImportance StageName = "importance"
	StageTemporal   StageName = "temporal"
	StageEmbedding  StageName = "embedding"
	StageIndexing   StageName = "indexing"
)

// StageOrder is the canonical order results are reported in.
var StageOrder = []StageName{
	StagePreFilter,
	StageEntity,
	StageCommitment,
	StageImportance,
	StageTemporal,
	StageEmbedding,
	StageIndexing,
}

func stageRank(s StageName) int {
	if i := slices.Index(StageOrder, s); i >= 0 {
		return i
	}
	return len(StageOrder)
}

// StageResult records the outcome of one stage in one run.
type StageResult struct {
	Stage    StageName     `json:"stage"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
	Payload  any           `json:"-"`
	Err      string        `json:"error,omitempty"`
}

// DurationMs reports the stage duration in milliseconds.
func (r StageResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// RunState is a pipeline run's position in its state machine.
type RunState string

const (
	RunPending     RunState = "PENDING"
	RunPreFiltered RunState = "PRE_FILTERED"
	RunExtracting  RunState = "EXTRACTING"
	RunEmbedding   RunState = "EMBEDDING"
	RunIndexing    RunState = "INDEXING"
	RunComplete    RunState = "COMPLETE"
	RunFailed      RunState = "FAILED"
)

var runTransitions = map[RunState]RunState{
	RunPending:     RunPreFiltered,
	RunPreFiltered: RunExtracting,
	RunExtracting:  RunEmbedding,
	RunEmbedding:   RunIndexing,
	RunIndexing:    RunComplete,
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunComplete || s == RunFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s RunState) CanTransition(next RunState) bool {
	if s.Terminal() {
		return false
	}
	if next == RunFailed {
		return true
	}
	return runTransitions[s] == next
}

// PipelineRun tracks one ContentUnit through the pipeline. Stage results
// are append-only while the run is live and frozen once it reaches a
// terminal state. Safe for concurrent use.
type PipelineRun struct {
	mu sync.Mutex

	RunID         string
	ContentUnitID ID
	StartedAt     time.Time
	CompletedAt   time.Time

	state       RunState
	results     []StageResult
	failedStage StageName
	err         error
}

// NewPipelineRun starts a run in the PENDING state.
func NewPipelineRun(runID string, unitID ID, startedAt time.Time) *PipelineRun {
	return &PipelineRun{
		RunID:         runID,
		ContentUnitID: unitID,
		StartedAt:     startedAt,
		state:         RunPending,
	}
}

// State returns the current state.
func (r *PipelineRun) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transition moves the run to next. Moving to FAILED must go through Fail.
func (r *PipelineRun) Transition(next RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next == RunFailed || !r.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	if next == RunComplete {
		r.freeze()
	}
	return nil
}

// Record appends a stage result. It is a no-op once the run is terminal.
func (r *PipelineRun) Record(result StageResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return false
	}
	r.results = append(r.results, result)
	return true
}

// Fail moves the run to FAILED, remembering the failing stage and cause.
// Failing an already terminal run is a no-op.
func (r *PipelineRun) Fail(stage StageName, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	r.state = RunFailed
	r.failedStage = stage
	r.err = NewStageError(stage, err)
	r.freeze()
}

func (r *PipelineRun) freeze() {
	r.CompletedAt = time.Now()
	slices.SortStableFunc(r.results, func(a, b StageResult) int {
		return stageRank(a.Stage) - stageRank(b.Stage)
	})
}

// Results returns a copy of the recorded stage results in canonical order.
func (r *PipelineRun) Results() []StageResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.results)
	slices.SortStableFunc(out, func(a, b StageResult) int {
		return stageRank(a.Stage) - stageRank(b.Stage)
	})
	return out
}

// Result returns the result recorded for stage, if any.
func (r *PipelineRun) Result(stage StageName) (StageResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Stage == stage {
			return res, true
		}
	}
	return StageResult{}, false
}

// FailedStage returns the stage that failed the run, if any.
func (r *PipelineRun) FailedStage() StageName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedStage
}

// Err returns the error that failed the run.
func (r *PipelineRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Elapsed returns the wall time of a finished run, or time since start.
func (r *PipelineRun) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunRecord is the serializable snapshot of a finished run.
type RunRecord struct {
	RunID         string        `json:"run_id"`
	ContentUnitID ID            `json:"content_unit_id"`
	State         RunState      `json:"state"`
	FailedStage   StageName     `json:"failed_stage,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	Results       []StageResult `json:"results"`
}

// Snapshot captures the run for persistence.
func (r *PipelineRun) Snapshot() RunRecord {
	results := r.Results()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := RunRecord{
		RunID:         r.RunID,
		ContentUnitID: r.ContentUnitID,
		State:         r.state,
		FailedStage:   r.failedStage,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Results:       results,
	}
	if r.err != nil {
		rec.Error = r.err.Error()
	}
	return rec
}

// Total is the wall time of the recorded run.
func (r RunRecord) Total() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
