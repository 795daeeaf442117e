package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/ai/mock"
	"github.com/poiesic/recollect/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewPipeline(nil, f.gov, f.embedding, f.indexer)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewPipeline(f.provider, nil, f.embedding, f.indexer)
	assert.ErrorIs(t, err, ErrGovernorRequired)

	_, err = NewPipeline(f.provider, f.gov, nil, f.indexer)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(f.provider, f.gov, f.embedding, nil)
	assert.ErrorIs(t, err, ErrIndexerRequired)

	_, err = NewPipeline(f.provider, f.gov, f.embedding, f.indexer, WithBudget(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestPipeline_Commitment(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	u := unit("I will send the report to John by Friday.", core.SourceEmail)
	run, err := p.Process(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, run.State())

	commitment, ok := run.Result(core.StageCommitment)
	require.True(t, ok)
	assert.False(t, commitment.Skipped)

	entity, ok := run.Result(core.StageEntity)
	require.True(t, ok)
	assert.False(t, entity.Skipped)

	memory, err := f.repo.GetMemory(ctx, u.Id)
	require.NoError(t, err)
	assert.Equal(t, u.RawText, memory.Content)
	assert.Equal(t, 1, memory.Version)
	assert.Len(t, memory.Embedding, testDims)
	require.Len(t, memory.Commitments, 1)
	assert.Contains(t, memory.Entities, core.Entity{Name: "John", Type: "other"})
	require.NotEmpty(t, memory.TemporalRefs)
	assert.Equal(t, "Friday", memory.TemporalRefs[0].Text)
	assert.Greater(t, memory.Importance, 0.0)

	has, err := f.index.Has(ctx, u.Id)
	require.NoError(t, err)
	assert.True(t, has)

	pending, err := f.repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPipeline_CasualContentSkipsExtraction(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	run, err := p.Process(context.Background(), unit("Random thought: the weather is nice today.", core.SourceNote))
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, run.State())

	for _, stage := range []core.StageName{core.StageEntity, core.StageCommitment} {
		res, ok := run.Result(stage)
		require.True(t, ok, stage)
		assert.True(t, res.Skipped, stage)
		assert.Equal(t, int64(0), res.DurationMs(), stage)
	}
	assert.Equal(t, 0, f.provider.GetMockEntityExtractor().CallCount())
	assert.Equal(t, 0, f.provider.GetMockCommitmentExtractor().CallCount())

	// every stage is reported, in canonical order
	results := run.Results()
	require.Len(t, results, len(core.StageOrder))
	for i, res := range results {
		assert.Equal(t, core.StageOrder[i], res.Stage)
	}
}

func TestPipeline_SkippedEntityAlwaysZeroDuration(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	filter := NewPreFilter()

	texts := []string{
		"lol ok",
		"meh",
		"just thinking about stuff",
		"haha that was funny honestly",
		"Pick up milk",
		"I will call you tomorrow",
	}
	for _, text := range texts {
		run, err := p.Process(context.Background(), unit(text, core.SourceNote))
		require.NoError(t, err, text)
		if !filter.ShouldSkip(text).SkipEntity {
			continue
		}
		res, ok := run.Result(core.StageEntity)
		require.True(t, ok, text)
		assert.True(t, res.Skipped, text)
		assert.Zero(t, res.Duration, text)
	}
}

func TestPipeline_ExtractionQuotaDegradesToSkip(t *testing.T) {
	f := newFixture(t)
	f.gov = exhaustedGovernor(t, f.kv)
	p := f.pipeline(t)

	run, err := p.Process(context.Background(), unit("I will send the report to John by Friday.", core.SourceEmail))
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, run.State())

	for _, stage := range []core.StageName{core.StageEntity, core.StageCommitment} {
		res, ok := run.Result(stage)
		require.True(t, ok)
		assert.True(t, res.Skipped, stage)
		assert.Contains(t, res.Err, "quota", stage)
	}
	assert.Equal(t, 0, f.provider.GetMockEntityExtractor().CallCount())
}

func TestPipeline_EmbeddingQuotaFailsRun(t *testing.T) {
	f := newFixture(t)
	f.embedGov = exhaustedGovernor(t, f.kv)
	f.rebuild(t)
	p := f.pipeline(t)

	u := unit("Dentist appointment on Friday at 3pm", core.SourceCalendar)
	run, err := p.Process(context.Background(), u)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrQuotaExceeded)
	assert.Equal(t, core.RunFailed, run.State())
	assert.Equal(t, core.StageEmbedding, run.FailedStage())

	_, err = f.repo.GetMemory(context.Background(), u.Id)
	assert.Error(t, err)
}

func TestPipeline_ExtractionFailureFailsRun(t *testing.T) {
	f := newFixture(t)
	f.provider.GetMockEntityExtractor().ExtractEntitiesFunc = func(ctx context.Context, text string) (ai.EntityExtraction, error) {
		return ai.EntityExtraction{}, core.ErrParse
	}
	p := f.pipeline(t)

	u := unit("Lunch with Priya at Bar Tartine on Friday.", core.SourceNote)
	run, err := p.Process(context.Background(), u)
	require.Error(t, err)

	var stageErr *core.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, core.StageEntity, stageErr.Stage)
	assert.Equal(t, core.RunFailed, run.State())
	assert.Equal(t, core.StageEntity, run.FailedStage())

	count, err := f.repo.CountMemories(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.index.Count())
}

func TestPipeline_RetriesInferenceFailureOnce(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.provider.GetMockCommitmentExtractor().ExtractCommitmentsFunc = func(ctx context.Context, text string, at time.Time) (ai.CommitmentExtraction, error) {
		if calls.Add(1) == 1 {
			return ai.CommitmentExtraction{}, core.ErrInferenceCall
		}
		return ai.CommitmentExtraction{Commitments: []ai.ExtractedCommitment{{Text: "call Sam", Due: "tomorrow"}}}, nil
	}
	p := f.pipeline(t)

	u := unit("Need to call Sam tomorrow", core.SourceNote)
	run, err := p.Process(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, run.State())
	assert.Equal(t, int32(2), calls.Load())

	memory, err := f.repo.GetMemory(context.Background(), u.Id)
	require.NoError(t, err)
	require.Len(t, memory.Commitments, 1)
	require.NotNil(t, memory.Commitments[0].DueDate)
	assert.Equal(t, u.ReceivedAt.AddDate(0, 0, 1).Day(), memory.Commitments[0].DueDate.Day())
}

func TestPipeline_PersistentInferenceFailureFailsRun(t *testing.T) {
	f := newFixture(t)
	f.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, core.ErrInferenceCall
	}
	p := f.pipeline(t)

	run, err := p.Process(context.Background(), unit("Standup moved to 10am", core.SourceCalendar))
	assert.ErrorIs(t, err, core.ErrInferenceCall)
	assert.Equal(t, core.StageEmbedding, run.FailedStage())
	assert.Equal(t, 2, f.provider.GetMockEmbedder().CallCount())
}

func TestPipeline_DimensionMismatchIsFatal(t *testing.T) {
	f := newFixture(t)
	f.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	p := f.pipeline(t)

	run, err := p.Process(context.Background(), unit("Standup moved to 10am", core.SourceCalendar))
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Equal(t, core.RunFailed, run.State())
	assert.Equal(t, 1, f.provider.GetMockEmbedder().CallCount())
}

func TestPipeline_BudgetTimeout(t *testing.T) {
	f := newFixture(t)
	f.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := f.pipeline(t, WithBudget(50*time.Millisecond))

	u := unit("Quarterly review with Dana on Thursday", core.SourceCalendar)
	run, err := p.Process(context.Background(), u)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, core.RunFailed, run.State())
	assert.Equal(t, core.StageEmbedding, run.FailedStage())

	count, err := f.repo.CountMemories(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.index.Count())
}

func TestPipeline_VectorFailureLeavesNothingIndexed(t *testing.T) {
	f := newFixture(t)
	var err error
	f.indexer, err = NewIndexer(f.repo, failingIndex{f.index}, nil)
	require.NoError(t, err)
	p := f.pipeline(t)
	ctx := context.Background()

	u := unit("I will send the report to John by Friday.", core.SourceEmail)
	run, err := p.Process(ctx, u)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Equal(t, core.RunFailed, run.State())
	assert.Equal(t, core.StageIndexing, run.FailedStage())

	has, err := f.index.Has(ctx, u.Id)
	require.NoError(t, err)
	assert.False(t, has)

	vec, err := f.embedding.Embed(ctx, u.RawText)
	require.NoError(t, err)
	matches, err := f.index.Query(ctx, vec, 10)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, u.Id, m.Id)
	}

	_, err = f.repo.GetMemory(ctx, u.Id)
	assert.Error(t, err)
	pending, err := f.repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPipeline_RejectsUnitInFlight(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.provider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		close(started)
		<-release
		return mock.DeterministicVector(text, testDims), nil
	}
	p := f.pipeline(t)

	u := unit("Book flights to Lisbon", core.SourceNote)
	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), u)
		done <- err
	}()

	<-started
	run, err := p.Process(context.Background(), u)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)

	close(release)
	<-done
}

func TestPipeline_InvalidUnit(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	run, err := p.Process(context.Background(), &core.ContentUnit{RawText: "  ", SourceType: core.SourceNote})
	assert.Nil(t, run)
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestPipeline_ReprocessBumpsVersion(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	u := unit("Renew passport before March", core.SourceNote)
	_, err := p.Process(ctx, u)
	require.NoError(t, err)
	_, err = p.Process(ctx, u)
	require.NoError(t, err)

	memory, err := f.repo.GetMemory(ctx, u.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, memory.Version)
	assert.Equal(t, 1, f.index.Count())
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)
	recorder := newCaptureRecorder()
	p := f.pipeline(t, WithPoolSize(3), WithRecorders(recorder, NewLogRecorder(nil)))

	texts := []string{
		"Dentist appointment on Friday at 3pm",
		"Random thought: the weather is nice today.",
		"Please send Maria the invoice by 2025-03-01",
		"Team offsite next week in Denver",
		"lol",
	}
	units := make([]*core.ContentUnit, len(texts))
	for i, text := range texts {
		units[i] = unit(text, core.SourceNote)
	}

	runs, err := p.IngestBatch(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, runs, len(units))
	for i, run := range runs {
		require.NotNil(t, run)
		assert.Equal(t, units[i].Id, run.ContentUnitID)
		assert.Equal(t, core.RunComplete, run.State())
	}

	count, err := f.repo.CountMemories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(units), count)

	for range units {
		select {
		case rec := <-recorder.runs:
			assert.Equal(t, core.RunComplete, rec.State)
			assert.Len(t, rec.Results, len(core.StageOrder))
		case <-time.After(time.Second):
			t.Fatal("recorder did not receive every run")
		}
	}
}
