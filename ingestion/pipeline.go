package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/stagecache"
	"golang.org/x/sync/errgroup"
)

// DefaultBudget is the wall-clock limit for one pipeline run.
const DefaultBudget = 30 * time.Second

// Pipeline orchestrates the processing of content units into Memories.
// Runs for different units proceed concurrently on a worker pool; a unit
// already in flight is rejected rather than processed twice.
type Pipeline struct {
	prefilter   *PreFilter
	entities    *entityStage
	commitments *commitmentStage
	importance  importanceStage
	temporal    temporalStage
	embedding   *EmbeddingStage
	indexer     *Indexer
	recorders   []RunRecorder
	pool        *ants.Pool
	budget      time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[core.ID]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for IngestBatch.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithBudget sets the wall-clock budget for each run.
// Default is DefaultBudget.
func WithBudget(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: pipeline budget must be positive", core.ErrConfiguration)
		}
		p.budget = d
		return nil
	}
}

// WithPreFilter replaces the default PreFilter.
func WithPreFilter(f *PreFilter) Option {
	return func(p *Pipeline) error {
		if f != nil {
			p.prefilter = f
		}
		return nil
	}
}

// WithRecorders adds recorders that receive every finished run.
func WithRecorders(recorders ...RunRecorder) Option {
	return func(p *Pipeline) error {
		p.recorders = append(p.recorders, recorders...)
		return nil
	}
}

// WithRetryDelay sets the pause before an extraction call is retried.
// Default is DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.retryDelay = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. Extraction calls go through
// gov; the embedding stage carries its own governor and cache.
func NewPipeline(
	provider ai.AIProvider,
	gov *governor.Governor,
	embedding *EmbeddingStage,
	indexer *Indexer,
	opts ...Option,
) (*Pipeline, error) {
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if gov == nil {
		return nil, ErrGovernorRequired
	}
	if embedding == nil {
		return nil, ErrEmbedderRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}

	p := &Pipeline{
		prefilter:  NewPreFilter(),
		embedding:  embedding,
		indexer:    indexer,
		budget:     DefaultBudget,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		inflight:   make(map[core.ID]struct{}),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.pool == nil {
		if err := WithPoolSize(runtime.NumCPU() / 2)(p); err != nil {
			return nil, err
		}
	}

	p.logger = p.logger.With("component", "pipeline")
	p.entities = &entityStage{
		extractor:  provider.EntityExtractor(),
		governor:   gov,
		retryDelay: p.retryDelay,
		logger:     p.logger.With("stage", core.StageEntity),
	}
	p.commitments = &commitmentStage{
		extractor:  provider.CommitmentExtractor(),
		governor:   gov,
		retryDelay: p.retryDelay,
		logger:     p.logger.With("stage", core.StageCommitment),
	}
	return p, nil
}

// Process runs one content unit through the pipeline and returns its run.
// A failed run is returned together with an error carrying the failing
// stage as a core.StageError. Validation failures and duplicate submissions
// return a nil run.
func (p *Pipeline) Process(ctx context.Context, unit *core.ContentUnit) (*core.PipelineRun, error) {
	if err := core.ValidateContentUnit(unit); err != nil {
		return nil, err
	}
	if unit.Id == 0 {
		withID := *unit
		withID.Id = core.IDFromContent(unit.RawText)
		unit = &withID
	}
	if !p.acquire(unit.Id) {
		return nil, ErrAlreadyProcessing
	}
	defer p.release(unit.Id)

	run := core.NewPipelineRun(uuid.NewString(), unit.Id, time.Now())
	runCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	err := p.execute(runCtx, run, unit)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
			err = fmt.Errorf("%w: budget %s exceeded: %w", core.ErrTimeout, p.budget, err)
		}
		run.Fail(failedStage(err, run.State()), err)
		err = run.Err()
		p.logger.Warn("pipeline run failed", "run_id", run.RunID, "stage", run.FailedStage(), "err", err)
	}

	p.record(ctx, run)
	return run, err
}

func (p *Pipeline) execute(ctx context.Context, run *core.PipelineRun, unit *core.ContentUnit) error {
	verdict, _ := runStage(ctx, run, core.StagePreFilter, stageOutcome{}, p.logger,
		func(ctx context.Context) (Verdict, error) {
			return p.verdict(ctx, unit.RawText), nil
		})
	if err := run.Transition(core.RunPreFiltered); err != nil {
		return err
	}
	if err := run.Transition(core.RunExtracting); err != nil {
		return err
	}

	var (
		entities    []core.Entity
		commitments []core.Commitment
		importance  float64
		refs        []core.TemporalRef
		vector      []float32
	)

	outer, octx := errgroup.WithContext(ctx)
	outer.Go(func() error {
		inner, ictx := errgroup.WithContext(octx)
		inner.Go(func() (err error) {
			entities, err = runStage(ictx, run, core.StageEntity,
				stageOutcome{skip: verdict.SkipEntity, degradeOnQuota: true}, p.logger,
				func(ctx context.Context) ([]core.Entity, error) { return p.entities.extract(ctx, unit) })
			return err
		})
		inner.Go(func() (err error) {
			commitments, err = runStage(ictx, run, core.StageCommitment,
				stageOutcome{skip: verdict.SkipCommitment, degradeOnQuota: true}, p.logger,
				func(ctx context.Context) ([]core.Commitment, error) { return p.commitments.extract(ctx, unit) })
			return err
		})
		inner.Go(func() (err error) {
			importance, err = runStage(ictx, run, core.StageImportance, stageOutcome{}, p.logger,
				func(ctx context.Context) (float64, error) { return p.importance.extract(ctx, unit) })
			return err
		})
		inner.Go(func() (err error) {
			refs, err = runStage(ictx, run, core.StageTemporal, stageOutcome{}, p.logger,
				func(ctx context.Context) ([]core.TemporalRef, error) { return p.temporal.extract(ctx, unit) })
			return err
		})
		if err := inner.Wait(); err != nil {
			return err
		}
		return run.Transition(core.RunEmbedding)
	})
	outer.Go(func() (err error) {
		vector, err = runStage(octx, run, core.StageEmbedding, stageOutcome{}, p.logger,
			func(ctx context.Context) ([]float32, error) { return p.embedding.Embed(ctx, unit.RawText) })
		return err
	})
	if err := outer.Wait(); err != nil {
		return err
	}

	if err := run.Transition(core.RunIndexing); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return core.NewStageError(core.StageIndexing, fmt.Errorf("%w: %w", core.ErrTimeout, err))
	}

	memory := &core.Memory{
		Id:           unit.Id,
		Content:      unit.RawText,
		SourceType:   unit.SourceType,
		Embedding:    vector,
		Entities:     entities,
		Commitments:  commitments,
		TemporalRefs: refs,
		Importance:   importance,
		CreatedAt:    unit.ReceivedAt,
	}
	if _, err := runStage(ctx, run, core.StageIndexing, stageOutcome{}, p.logger,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, p.indexer.Write(ctx, memory) }); err != nil {
		return err
	}
	return run.Transition(core.RunComplete)
}

// verdict returns the pre-filter verdict for text, consulting the stage
// cache first.
func (p *Pipeline) verdict(ctx context.Context, text string) Verdict {
	key := stagecache.Fingerprint("verdict:"+strconv.Itoa(p.prefilter.minEntityTokens), text)
	if v, ok := stagecache.GetJSON[Verdict](ctx, p.embedding.cache, key); ok {
		return v
	}
	v := p.prefilter.ShouldSkip(text)
	stagecache.PutJSON(ctx, p.embedding.cache, key, v, 0)
	return v
}

// IngestBatch processes units concurrently on the worker pool. Runs are
// returned in input order; entries are nil for units that never started.
// The returned error joins every unit's error.
func (p *Pipeline) IngestBatch(ctx context.Context, units []*core.ContentUnit) ([]*core.PipelineRun, error) {
	runs := make([]*core.PipelineRun, len(units))
	errs := make([]error, len(units))

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			runs[i], errs[i] = p.Process(ctx, unit)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	p.logger.Debug("batch finished", "units", len(units))
	return runs, errors.Join(errs...)
}

// Reconcile resolves memories left half-indexed by an earlier failure.
func (p *Pipeline) Reconcile(ctx context.Context) (ReconcileReport, error) {
	return p.indexer.Reconcile(ctx)
}

func (p *Pipeline) record(ctx context.Context, run *core.PipelineRun) {
	if len(p.recorders) == 0 {
		return
	}
	snapshot := run.Snapshot()
	for _, r := range p.recorders {
		r.RecordRun(ctx, &snapshot)
	}
}

func (p *Pipeline) acquire(id core.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Pipeline) release(id core.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// failedStage picks the stage to blame for err.
func failedStage(err error, state core.RunState) core.StageName {
	var se *core.StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	switch state {
	case core.RunEmbedding:
		return core.StageEmbedding
	case core.RunIndexing:
		return core.StageIndexing
	default:
		return core.StagePreFilter
	}
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
