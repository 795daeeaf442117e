package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/recollect/ai/mock"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/stagecache"
	"github.com/poiesic/recollect/storage"
	"github.com/poiesic/recollect/storage/badger"
	"github.com/poiesic/recollect/storage/chromem"
	"github.com/stretchr/testify/require"
)

const testDims = 8

// fixture wires a pipeline over in-memory stores and mock AI services.
type fixture struct {
	repo      *badger.MemoryRepository
	kv        *badger.KeyValueStore
	index     *chromem.Index
	provider  *mock.MockProvider
	cache     *stagecache.Cache
	gov       *governor.Governor
	embedGov  *governor.Governor
	embedding *EmbeddingStage
	indexer   *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, kv, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	index, err := chromem.Open(context.Background(), "", testDims)
	require.NoError(t, err)

	cache, err := stagecache.New()
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	gov, err := governor.New(kv)
	require.NoError(t, err)

	provider := mock.NewMockProviderWithServices(
		mock.NewMockEmbedder(testDims),
		mock.NewMockEntityExtractor(),
		mock.NewMockCommitmentExtractor(),
		mock.NewMockCompleter(""),
	)

	f := &fixture{
		repo:     repo,
		kv:       kv,
		index:    index,
		provider: provider,
		cache:    cache,
		gov:      gov,
		embedGov: gov,
	}
	f.rebuild(t)
	return f
}

// rebuild recreates the embedding stage and indexer after a dependency is
// swapped.
func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	var err error
	f.embedding, err = NewEmbeddingStage(f.provider.Embedder(), f.cache, f.embedGov, testDims,
		WithEmbeddingRetryDelay(time.Millisecond))
	require.NoError(t, err)
	f.indexer, err = NewIndexer(f.repo, f.index, nil)
	require.NoError(t, err)
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	p, err := NewPipeline(f.provider, f.gov, f.embedding, f.indexer, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

// exhaustedGovernor returns a governor whose call window is already full.
func exhaustedGovernor(t *testing.T, store storage.KeyValueStore) *governor.Governor {
	t.Helper()
	fixed := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	gov, err := governor.New(store,
		governor.WithCallsPerMinute(1),
		governor.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	gov.Track(context.Background(), 0)
	require.False(t, gov.Check(context.Background()).Allowed)
	return gov
}

// failingIndex wraps a vector index and fails every upsert.
type failingIndex struct {
	storage.VectorIndex
}

var errIndexDown = errors.New("index unavailable")

func (f failingIndex) Upsert(ctx context.Context, docs ...storage.VectorDocument) error {
	return errIndexDown
}

// captureRecorder keeps every run it receives.
type captureRecorder struct {
	runs chan *core.RunRecord
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{runs: make(chan *core.RunRecord, 64)}
}

func (r *captureRecorder) RecordRun(ctx context.Context, run *core.RunRecord) {
	r.runs <- run
}

func unit(text string, source core.SourceType) *core.ContentUnit {
	return core.NewContentUnit(text, source, time.Now().Add(-time.Minute))
}
