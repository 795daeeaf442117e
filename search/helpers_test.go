package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/recollect/ai"
	"github.com/poiesic/recollect/ai/mock"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/governor"
	"github.com/poiesic/recollect/storage"
	"github.com/poiesic/recollect/storage/badger"
	"github.com/stretchr/testify/require"
)

func newKV(t *testing.T) storage.KeyValueStore {
	t.Helper()
	repo, kv, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return kv
}

func newGovernor(t *testing.T) *governor.Governor {
	t.Helper()
	gov, err := governor.New(newKV(t))
	require.NoError(t, err)
	return gov
}

// exhaustedGovernor returns a governor whose call window is already full.
func exhaustedGovernor(t *testing.T) *governor.Governor {
	t.Helper()
	fixed := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	gov, err := governor.New(newKV(t),
		governor.WithCallsPerMinute(1),
		governor.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	gov.Track(context.Background(), 0)
	return gov
}

// passageCount reads the candidate count back out of a rerank prompt.
func passageCount(prompt string) int {
	var n int
	if i := strings.LastIndex(prompt, "exactly "); i >= 0 {
		fmt.Sscanf(prompt[i:], "exactly %d", &n)
	}
	return n
}

// uniformCompleter answers every rerank prompt with the same score for
// each passage.
func uniformCompleter(score float64) *mock.MockCompleter {
	c := mock.NewMockCompleter("")
	c.CompleteFunc = func(ctx context.Context, system, prompt string) (ai.Completion, error) {
		n := passageCount(prompt)
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("%.2f", score)
		}
		return ai.Completion{Text: "[" + strings.Join(parts, ",") + "]"}, nil
	}
	return c
}

func candidates(scores ...float64) []core.RerankCandidate {
	out := make([]core.RerankCandidate, len(scores))
	for i, s := range scores {
		out[i] = core.RerankCandidate{
			Id:          core.ID(i + 1),
			Content:     fmt.Sprintf("memory number %d", i+1),
			VectorScore: s,
			Kind:        core.SourceNote,
		}
	}
	return out
}

func ids(results []core.SearchResult) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.Id
	}
	return out
}

// recordingMonitor counts hook invocations.
type recordingMonitor struct {
	mu        sync.Mutex
	started   bool
	dims      int
	retrieved int
	skipped   int
	reranked  int
	fallbacks []error
	finished  []core.SearchResult
}

func (m *recordingMonitor) Start(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

func (m *recordingMonitor) AfterQueryEmbedding(dims int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dims = dims
}

func (m *recordingMonitor) AfterRetrieval(c []core.RerankCandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieved = len(c)
}

func (m *recordingMonitor) RerankSkipped(int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *recordingMonitor) AfterRerank(int, []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reranked++
}

func (m *recordingMonitor) RerankFallback(_ int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, err)
}

func (m *recordingMonitor) Finish(results []core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = results
}
