package search

import (
	"github.com/poiesic/recollect/core"
)

// SearchMonitor provides hooks to observe the search process.
// Batches are reranked concurrently, so implementations must be safe for
// concurrent use.
type SearchMonitor interface {
	Start(query string, topK int)
	AfterQueryEmbedding(dimensions int)
	AfterRetrieval(candidates []core.RerankCandidate)
	RerankSkipped(batch, candidates, topK int)
	AfterRerank(batch int, scores []float64)
	RerankFallback(batch int, err error)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                   {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)               {}
func (n *noopMonitor) AfterRetrieval(_ []core.RerankCandidate) {}
func (n *noopMonitor) RerankSkipped(_, _, _ int)               {}
func (n *noopMonitor) AfterRerank(_ int, _ []float64)          {}
func (n *noopMonitor) RerankFallback(_ int, _ error)           {}
func (n *noopMonitor) Finish(_ []core.SearchResult)            {}
