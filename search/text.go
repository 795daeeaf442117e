package search

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/poiesic/recollect/core"
)

const rerankSystemPrompt = `You judge how relevant stored personal notes, emails and calendar entries are to a search query.
Score every passage from 0 (unrelated) to 1 (directly answers the query).
Reply with only a JSON array of numbers, one per passage, in the order given. No prose, no keys.`

// preview collapses whitespace and cuts text to at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}

// buildRerankPrompt enumerates the candidates, numbered from 1.
func buildRerankPrompt(query string, candidates []core.RerankCandidate, previewLen int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", strings.TrimSpace(query))
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, c.Kind, preview(c.Content, previewLen))
	}
	fmt.Fprintf(&b, "\nReturn a JSON array of exactly %d scores.", len(candidates))
	return b.String()
}

// parseScores extracts exactly n scores from a model reply. The reply may
// wrap the array in prose or a code fence. Scores are clamped to [0,1].
func parseScores(reply string, n int) ([]float64, error) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in rerank reply", core.ErrParse)
	}

	var scores []float64
	if err := json.Unmarshal([]byte(reply[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("%w: rerank reply: %w", core.ErrParse, err)
	}
	if len(scores) != n {
		return nil, fmt.Errorf("%w: got %d rerank scores for %d candidates", core.ErrParse, len(scores), n)
	}
	for i, s := range scores {
		scores[i] = min(max(s, 0), 1)
	}
	return scores, nil
}
