package ingestion

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/poiesic/recollect/core"
)

var urgencyPattern = regexp.MustCompile(`(?i)\b(urgent|asap|important|critical|deadline|immediately|priority|overdue|must)\b|!{2,}`)

// sourceWeights is the starting score per source type. Calendar entries are
// scheduled by definition; notes are the most often incidental.
var sourceWeights = map[core.SourceType]float64{
	core.SourceCalendar: 0.4,
	core.SourceEmail:    0.3,
	core.SourceNote:     0.2,
}

// ScoreImportance rates text in [0,1] with fixed rules and no inference call:
//
//	source weight (calendar 0.4, email 0.3, note 0.2)
//	+0.20 urgency wording
//	+0.15 commitment cue
//	+0.10 time reference
//	+0.10 referential signal (names, mentions, addresses, numbers)
//	+0.00..0.05 length, saturating at 100 tokens
//	-0.20 casual marker
//
// The result is clamped and rounded to three decimals.
func ScoreImportance(text string, source core.SourceType) float64 {
	score := sourceWeights[source]
	if urgencyPattern.MatchString(text) {
		score += 0.20
	}
	if hasCommitmentCue(text) {
		score += 0.15
	}
	if relativeDayPattern.MatchString(text) || weekdayPattern.MatchString(text) ||
		isoDatePattern.MatchString(text) || clockPattern.MatchString(text) {
		score += 0.10
	}
	if hasReferentialSignal(text) {
		score += 0.10
	}
	score += 0.05 * min(float64(len(strings.Fields(text)))/100, 1)
	if casualPattern.MatchString(text) {
		score -= 0.20
	}

	score = min(max(score, 0), 1)
	return math.Round(score*1000) / 1000
}

// importanceStage scores a unit with ScoreImportance.
type importanceStage struct{}

func (importanceStage) extract(_ context.Context, unit *core.ContentUnit) (float64, error) {
	return ScoreImportance(unit.RawText, unit.SourceType), nil
}
