package ingestion

import (
	"testing"

	"github.com/poiesic/recollect/core"
	"github.com/stretchr/testify/assert"
)

func TestScoreImportance_Range(t *testing.T) {
	texts := []string{
		"",
		"lol",
		"URGENT!!! deadline moved to Friday 5pm, call Dana at dana@example.com asap",
		"random thought: haha meh",
	}
	sources := []core.SourceType{core.SourceNote, core.SourceEmail, core.SourceCalendar, core.SourceType("unknown")}

	for _, text := range texts {
		for _, source := range sources {
			score := ScoreImportance(text, source)
			assert.GreaterOrEqual(t, score, 0.0, "%q from %s", text, source)
			assert.LessOrEqual(t, score, 1.0, "%q from %s", text, source)
		}
	}
}

func TestScoreImportance_Ordering(t *testing.T) {
	urgent := ScoreImportance("URGENT: contract deadline Friday 5pm, call Dana", core.SourceCalendar)
	plain := ScoreImportance("the contract is signed", core.SourceNote)
	casual := ScoreImportance("lol random thought", core.SourceNote)

	assert.Greater(t, urgent, 0.8)
	assert.Greater(t, urgent, plain)
	assert.Greater(t, plain, casual)
	assert.Less(t, casual, 0.1)
}

func TestScoreImportance_SourceWeight(t *testing.T) {
	text := "quarterly numbers attached"
	assert.Greater(t, ScoreImportance(text, core.SourceCalendar), ScoreImportance(text, core.SourceEmail))
	assert.Greater(t, ScoreImportance(text, core.SourceEmail), ScoreImportance(text, core.SourceNote))
}

func TestScoreImportance_Deterministic(t *testing.T) {
	text := "Remember to renew the passport before March"
	assert.Equal(t, ScoreImportance(text, core.SourceEmail), ScoreImportance(text, core.SourceEmail))
}
