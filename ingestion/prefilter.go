package ingestion

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMinEntityTokens is the shortest text, in whitespace tokens, that is
// sent for entity extraction without a referential signal.
const DefaultMinEntityTokens = 4

// Reasons reported in a Verdict.
const (
	ReasonNoCommitmentCue = "no commitment cue"
	ReasonTooShort        = "below entity token threshold"
	ReasonCasual          = "casual, non-referential"
)

// Verdict is the pre-filter's decision for one content unit. It is computed
// once per run and threaded through every stage.
type Verdict struct {
	SkipCommitment bool     `json:"skip_commitment"`
	SkipEntity     bool     `json:"skip_entity"`
	Reasons        []string `json:"reasons,omitempty"`
}

var (
	commitmentCuePattern = regexp.MustCompile(`(?i)\b(` +
		// modal and future
		`will|shall|going to|gonna|need to|needs to|have to|has to|must|should|ought to|` +
		// reminders
		`remind|reminder|remember to|don'?t forget|todo|to-do|follow up|` +
		// scheduling
		`meeting|meet|appointment|deadline|due|schedule[ds]?|call|rsvp|reschedule[ds]?|book|` +
		// time words
		`tomorrow|tonight|next week|next month|monday|tuesday|wednesday|thursday|friday|saturday|sunday|` +
		// polite imperatives
		`please|let'?s|can you|could you|would you` +
		`)\b`)
	clockPattern       = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s?(am|pm)\b|\b([01]?\d|2[0-3]):[0-5]\d\b`)
	numericDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}(/\d{2,4})?\b`)

	casualPattern = regexp.MustCompile(`(?i)\b(random thought|shower thought|just thinking|lol|lmao|rofl|haha+|meh|ugh|brb|idk)\b`)

	referentialPattern = regexp.MustCompile(`@\w+|\b[\w.+-]+@[\w-]+\.[\w.]+\b|https?://\S+|\d|"[^"]+"`)
)

// PreFilter is a cheap heuristic gate in front of the expensive extraction
// stages. It errs toward running a stage: a false negative costs one
// inference call, a false positive loses data.
type PreFilter struct {
	minEntityTokens int
}

// PreFilterOption configures a PreFilter.
type PreFilterOption func(*PreFilter)

// WithMinEntityTokens sets the token threshold for entity extraction.
func WithMinEntityTokens(n int) PreFilterOption {
	return func(f *PreFilter) {
		if n > 0 {
			f.minEntityTokens = n
		}
	}
}

// NewPreFilter creates a PreFilter.
func NewPreFilter(opts ...PreFilterOption) *PreFilter {
	f := &PreFilter{minEntityTokens: DefaultMinEntityTokens}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ShouldSkip decides which extraction stages text does not warrant.
func (f *PreFilter) ShouldSkip(text string) Verdict {
	var v Verdict

	if !hasCommitmentCue(text) {
		v.SkipCommitment = true
		v.Reasons = append(v.Reasons, ReasonNoCommitmentCue)
	}

	referential := hasReferentialSignal(text)
	switch {
	case referential:
	case len(strings.Fields(text)) < f.minEntityTokens:
		v.SkipEntity = true
		v.Reasons = append(v.Reasons, ReasonTooShort)
	case casualPattern.MatchString(text):
		v.SkipEntity = true
		v.Reasons = append(v.Reasons, ReasonCasual)
	}
	return v
}

func hasCommitmentCue(text string) bool {
	return commitmentCuePattern.MatchString(text) ||
		clockPattern.MatchString(text) ||
		numericDatePattern.MatchString(text)
}

// hasReferentialSignal looks for anything that names something specific:
// a capitalized word that does not open a sentence, a mention, an address,
// a link, a number or a quoted phrase.
func hasReferentialSignal(text string) bool {
	if referentialPattern.MatchString(text) {
		return true
	}
	return hasProperNoun(text)
}

func hasProperNoun(text string) bool {
	sentenceStart := true
	for _, token := range strings.Fields(text) {
		word := strings.TrimLeft(token, `"'([{`)
		if word == "" {
			continue
		}
		first := []rune(word)[0]
		if !sentenceStart && unicode.IsUpper(first) && !isPronounI(word) {
			return true
		}
		last := token[len(token)-1]
		sentenceStart = last == '.' || last == '!' || last == '?' || last == ':'
	}
	return false
}

func isPronounI(word string) bool {
	w := strings.TrimRight(word, ".,!?;:'\")")
	return w == "I" || strings.HasPrefix(w, "I'") || strings.HasPrefix(w, "I’")
}
