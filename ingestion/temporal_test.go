package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday morning.
var temporalRef = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2025, month, day, hour, minute, 0, 0, time.UTC)
}

func TestParseTemporalRefs(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label string
		want  time.Time
	}{
		{name: "weekday with clock", text: "Dentist Friday at 3pm", label: "Friday 3pm", want: at(time.January, 17, 15, 0)},
		{name: "tomorrow", text: "call mom tomorrow", label: "tomorrow", want: at(time.January, 16, 0, 0)},
		{name: "tonight", text: "drinks tonight?", label: "tonight", want: at(time.January, 15, 20, 0)},
		{name: "tonight with clock", text: "tonight at 7pm", label: "tonight 7pm", want: at(time.January, 15, 19, 0)},
		{name: "yesterday", text: "paid rent yesterday", label: "yesterday", want: at(time.January, 14, 0, 0)},
		{name: "next week", text: "offsite next week", label: "next week", want: at(time.January, 22, 0, 0)},
		{name: "iso date", text: "launch on 2025-02-03", label: "2025-02-03", want: at(time.February, 3, 0, 0)},
		{name: "slash date without year", text: "renewal due 3/4", label: "3/4", want: at(time.March, 4, 0, 0)},
		{name: "slash date with short year", text: "expires 12/31/25", label: "12/31/25", want: at(time.December, 31, 0, 0)},
		{name: "clock only", text: "sync at 10:30", label: "10:30", want: at(time.January, 15, 10, 30)},
		{name: "noon", text: "lunch 12pm", label: "12pm", want: at(time.January, 15, 12, 0)},
		{name: "midnight", text: "deploy 12am", label: "12am", want: at(time.January, 15, 0, 0)},
		{name: "same weekday is today", text: "Wednesday standup", label: "Wednesday", want: at(time.January, 15, 0, 0)},
		{name: "next same weekday", text: "next Wednesday", label: "next Wednesday", want: at(time.January, 22, 0, 0)},
		{name: "earlier weekday wraps", text: "Monday review", label: "Monday", want: at(time.January, 20, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := ParseTemporalRefs(tt.text, temporalRef)
			require.Len(t, refs, 1)
			assert.Equal(t, tt.label, refs[0].Text)
			assert.True(t, tt.want.Equal(refs[0].Time), "got %s, want %s", refs[0].Time, tt.want)
		})
	}
}

func TestParseTemporalRefs_NoMatches(t *testing.T) {
	assert.Empty(t, ParseTemporalRefs("nothing scheduled", temporalRef))
	assert.Empty(t, ParseTemporalRefs("invalid 2/30 and 13/45", temporalRef))
	assert.Empty(t, ParseTemporalRefs("", temporalRef))
}

func TestParseTemporalRefs_OrderOfAppearance(t *testing.T) {
	refs := ParseTemporalRefs("moved from 2025-01-20 to tomorrow", temporalRef)
	require.Len(t, refs, 2)
	assert.Equal(t, "2025-01-20", refs[0].Text)
	assert.Equal(t, "tomorrow", refs[1].Text)
}

func TestResolveTime(t *testing.T) {
	got, ok := ResolveTime("by Friday", temporalRef)
	require.True(t, ok)
	assert.True(t, at(time.January, 17, 0, 0).Equal(got))

	_, ok = ResolveTime("soon", temporalRef)
	assert.False(t, ok)
}

func TestParseTemporalRefs_ClockTimesAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name string
		text string
		ref  time.Time
		want time.Time
	}{
		{"spring forward clock", "pickup at 3pm", time.Date(2025, 3, 9, 8, 0, 0, 0, loc), time.Date(2025, 3, 9, 15, 0, 0, 0, loc)},
		{"spring forward tomorrow", "tomorrow at 9am", time.Date(2025, 3, 8, 18, 0, 0, 0, loc), time.Date(2025, 3, 9, 9, 0, 0, 0, loc)},
		{"fall back tonight", "drinks tonight", time.Date(2025, 11, 2, 10, 0, 0, 0, loc), time.Date(2025, 11, 2, 20, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTime(tt.text, tt.ref)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}
