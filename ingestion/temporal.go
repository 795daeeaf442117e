// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/recollect/core"
)

var (
	relativeDayPattern = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|next week|next month)\b`)
	weekdayPattern     = regexp.MustCompile(`(?i)\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	meridiemPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s?(am|pm)\b`)
	twentyFourPattern  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// tonightHour is the clock time assigned to "tonight" when none is given.
const tonightHour = 20

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

type dateMatch struct {
	span
	text string
	day  time.Time
	hour int // -1 when the expression carries no time of day
}

type clockMatch struct {
	span
	text         string
	hour, minute int
}

// ParseTemporalRefs finds time expressions in text and resolves them against
// ref. Dates without a clock time resolve to midnight in ref's location. The
// first clock time found is attached to the first date; a clock time with no
// date applies to ref's day. Results are in order of appearance.
func ParseTemporalRefs(text string, ref time.Time) []core.TemporalRef {
	if ref.IsZero() {
		ref = time.Now()
	}
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	var taken []span
	claim := func(s span) bool {
		for _, t := range taken {
			if t.overlaps(s) {
				return false
			}
		}
		taken = append(taken, s)
		return true
	}

	var dates []dateMatch
	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		if !validDate(y, mo, d) || !claim(span{m[0], m[1]}) {
			continue
		}
		dates = append(dates, dateMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]],
			day: time.Date(y, time.Month(mo), d, 0, 0, 0, 0, ref.Location()), hour: -1})
	}

	// clock times are claimed before slash dates so "10:30" is never a date
	var clocks []clockMatch
	for _, m := range meridiemPattern.FindAllStringSubmatchIndex(text, -1) {
		h, _ := strconv.Atoi(text[m[2]:m[3]])
		minute := 0
		if m[4] >= 0 {
			minute, _ = strconv.Atoi(text[m[4]:m[5]])
		}
		if h < 1 || h > 12 || minute > 59 || !claim(span{m[0], m[1]}) {
			continue
		}
		if pm := strings.EqualFold(text[m[6]:m[7]], "pm"); pm && h != 12 {
			h += 12
		} else if !pm && h == 12 {
			h = 0
		}
		clocks = append(clocks, clockMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]], hour: h, minute: minute})
	}
	for _, m := range twentyFourPattern.FindAllStringSubmatchIndex(text, -1) {
		if !claim(span{m[0], m[1]}) {
			continue
		}
		h, _ := strconv.Atoi(text[m[2]:m[3]])
		minute, _ := strconv.Atoi(text[m[4]:m[5]])
		clocks = append(clocks, clockMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]], hour: h, minute: minute})
	}

	for _, m := range slashDatePattern.FindAllStringSubmatchIndex(text, -1) {
		mo, _ := strconv.Atoi(text[m[2]:m[3]])
		d, _ := strconv.Atoi(text[m[4]:m[5]])
		y := ref.Year()
		if m[6] >= 0 {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
			if y < 100 {
				y += 2000
			}
		}
		if !validDate(y, mo, d) || !claim(span{m[0], m[1]}) {
			continue
		}
		dates = append(dates, dateMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]],
			day: time.Date(y, time.Month(mo), d, 0, 0, 0, 0, ref.Location()), hour: -1})
	}

	for _, m := range relativeDayPattern.FindAllStringIndex(text, -1) {
		if !claim(span{m[0], m[1]}) {
			continue
		}
		word := strings.ToLower(text[m[0]:m[1]])
		dm := dateMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]], day: today, hour: -1}
		switch word {
		case "tonight":
			dm.hour = tonightHour
		case "tomorrow":
			dm.day = today.AddDate(0, 0, 1)
		case "yesterday":
			dm.day = today.AddDate(0, 0, -1)
		case "next week":
			dm.day = today.AddDate(0, 0, 7)
		case "next month":
			dm.day = today.AddDate(0, 1, 0)
		}
		dates = append(dates, dm)
	}

	for _, m := range weekdayPattern.FindAllStringSubmatchIndex(text, -1) {
		if !claim(span{m[0], m[1]}) {
			continue
		}
		target := weekdays[strings.ToLower(text[m[4]:m[5]])]
		ahead := (int(target) - int(ref.Weekday()) + 7) % 7
		if m[2] >= 0 && ahead == 0 {
			ahead = 7
		}
		dates = append(dates, dateMatch{span: span{m[0], m[1]}, text: text[m[0]:m[1]],
			day: today.AddDate(0, 0, ahead), hour: -1})
	}

	slices.SortFunc(dates, func(a, b dateMatch) int { return a.start - b.start })
	slices.SortFunc(clocks, func(a, b clockMatch) int { return a.start - b.start })

	var refs []core.TemporalRef
	if len(dates) == 0 {
		for _, c := range clocks {
			refs = append(refs, core.TemporalRef{Text: c.text, Time: atClock(today, c.hour, c.minute)})
		}
		return refs
	}

	for i, d := range dates {
		at := d.day
		label := d.text
		switch {
		case i == 0 && len(clocks) > 0:
			at = atClock(at, clocks[0].hour, clocks[0].minute)
			label = d.text + " " + clocks[0].text
		case d.hour >= 0:
			at = atClock(at, d.hour, 0)
		}
		refs = append(refs, core.TemporalRef{Text: label, Time: at})
	}
	return refs
}

// ResolveTime returns the first time expression in expr resolved against ref.
func ResolveTime(expr string, ref time.Time) (time.Time, bool) {
	refs := ParseTemporalRefs(expr, ref)
	if len(refs) == 0 {
		return time.Time{}, false
	}
	return refs[0].Time, true
}

// atClock sets the wall-clock time on day, which holds across DST changes.
func atClock(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d
}

// temporalStage extracts time references without any inference call.
type temporalStage struct{}

func (temporalStage) extract(_ context.Context, unit *core.ContentUnit) ([]core.TemporalRef, error) {
	return ParseTemporalRefs(unit.RawText, unit.ReceivedAt), nil
}
