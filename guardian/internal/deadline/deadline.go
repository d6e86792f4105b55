// Package deadline scans normalized page text for date-like expressions and
// nearby labels, producing a deduplicated set of candidate deadlines.
package deadline

import (
	"regexp"
	"strings"
	"time"
)

// Candidate is one extracted deadline candidate.
type Candidate struct {
	Date       time.Time // midnight UTC of the matched date
	Label      string    // nearby label keyword, if any ("Deadline", "Due", …)
	SourceText string    // ±20 characters of context for human review
}

// labelWindow is how far back from a date match a label keyword is searched.
const labelWindow = 50

// contextRadius is how much surrounding text is captured as SourceText.
const contextRadius = 20

var datePatterns = []*regexp.Regexp{
	// ISO-ish numeric: 2025-03-03, 2025-3-3
	regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
	// US numeric: 3/3/2025
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	// Month Day, Year: March 3, 2025 / Mar 3 2025 / March 3rd, 2025
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept?|Oct|Nov|Dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
}

var labelPattern = regexp.MustCompile(`(?i)\b(deadline|due|date|effective|required|by)\b\s*:`)

var ordinalSuffix = regexp.MustCompile(`(?i)(\d{1,2})(st|nd|rd|th)`)

// ContainsDate reports whether text holds any date-like expression.
// The severity scorer uses this on diff text for its date rule.
func ContainsDate(text string) bool {
	for _, pat := range datePatterns {
		if pat.MatchString(text) {
			return true
		}
	}
	return false
}

// Extract returns all parseable deadline candidates in text, deduplicated by
// exact parsed timestamp, in first-occurrence order. Malformed date strings
// are silently discarded.
func Extract(text string) []Candidate {
	type match struct {
		start, end int
	}
	var matches []match
	for _, pat := range datePatterns {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			matches = append(matches, match{loc[0], loc[1]})
		}
	}
	// Restore document order across patterns.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].start < matches[j-1].start; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	seen := make(map[int64]bool)
	var out []Candidate
	for _, m := range matches {
		date, ok := parseDate(text[m.start:m.end])
		if !ok {
			continue
		}
		key := date.UnixMilli()
		if seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, Candidate{
			Date:       date,
			Label:      findLabel(text, m.start),
			SourceText: context(text, m.start, m.end),
		})
	}
	return out
}

// Earliest returns the earliest candidate dated at or after the given
// instant, or nil when no open deadline was extracted.
func Earliest(candidates []Candidate, after time.Time) *time.Time {
	var earliest *time.Time
	for _, c := range candidates {
		if c.Date.Before(after) {
			continue
		}
		if earliest == nil || c.Date.Before(*earliest) {
			d := c.Date
			earliest = &d
		}
	}
	return earliest
}

var monthLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)

	if strings.Contains(s, "-") {
		t, err := time.ParseInLocation("2006-1-2", s, time.UTC)
		return t, err == nil
	}
	if strings.Contains(s, "/") {
		t, err := time.ParseInLocation("1/2/2006", s, time.UTC)
		return t, err == nil
	}

	// Month-name form: drop the period after abbreviations and ordinal
	// suffixes before trying layouts.
	s = strings.Replace(s, ".", "", 1)
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = collapseSpaces(s)
	for _, layout := range monthLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	// Abbreviated "Sept" is not a Go layout token; expand it.
	if strings.HasPrefix(strings.ToLower(s), "sept ") {
		if t, err := time.ParseInLocation("January 2, 2006", "September "+s[5:], time.UTC); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation("January 2 2006", "September "+s[5:], time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func findLabel(text string, matchStart int) string {
	start := matchStart - labelWindow
	if start < 0 {
		start = 0
	}
	window := text[start:matchStart]
	locs := labelPattern.FindAllStringSubmatchIndex(window, -1)
	if len(locs) == 0 {
		return ""
	}
	last := locs[len(locs)-1]
	return window[last[2]:last[3]]
}

func context(text string, start, end int) string {
	from := start - contextRadius
	if from < 0 {
		from = 0
	}
	to := end + contextRadius
	if to > len(text) {
		to = len(text)
	}
	// Snap to rune boundaries.
	for from > 0 && (text[from]&0xC0) == 0x80 {
		from--
	}
	for to < len(text) && (text[to]&0xC0) == 0x80 {
		to++
	}
	return text[from:to]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
