package severity

import (
	"strings"
	"testing"

	"github.com/deadlineshield/guardian/guardian/internal/store"
)

func TestScore_DateRule(t *testing.T) {
	got := Score(Input{DiffText: "new filing date 2025-03-03"})
	// Date rule fires (+40) and "date" itself is not an urgency keyword,
	// but "due" and friends are absent here.
	if got.Score != 40 {
		t.Fatalf("score = %d, want 40", got.Score)
	}
	if got.Level != store.SeverityMedium {
		t.Errorf("level = %s, want MEDIUM", got.Level)
	}
	if len(got.Reasons) != 1 || !strings.Contains(got.Reasons[0], "date expression") {
		t.Errorf("reasons = %v, want single date-rule reason", got.Reasons)
	}
}

func TestScore_KeywordCap(t *testing.T) {
	// WHAT: four distinct keywords would be +40 uncapped; the cap holds
	// keyword contribution at +30.
	got := Score(Input{DiffText: "compliance is mandatory and urgent, penalty applies"})
	if got.Score != 30 {
		t.Fatalf("score = %d, want 30 (keyword cap)", got.Score)
	}
}

func TestScore_MagnitudeOnlyAboveFloor(t *testing.T) {
	// 500 chars of filler: magnitude = 10, not strictly above the floor.
	small := Score(Input{DiffText: strings.Repeat("x", 500)})
	if small.Score != 0 {
		t.Fatalf("500-char diff score = %d, want 0", small.Score)
	}
	// 600 chars: magnitude 12, above the floor.
	mid := Score(Input{DiffText: strings.Repeat("x", 600)})
	if mid.Score != 12 {
		t.Fatalf("600-char diff score = %d, want 12", mid.Score)
	}
	// Huge diff: capped at 15.
	big := Score(Input{DiffText: strings.Repeat("x", 20_000)})
	if big.Score != 15 {
		t.Fatalf("huge diff score = %d, want 15 (magnitude cap)", big.Score)
	}
}

func TestScore_VolatilityDampensRunningTotal(t *testing.T) {
	// WHY: a source that changes all the time should not page anyone for
	// yet another change. 12 * 0.7 = 8.4 -> 8, LOW.
	got := Score(Input{DiffText: strings.Repeat("x", 600), Volatility: 0.9})
	if got.Score != 8 {
		t.Fatalf("score = %d, want 8", got.Score)
	}
	if got.Level != store.SeverityLow {
		t.Errorf("level = %s, want LOW", got.Level)
	}
}

func TestScore_ConfidenceDampensOnlyWithoutDate(t *testing.T) {
	noDate := Score(Input{DiffText: "urgent compliance update", ConfidenceScore: 90})
	// Two keywords: 20, dampened to 16.
	if noDate.Score != 16 {
		t.Fatalf("no-date score = %d, want 16", noDate.Score)
	}
	withDate := Score(Input{DiffText: "urgent compliance update effective 2025-01-01", ConfidenceScore: 90})
	// Date +40, keywords "urgent","compliance","effective" +30: no dampening.
	if withDate.Score != 70 {
		t.Fatalf("with-date score = %d, want 70", withDate.Score)
	}
}

func TestScore_MetadataOnlyCap(t *testing.T) {
	in := Input{
		DiffText:  "deadline moved, action required by 2025-03-03, mandatory compliance",
		WatchMode: store.WatchMetadataOnly,
	}
	got := Score(in)
	if got.Score != 50 {
		t.Fatalf("score = %d, want 50 (metadata cap)", got.Score)
	}

	// A total already above 80 is left alone.
	in.DiffText += strings.Repeat(" more", 400)
	high := Score(in)
	if high.Score <= 80 {
		t.Fatalf("score = %d, want > 80 (cap bypassed)", high.Score)
	}
}

func TestScore_NewDeadlineExample(t *testing.T) {
	// The canonical case: a labeled deadline appears in the diff.
	got := Score(Input{DiffText: "Deadline: March 3, 2025. Action required before then."})
	if got.Score < 40 {
		t.Fatalf("score = %d, want >= 40", got.Score)
	}
	if got.Level != store.SeverityHigh && got.Level != store.SeverityCritical {
		t.Errorf("level = %s, want HIGH or CRITICAL", got.Level)
	}
}

func TestLevel_Boundaries(t *testing.T) {
	cases := []struct {
		score int
		want  store.SeverityLevel
	}{
		{0, store.SeverityLow},
		{20, store.SeverityLow},
		{21, store.SeverityMedium},
		{50, store.SeverityMedium},
		{51, store.SeverityHigh},
		{80, store.SeverityHigh},
		{81, store.SeverityCritical},
		{100, store.SeverityCritical},
	}
	for _, tc := range cases {
		if got := Level(tc.score); got != tc.want {
			t.Errorf("Level(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
