// Package confidence maintains the per-source trust statistic learned from
// user acknowledgements. A source whose high-severity alerts keep getting
// dismissed earns a low score, which in turn dampens future severity.
package confidence

import (
	"math"

	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// Apply folds one acknowledgement into the running stats and recomputes the
// score and level. A false alarm is a HIGH or CRITICAL alert the user judged
// irrelevant. The caller is responsible for running this under the same
// transaction that records the acknowledgement.
func Apply(stats store.ConfidenceStats, ack store.AckStatus, severity store.SeverityLevel) (store.ConfidenceStats, int, store.ActionConfidence) {
	stats.TotalActions++
	switch ack {
	case store.AckNoAction:
		stats.NoActionCount++
		if severity == store.SeverityHigh || severity == store.SeverityCritical {
			stats.FalseAlarmCount++
		}
	case store.AckReviewed, store.AckUpdated:
		stats.ReviewCount++
	case store.AckEscalated:
		stats.EscalateCount++
	}

	score := ScoreOf(stats)
	return stats, score, LevelOf(score)
}

// ScoreOf computes the 0-100 score from the raw counters.
func ScoreOf(stats store.ConfidenceStats) int {
	if stats.TotalActions == 0 {
		return 50
	}
	total := float64(stats.TotalActions)
	raw := 50 + 20*(float64(stats.NoActionCount)/total) - 50*(float64(stats.FalseAlarmCount)/total)
	return int(math.Round(math.Max(0, math.Min(raw, 100))))
}

// LevelOf buckets a score into LOW / MEDIUM / HIGH.
func LevelOf(score int) store.ActionConfidence {
	switch {
	case score > 80:
		return store.ConfidenceHigh
	case score < 30:
		return store.ConfidenceLow
	default:
		return store.ConfidenceMedium
	}
}
