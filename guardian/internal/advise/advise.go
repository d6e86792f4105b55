// Package advise maps a severity verdict and a deadline-impact classification
// to a recommended action.
package advise

import (
	"time"

	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// Advice is the recommendation attached to a change event.
type Advice struct {
	Category   store.ActionCategory
	Guidance   string
	Confidence store.ActionConfidence
}

// Advise is a deterministic decision table evaluated in precedence order.
func Advise(level store.SeverityLevel, impact store.DeadlineImpact) Advice {
	switch {
	case level == store.SeverityLow:
		return Advice{
			Category:   store.ActionNoAction,
			Guidance:   "Minor change detected. No action needed.",
			Confidence: store.ConfidenceHigh,
		}
	case level == store.SeverityCritical && impact == store.ImpactMovedEarlier:
		return Advice{
			Category:   store.ActionEscalate,
			Guidance:   "A deadline moved earlier. Escalate to the responsible owner immediately.",
			Confidence: store.ConfidenceHigh,
		}
	case level == store.SeverityHigh || level == store.SeverityCritical:
		return Advice{
			Category:   store.ActionUpdate,
			Guidance:   "Significant change detected. Update your records and downstream material.",
			Confidence: store.ConfidenceMedium,
		}
	default:
		return Advice{
			Category:   store.ActionReview,
			Guidance:   "Review the change and decide whether it affects you.",
			Confidence: store.ConfidenceMedium,
		}
	}
}

// Impact classifies how the newly extracted earliest deadline relates to the
// source's previously recorded one. Both are unix-millisecond instants.
func Impact(prev *int64, next *time.Time) store.DeadlineImpact {
	switch {
	case next == nil:
		return store.ImpactNone
	case prev == nil:
		return store.ImpactNewDeadline
	case next.UnixMilli() < *prev:
		return store.ImpactMovedEarlier
	case next.UnixMilli() > *prev:
		return store.ImpactMovedLater
	default:
		return store.ImpactNone
	}
}
