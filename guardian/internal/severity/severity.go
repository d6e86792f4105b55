// Package severity turns a detected content change into a 0-100 urgency score
// and a coarse level. The algorithm is an ordered list of independent named
// rules so each can be tested and tuned on its own.
package severity

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadlineshield/guardian/guardian/internal/deadline"
	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// Input carries the change signals and the source's judgment memory.
type Input struct {
	NewText         string
	DiffText        string
	WatchMode       store.WatchMode
	Volatility      float64 // 0..1 historical change frequency
	ConfidenceScore int     // 0..100 learned per-source trust
}

// Result is the scorer's verdict.
type Result struct {
	Score   int
	Level   store.SeverityLevel
	Reasons []string
}

// urgencyKeywords score +10 each, distinct hits only, capped by keywordCap.
var urgencyKeywords = []string{
	"deadline", "due", "must", "required", "effective", "enforcement",
	"penalty", "compliance", "mandatory", "urgent", "action required",
	"immediate",
}

const (
	dateWeight      = 40.0
	keywordWeight   = 10.0
	keywordCap      = 30.0
	magnitudeCap    = 15.0
	magnitudeFloor  = 10.0
	volatilityGate  = 0.7
	volatilityScale = 0.7
	confidenceGate  = 80
	confidenceScale = 0.8
	metadataCap     = 50.0
)

// Score evaluates the rule list in order. Dampening rules multiply the
// accumulated additive total before the final clamp, so their order relative
// to the additive rules matters.
func Score(in Input) Result {
	var total float64
	var reasons []string

	dateHit := deadline.ContainsDate(in.DiffText)
	if dateHit {
		total += dateWeight
		reasons = append(reasons, "deadline or date expression modified")
	}

	if hits := keywordHits(in.DiffText); hits > 0 {
		pts := math.Min(float64(hits)*keywordWeight, keywordCap)
		total += pts
		reasons = append(reasons, fmt.Sprintf("%d urgency keyword(s) in change", hits))
	}

	if mag := math.Min(float64(len(in.DiffText))/500*10, magnitudeCap); mag > magnitudeFloor {
		total += mag
		reasons = append(reasons, "large change magnitude")
	}

	if in.Volatility > volatilityGate {
		total *= volatilityScale
		reasons = append(reasons, "source changes frequently, dampened")
	}

	if in.ConfidenceScore > confidenceGate && !dateHit {
		total *= confidenceScale
		reasons = append(reasons, "high past-feedback confidence, dampened")
	}

	if in.WatchMode == store.WatchMetadataOnly && total < 80 && total > metadataCap {
		total = metadataCap
		reasons = append(reasons, "metadata-only watch, capped")
	}

	score := int(math.Round(math.Max(0, math.Min(total, 100))))
	return Result{Score: score, Level: Level(score), Reasons: reasons}
}

// Level maps a score to its coarse bucket. Pure and total over [0,100].
func Level(score int) store.SeverityLevel {
	switch {
	case score > 80:
		return store.SeverityCritical
	case score > 50:
		return store.SeverityHigh
	case score > 20:
		return store.SeverityMedium
	default:
		return store.SeverityLow
	}
}

func keywordHits(diff string) int {
	lower := strings.ToLower(diff)
	hits := 0
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}
