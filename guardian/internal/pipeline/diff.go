package pipeline

import "strings"

// maxDiffLength bounds the stored diff summary.
const maxDiffLength = 4000

// DiffSummary lists the sentence-level segments of the new text that do not
// appear in the previous content sample. Normalized text is a single
// collapsed line, so sentences are the finest stable unit to compare.
func DiffSummary(oldText, newText string) string {
	oldSet := make(map[string]bool)
	for _, seg := range splitSegments(oldText) {
		oldSet[seg] = true
	}

	var b strings.Builder
	for _, seg := range splitSegments(newText) {
		if oldSet[seg] {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		remaining := maxDiffLength - b.Len()
		if remaining <= 0 {
			break
		}
		if len(seg) > remaining {
			b.WriteString(seg[:remaining])
			break
		}
		b.WriteString(seg)
	}
	return b.String()
}

// splitSegments breaks text into sentence-ish chunks, splitting after ., !
// or ? followed by a space. Whitespace is collapsed first so markdown and
// plain renditions of the same sentence compare equal.
func splitSegments(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var segs []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				if seg := strings.TrimSpace(text[start : i+1]); seg != "" {
					segs = append(segs, seg)
				}
				start = i + 1
			}
		}
	}
	if seg := strings.TrimSpace(text[start:]); seg != "" {
		segs = append(segs, seg)
	}
	return segs
}
