package intake

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxCategoryDistance bounds fuzzy category matching.
const maxCategoryDistance = 3

var ambiguousKeywords = []string{"weird", "strange", "not sure", "something else", "intermittent", "help"}

// NormalizeCategory maps free text onto a catalogue key. Exact keys win,
// then labels, then the nearest key within maxCategoryDistance edits.
// Anything else is "other".
func NormalizeCategory(s string) string {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return OtherKey
	}
	keyForm := strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, c := range categories {
		if c.Key == keyForm || strings.ToLower(c.Label) == norm {
			return c.Key
		}
	}
	best, bestDist := OtherKey, maxCategoryDistance+1
	for _, c := range categories {
		if d := levenshtein.ComputeDistance(keyForm, c.Key); d < bestDist {
			best, bestDist = c.Key, d
		}
	}
	return best
}

// NeedsFollowUp reports whether an AI follow-up round is worth the call:
// uncategorised requests, or descriptions with vague wording.
func NeedsFollowUp(category, description string) bool {
	if NormalizeCategory(category) == OtherKey {
		return true
	}
	desc := strings.ToLower(description)
	for _, kw := range ambiguousKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}
