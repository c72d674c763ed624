package planning

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// String similarity for entity resolution. The score is the maximum of
// three signals computed over normalized (lowercased, whitespace-collapsed)
// strings:
//
//   - exact match: 1.0
//   - containment: 0.6 + 0.2 * len(shorter)/len(longer)
//   - token overlap: 0.6 * shared / max(tokens)
//   - edit distance: 1 - levenshtein/maxLen
//
// The constants are fixed so that ranking is reproducible across runs.
const (
	containmentBase  = 0.6
	containmentSpan  = 0.2
	tokenOverlapSpan = 0.6
)

// Similarity returns a score in [0, 1] for how well candidate matches
// mention. An exact case-insensitive, whitespace-normalized match always
// scores 1.0.
func Similarity(mention, candidate string) float64 {
	a := NormalizeText(mention)
	b := NormalizeText(candidate)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}

	score := editSimilarity(a, b)

	if s := containmentScore(a, b); s > score {
		score = s
	}
	if s := tokenOverlapScore(a, b); s > score {
		score = s
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// NormalizeText lowercases, trims, and collapses internal whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func containmentScore(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 2 || !strings.Contains(longer, shorter) {
		return 0
	}
	return containmentBase + containmentSpan*float64(len(shorter))/float64(len(longer))
}

func tokenOverlapScore(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	bSet := make(map[string]bool, len(bTokens))
	for _, t := range bTokens {
		bSet[t] = true
	}

	shared := 0
	for _, t := range aTokens {
		if bSet[t] {
			shared++
		}
	}

	total := len(aTokens)
	if len(bTokens) > total {
		total = len(bTokens)
	}
	return tokenOverlapSpan * float64(shared) / float64(total)
}

func editSimilarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
