package match

import "strings"

// structuralSimilarity compares surface shape: character-length ratio,
// word-count ratio, and whether both texts fall into the same categorical
// pattern (conditional, negative, interrogative, imperative, declarative).
func structuralSimilarity(a, b string) float64 {
	lengthRatio := ratio(len(a), len(b))
	wordRatio := ratio(len(strings.Fields(a)), len(strings.Fields(b)))

	patternScore := 0.5
	if structuralPattern(a) == structuralPattern(b) {
		patternScore = 1.0
	}

	return (lengthRatio + wordRatio + patternScore) / 3
}

func ratio(x, y int) float64 {
	if x == 0 || y == 0 {
		return 0
	}
	if x > y {
		x, y = y, x
	}
	return float64(x) / float64(y)
}

func structuralPattern(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.HasPrefix(normalized, "if ") || strings.Contains(normalized, " if "):
		return "conditional"
	case strings.Contains(normalized, " not ") || strings.Contains(normalized, "cannot") || strings.Contains(normalized, "n't"):
		return "negative"
	case strings.HasSuffix(normalized, "?"):
		return "interrogative"
	case hasImperativeOpening(normalized):
		return "imperative"
	default:
		return "declarative"
	}
}

func hasImperativeOpening(normalized string) bool {
	for _, verb := range []string{"let ", "do ", "be ", "have ", "make ", "take "} {
		if strings.HasPrefix(normalized, verb) {
			return true
		}
	}
	return false
}
