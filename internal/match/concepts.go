package match

import (
	"strings"

	"github.com/ppiankov/sanctum/internal/embed"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been",
		"being", "have", "has", "had", "do", "does", "did", "will",
		"would", "could", "should", "may", "might", "must", "shall",
		"to", "of", "in", "for", "on", "with", "at", "by", "from",
		"as", "into", "through", "during", "before", "after", "above",
		"below", "between", "under", "again", "further", "then", "once",
		"here", "there", "when", "where", "why", "how", "all", "each",
		"few", "more", "most", "other", "some", "such", "no", "nor",
		"not", "only", "own", "same", "so", "than", "too", "very",
		"just", "but", "and", "or", "if", "because", "until", "while",
		"it", "its", "that", "this", "which", "who", "whom", "what",
	} {
		stopWords[w] = struct{}{}
	}
}

// conceptOverlap is the Jaccard index of the two texts' key-concept sets
// after stop-word removal and light suffix stemming. Returns a neutral
// 0.5 when either text yields no concepts.
func conceptOverlap(a, b string) float64 {
	ca := extractConcepts(a)
	cb := extractConcepts(b)
	if len(ca) == 0 || len(cb) == 0 {
		return 0.5
	}

	intersection := 0
	for c := range ca {
		if _, ok := cb[c]; ok {
			intersection++
		}
	}
	union := len(ca) + len(cb) - intersection
	return float64(intersection) / float64(union)
}

func extractConcepts(text string) map[string]struct{} {
	concepts := make(map[string]struct{})
	for _, word := range strings.Fields(embed.Normalize(text)) {
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		concepts[stem(word)] = struct{}{}
	}
	return concepts
}

// stem strips a handful of common suffixes. Deliberately crude: the goal
// is that "grows" and "growing" land on the same concept, nothing more.
func stem(word string) string {
	for _, suffix := range []string{"ing", "ed", "ly", "ness", "ment", "tion", "sion", "ity", "s"} {
		if strings.HasSuffix(word, suffix) && len(word) > len(suffix)+1 {
			return strings.TrimSuffix(word, suffix)
		}
	}
	return word
}
