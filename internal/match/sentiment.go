package match

import (
	"strings"

	"github.com/ppiankov/sanctum/internal/embed"
)

// Coarse polarity lexicons tuned to the corpus's vocabulary.
var (
	positiveMarkers = []string{
		"good", "great", "enable", "strength", "wisdom", "trust",
		"protect", "harmony", "choose", "grows", "true", "power",
		"sovereign", "own", "freedom", "privacy", "safe",
	}
	negativeMarkers = []string{
		"bad", "fail", "weak", "folly", "steal", "breach", "hide",
		"diminish", "restrict", "block", "cannot", "not", "nothing",
		"rent", "ends", "hiding",
	}
	intensifierMarkers = []string{
		"very", "most", "all", "truly", "always", "never",
		"must", "only", "cannot", "inevitabl",
	}
)

// sentimentAlignment compares polarity and intensity of the two texts,
// converted so lower difference means higher similarity.
func sentimentAlignment(a, b string) float64 {
	pa, ia := analyzeSentiment(a)
	pb, ib := analyzeSentiment(b)

	polarityDiff := abs(pa - pb)
	intensityDiff := abs(ia - ib)

	polaritySim := 1 - polarityDiff/2 // polarity spans [-1, 1]
	intensitySim := 1 - intensityDiff

	return (polaritySim + intensitySim) / 2
}

func analyzeSentiment(text string) (polarity, intensity float64) {
	var positive, negative, intensifiers int
	for _, word := range strings.Fields(embed.Normalize(text)) {
		if containsAny(word, positiveMarkers) {
			positive++
		}
		if containsAny(word, negativeMarkers) {
			negative++
		}
		if containsAny(word, intensifierMarkers) {
			intensifiers++
		}
	}

	total := positive + negative
	if total == 0 {
		total = 1
	}
	polarity = float64(positive-negative) / float64(total)

	intensity = float64(intensifiers) / 3
	if intensity > 1 {
		intensity = 1
	}
	return polarity, intensity
}

func containsAny(word string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(word, m) {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
