package embed

import (
	"context"
	"math"
	"strings"
)

// Dimensions of the local projection.
const localDims = 256

// LocalProvider is a deterministic bag-of-words hash projection. It is a
// stand-in for a real embedding model: each word is hashed to eight
// positions in a 256-dimension vector, weighted by inverse word count,
// and the result is L2-normalized. Identical inputs always produce
// identical vectors, with no I/O and no key material.
type LocalProvider struct{}

// NewLocalProvider creates the deterministic local provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// Name returns the provider name.
func (p *LocalProvider) Name() string {
	return "local"
}

// Embed projects the text into a unit vector.
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float64, error) {
	words := strings.Fields(Normalize(text))
	vec := make([]float64, localDims)
	if len(words) == 0 {
		return vec, nil
	}

	weight := 1.0 / float64(len(words))
	for _, word := range words {
		h := wordHash(word)
		for i := 0; i < 8; i++ {
			pos := (h + i*31) % localDims
			vec[pos] += weight
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// wordHash is a 32-bit string hash (h = h*31 + c with wraparound),
// reduced to a non-negative int. Accumulation is unsigned: negating a
// signed accumulator would leave math.MinInt32 negative and turn the
// hash into an invalid vector index.
func wordHash(word string) int {
	var h uint32
	for _, c := range word {
		h = (h << 5) - h + uint32(c)
	}
	return int(h & math.MaxInt32)
}

// Normalize lowercases, strips punctuation, and collapses whitespace.
// Both the matcher and the providers share this so cache keys and
// comparisons agree on what "the same text" means.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// punctuation dropped
		}
	}
	return strings.TrimSpace(b.String())
}
