// Package match scores how well a submitted text captures the meaning of
// a canonical reference text.
//
// This is not exact string matching: the point is comprehension, not
// memorization. Four signals are combined: embedding cosine similarity
// (weight 0.5), key-concept overlap (0.3), structural similarity (0.1),
// and sentiment alignment (0.1). An exact match after normalization
// short-circuits to confidence 1.0.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/sanctum/internal/cache"
	"github.com/ppiankov/sanctum/internal/embed"
	"github.com/ppiankov/sanctum/internal/model"
)

// DefaultThreshold converts a confidence into a match decision. This is
// a protocol parameter, not a matcher internal; it lives in config and
// this value is only the default.
const DefaultThreshold = 0.75

// Signal weights. Semantic similarity dominates because it measures
// understanding; concepts ensure the core message survives; structure and
// sentiment are secondary.
const (
	semanticWeight   = 0.5
	conceptWeight    = 0.3
	structuralWeight = 0.1
	sentimentWeight  = 0.1
)

// BestMatch is the winning candidate of a linear scan.
type BestMatch struct {
	ActID      int
	Canonical  string
	Confidence float64
}

// Matcher compares texts. The embedding cache is injectable state owned
// by this instance, a performance optimization keyed by exact string,
// never an invariant.
type Matcher struct {
	provider embed.Provider
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewMatcher creates a matcher. embCache may be nil to disable caching.
func NewMatcher(provider embed.Provider, embCache cache.Cache) *Matcher {
	return &Matcher{
		provider: provider,
		cache:    embCache,
		cacheTTL: time.Hour,
	}
}

// Compare returns a confidence in [0, 1] that submitted conveys the
// canonical text.
func (m *Matcher) Compare(ctx context.Context, submitted, canonical string) (float64, error) {
	normSubmitted := embed.Normalize(submitted)
	normCanonical := embed.Normalize(canonical)

	if normSubmitted != "" && normSubmitted == normCanonical {
		return 1.0, nil
	}

	semantic, err := m.semanticSimilarity(ctx, submitted, canonical)
	if err != nil {
		return 0, fmt.Errorf("semantic similarity: %w", err)
	}

	score := semantic*semanticWeight +
		conceptOverlap(submitted, canonical)*conceptWeight +
		structuralSimilarity(submitted, canonical)*structuralWeight +
		sentimentAlignment(submitted, canonical)*sentimentWeight

	return clamp01(score), nil
}

// FindBestMatch scans the candidates in order; ties keep the first-seen
// candidate.
func (m *Matcher) FindBestMatch(ctx context.Context, submitted string, acts []model.Act) (BestMatch, error) {
	best := BestMatch{}
	for _, act := range acts {
		confidence, err := m.Compare(ctx, submitted, act.CanonicalText)
		if err != nil {
			return best, fmt.Errorf("compare against act %d: %w", act.ID, err)
		}
		if confidence > best.Confidence {
			best = BestMatch{ActID: act.ID, Canonical: act.CanonicalText, Confidence: confidence}
		}
	}
	return best, nil
}

func (m *Matcher) semanticSimilarity(ctx context.Context, a, b string) (float64, error) {
	va, err := m.embedding(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := m.embedding(ctx, b)
	if err != nil {
		return 0, err
	}
	return embed.Cosine(va, vb), nil
}

func (m *Matcher) embedding(ctx context.Context, text string) ([]float64, error) {
	var key string
	if m.cache != nil {
		key = cache.Key(m.provider.Name() + ":" + text)
		if raw, found := m.cache.Get(key); found {
			var vec []float64
			if err := json.Unmarshal(raw, &vec); err == nil {
				return vec, nil
			}
		}
	}

	vec, err := m.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if raw, err := json.Marshal(vec); err == nil {
			_ = m.cache.Set(key, raw, m.cacheTTL)
		}
	}
	return vec, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
