package match

import (
	"context"
	"testing"
	"time"

	"github.com/ppiankov/sanctum/internal/cache"
	"github.com/ppiankov/sanctum/internal/embed"
	"github.com/ppiankov/sanctum/internal/model"
)

func newTestMatcher() *Matcher {
	return NewMatcher(embed.NewLocalProvider(), cache.NewMemoryCache(time.Minute, time.Minute))
}

func TestMatcher_Compare_ExactMatch(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	texts := []string{
		"The key you hold is the self you own",
		"trust grows where secrets are kept",
		"x",
	}
	for _, text := range texts {
		confidence, err := m.Compare(ctx, text, text)
		if err != nil {
			t.Fatalf("Compare failed: %v", err)
		}
		if confidence != 1.0 {
			t.Errorf("Compare(%q, itself) = %f, want 1.0", text, confidence)
		}
	}
}

func TestMatcher_Compare_NormalizedExactMatch(t *testing.T) {
	m := newTestMatcher()

	confidence, err := m.Compare(context.Background(),
		"Trust grows where secrets are kept!",
		"  trust GROWS where secrets are kept  ")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if confidence != 1.0 {
		t.Errorf("normalized exact match = %f, want 1.0", confidence)
	}
}

func TestMatcher_Compare_Bounds(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	pairs := [][2]string{
		{"the swordsman guards what the mage reveals", "a blade protects what sight uncovers"},
		{"privacy is a practice", "the weather is nice today"},
		{"", "nonempty"},
	}
	for _, pair := range pairs {
		confidence, err := m.Compare(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("Compare(%q, %q) failed: %v", pair[0], pair[1], err)
		}
		if confidence < 0 || confidence > 1 {
			t.Errorf("Compare(%q, %q) = %f out of [0,1]", pair[0], pair[1], confidence)
		}
	}
}

func TestMatcher_Compare_SimilarBeatsUnrelated(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	canonical := "trust grows where keys are held by their owner"
	similar := "trust grows when the owner holds the keys"
	unrelated := "seven quick recipes for tomato soup and fresh bread"

	simScore, err := m.Compare(ctx, similar, canonical)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	unrelScore, err := m.Compare(ctx, unrelated, canonical)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if simScore <= unrelScore {
		t.Errorf("similar scored %f, unrelated %f; expected similar > unrelated", simScore, unrelScore)
	}
}

func TestMatcher_Compare_Deterministic(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	a, err := m.Compare(ctx, "wisdom shared is wisdom doubled", "shared wisdom doubles itself")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	b, err := m.Compare(ctx, "wisdom shared is wisdom doubled", "shared wisdom doubles itself")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if a != b {
		t.Errorf("Compare not stable across calls: %f vs %f", a, b)
	}
}

func TestMatcher_FindBestMatch(t *testing.T) {
	m := newTestMatcher()

	acts := []model.Act{
		{ID: 1, CanonicalText: "the key you hold is the self you own"},
		{ID: 2, CanonicalText: "trust grows where secrets are kept safe"},
		{ID: 3, CanonicalText: "a shielded coin still rings true"},
	}

	best, err := m.FindBestMatch(context.Background(), "trust grows where secrets are kept safe", acts)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if best.ActID != 2 {
		t.Errorf("best act = %d, want 2", best.ActID)
	}
	if best.Confidence != 1.0 {
		t.Errorf("best confidence = %f, want 1.0", best.Confidence)
	}
}

func TestMatcher_FindBestMatch_FirstSeenTieBreak(t *testing.T) {
	m := newTestMatcher()

	// Identical candidates force a tie; the scan must keep the first.
	acts := []model.Act{
		{ID: 7, CanonicalText: "the same canonical text"},
		{ID: 8, CanonicalText: "the same canonical text"},
	}

	best, err := m.FindBestMatch(context.Background(), "the same canonical text", acts)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if best.ActID != 7 {
		t.Errorf("tie broken to act %d, want first-seen act 7", best.ActID)
	}
}

func TestMatcher_NilCache(t *testing.T) {
	m := NewMatcher(embed.NewLocalProvider(), nil)

	confidence, err := m.Compare(context.Background(), "no cache here", "no cache here")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if confidence != 1.0 {
		t.Errorf("Compare = %f, want 1.0", confidence)
	}
}

func TestConceptOverlap(t *testing.T) {
	if got := conceptOverlap("the keys of trust", "trust keys"); got <= 0.5 {
		t.Errorf("overlapping concepts scored %f, want > 0.5", got)
	}
	if got := conceptOverlap("", "anything here"); got != 0.5 {
		t.Errorf("empty concepts scored %f, want neutral 0.5", got)
	}
}

func TestStructuralPattern(t *testing.T) {
	cases := []struct{ text, want string }{
		{"if you seek privacy, hold your keys", "conditional"},
		{"a key cannot be shared and stay a key", "negative"},
		{"who holds your keys?", "interrogative"},
		{"let the keys rest with their owner", "imperative"},
		{"the mage sees and the swordsman acts", "declarative"},
	}
	for _, tc := range cases {
		if got := structuralPattern(tc.text); got != tc.want {
			t.Errorf("structuralPattern(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
