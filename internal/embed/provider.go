// Package embed produces text embeddings for the similarity matcher.
//
// Providers must be deterministic for the same input, bounded so that
// cosine similarity lands in [-1, 1], and stable across calls. The local
// provider satisfies this with a bag-of-words hash projection; the OpenAI
// provider delegates to the embeddings API.
package embed

import (
	"context"
	"math"

	"github.com/ppiankov/sanctum/internal/model"
)

// Provider defines the interface for embedding providers.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Embed returns a unit-length vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config holds embedding provider configuration.
type Config struct {
	// Provider name: "local", "openai", "" (empty means local)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int
}

// ConfigFromModel maps the process configuration onto a provider config.
func ConfigFromModel(cfg model.EmbeddingConfig) Config {
	return Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	}
}

// Cosine returns the cosine similarity of two vectors. Zero vectors and
// mismatched lengths score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
