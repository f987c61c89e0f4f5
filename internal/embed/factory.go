package embed

import "fmt"

// NewProvider creates a provider from configuration. An empty provider
// name selects the deterministic local projection.
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "", "local":
		return NewLocalProvider(), nil
	case "openai":
		return NewOpenAIProvider(config)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", config.Provider)
	}
}
