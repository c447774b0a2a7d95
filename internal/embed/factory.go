package embed

import (
	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// NewFromConfig builds the configured embedder wrapped in the TTL
// cache. An empty provider selects the null embedder.
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "":
		return NewNullEmbedder(), nil
	case "azure_openai":
		inner, err := NewAzureOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(inner, cfg.CacheSize, cfg.CacheTTL), nil
	default:
		return nil, kerrors.ConfigError("unknown embedding provider: "+cfg.Provider, nil)
	}
}
