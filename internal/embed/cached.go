package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheSize bounds the embedding cache when config leaves it
// unset.
const DefaultCacheSize = 1000

// DefaultCacheTTL expires cached embeddings after a day; model
// redeployments then stop serving stale vectors within a bounded
// window.
const DefaultCacheTTL = 24 * time.Hour

// Stats counts cache behavior since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Generated int64
}

// CachedEmbedder wraps an Embedder with a TTL-bounded LRU cache.
// Re-indexing an unchanged repository hits the cache for every chunk.
type CachedEmbedder struct {
	inner Embedder
	cache *expirable.LRU[string, []float32]

	hits      atomic.Int64
	misses    atomic.Int64
	generated atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of size entries expiring
// after ttl. Zero values select the defaults.
func NewCachedEmbedder(inner Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// cacheKey hashes text together with the model name, so switching
// deployments never reuses vectors across models.
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached embedding or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.generated.Add(1)
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch checks the cache per text and embeds only the misses in
// one inner call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		results[i] = vecs[j]
		c.generated.Add(1)
		c.cache.Add(c.cacheKey(texts[i]), vecs[j])
	}
	return results, nil
}

// EmbedCode embeds code with file context through the cache.
func (c *CachedEmbedder) EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error) {
	return c.Embed(ctx, codeInput(code, fileContext))
}

// Stats returns hit, miss, and generation counts.
func (c *CachedEmbedder) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Generated: c.generated.Load(),
	}
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }
