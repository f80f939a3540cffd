package embedding

import (
	"context"

	"github.com/chaekko/chaekko/internal/cache"
)

// CachedProvider memoizes another provider's embeddings in a TTL cache.
// Keys include the model name so a model change never serves stale
// vectors.
type CachedProvider struct {
	inner Provider
	cache *cache.TTLCache[[]float32]
}

// NewCachedProvider wraps inner with a cache.
func NewCachedProvider(inner Provider, c *cache.TTLCache[[]float32]) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c}
}

// Embed implements Provider.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(map[string]any{
		"kind":  "embedding",
		"model": p.inner.ModelName(),
		"text":  text,
	})
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, vec)
	return vec, nil
}

// Dimensions implements Provider.
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

// ModelName implements Provider.
func (p *CachedProvider) ModelName() string { return p.inner.ModelName() }
