package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// Embedder is the provider side of the cache
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache memoizes embeddings by text. A chat turn embeds the same reflection
// for recall and for storage, and repeated recall queries are common.
type Cache struct {
	embedder Embedder
	cache    *ristretto.Cache
}

// NewCache wraps embedder with a cache bounded to maxEntries vectors
func NewCache(embedder Embedder, maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, goerr.New("cache size must be positive", goerr.V("max_entries", maxEntries))
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// cost is counted in vectors, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}

	return &Cache{embedder: embedder, cache: cache}, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached vector or asks the underlying embedder. The returned
// slice is a copy and may be modified by the caller.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, clone(vec), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines
func (c *Cache) Close() {
	c.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
