package cache

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const (
	defaultEmbeddingCacheSize = 1024
	defaultEmbeddingCacheTTL  = 30 * time.Minute
)

// EmbeddingCache memoizes query embeddings. Expansion variants repeat across
// follow-up turns, so most of them are served without a model call.
type EmbeddingCache struct {
	inner ports.Embedder
	lru   *expirable.LRU[string, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

func NewEmbeddingCache(inner ports.Embedder, size int, ttl time.Duration) *EmbeddingCache {
	if size <= 0 {
		size = defaultEmbeddingCacheSize
	}
	if ttl <= 0 {
		ttl = defaultEmbeddingCacheTTL
	}
	return &EmbeddingCache{
		inner: inner,
		lru:   expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Embed returns a vector the caller owns; cached entries are never handed out
// directly.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return slices.Clone(vec), nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, slices.Clone(vec))
	return vec, nil
}

// Stats reports cache hits and misses since construction.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *EmbeddingCache) Len() int {
	return c.lru.Len()
}

func cacheKey(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
