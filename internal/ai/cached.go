package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the number of query embeddings kept in memory.
const DefaultQueryCacheSize = 1000

// CachedEmbedder memoizes single-text (query) embeddings in an LRU.
// EmbedBatch is the index build path and always reaches the provider, so a
// rebuild re-embeds every chunk.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of size entries.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.inner.Model()))
	return hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *CachedEmbedder) Dim() int { return c.inner.Dim() }

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Len reports how many query embeddings are cached.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
