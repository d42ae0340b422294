// Package cache memoizes embeddings in a bounded ristretto cache.
//
// Consolidation and recall embed the same lesson text repeatedly; wrapping the
// configured embedder avoids paying for those calls twice.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultSize is the number of embeddings kept.
const DefaultSize = 1000

// Embedder wraps another embedder with a cache keyed by text.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache holding up to size embeddings.
func New(next memory.Embedder, size int) (*Embedder, error) {
	if size <= 0 {
		size = DefaultSize
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(text, clone(vec), 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

var _ memory.Embedder = (*Embedder)(nil)
