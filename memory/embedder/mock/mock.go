package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder is a deterministic embedder for tests and offline runs.
// Unknown text gets a hash-seeded pseudo-random unit vector; text registered
// with WithVector returns that exact vector.
type Embedder struct {
	dimensions int

	mu      sync.RWMutex
	vectors map[string][]float32
	calls   int
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithDimensions sets the embedding size.
func WithDimensions(n int) Option {
	return func(e *Embedder) {
		e.dimensions = n
	}
}

// WithVector pins the embedding returned for text.
func WithVector(text string, vec []float32) Option {
	return func(e *Embedder) {
		e.vectors[text] = vec
	}
}

// New creates a new mock embedder.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		dimensions: DefaultDimensions,
		vectors:    make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetVector pins the embedding returned for text after construction.
func (e *Embedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// Embed creates a deterministic embedding from text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.calls++
	vec, ok := e.vectors[text]
	e.mu.Unlock()

	if ok {
		if len(vec) != e.dimensions {
			return nil, fmt.Errorf("pinned vector for %q has %d dimensions, want %d", text, len(vec), e.dimensions)
		}
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, e.dimensions)
	for i := range embedding {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Calls returns how many times Embed ran.
func (e *Embedder) Calls() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.calls
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}

var _ memory.Embedder = (*Embedder)(nil)
