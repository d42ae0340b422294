package memory

import (
	"context"
	"errors"
)

var (
	// ErrMalformedOutput marks Reasoner output that could not be parsed into
	// the expected shape, even after stripping incidental formatting.
	ErrMalformedOutput = errors.New("malformed reasoner output")

	// ErrGeneration marks a Reasoner call that failed before any output
	// could be parsed (transport error, empty response, deadline).
	ErrGeneration = errors.New("reasoner generation failed")
)

// Store is the episode persistence and similarity backend.
// Implementations: chromem.Store (embedded, default), pgvector.Store (PostgreSQL).
//
// A Store exclusively owns the episode records and their vectors. Callers
// never update an episode in place; consolidation replaces whole records.
type Store interface {
	// Add persists an episode. The episode must carry its embedding.
	Add(ctx context.Context, ep *Episode) error

	// Query returns up to limit episodes nearest to embedding, most similar
	// first, each with its cosine similarity. An empty store yields nil.
	Query(ctx context.Context, embedding []float32, limit int) ([]ScoredEpisode, error)

	// All returns every episode including embeddings, in store order
	// (ascending timestamp, ties broken by ID). It has no side effects.
	All(ctx context.Context) ([]*Episode, error)

	// Delete removes episodes by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of stored episodes.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local model), openai (API), cache (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Reasoner is the external text-reasoning capability the memory core calls
// but does not implement. Every method either returns a fully parsed value
// or an error wrapping ErrMalformedOutput or ErrGeneration.
type Reasoner interface {
	// Reflect derives a structured reflection from a raw conversation.
	Reflect(ctx context.Context, conversation string) (Reflection, error)

	// Merge consolidates several formatted episodes into one reflection.
	Merge(ctx context.Context, episodeTexts []string) (Reflection, error)

	// ExtractPatterns returns behavioral rules evidenced by at least two
	// of the given episodes.
	ExtractPatterns(ctx context.Context, episodeTexts []string) ([]string, error)

	// UpdateRules returns a complete replacement rule list given the
	// current numbered rules and new evidence.
	UpdateRules(ctx context.Context, currentRules, evidence string, maxRules int) ([]string, error)
}

// RuleSink receives promoted rules. RuleStore implements it.
type RuleSink interface {
	AddRule(rule string) error
}

// WriteStatus reports whether a best-effort write changed state.
type WriteStatus int

const (
	// StatusSkipped means nothing was written.
	StatusSkipped WriteStatus = iota

	// StatusStored means the write completed and was persisted.
	StatusStored
)

func (s WriteStatus) String() string {
	switch s {
	case StatusStored:
		return "stored"
	default:
		return "skipped"
	}
}

// WriteResult is returned by best-effort writes that never surface
// Reasoner failures as errors.
type WriteResult struct {
	Status WriteStatus
	ID     string // Episode ID when an episode was stored
	Reason string // Why the write was skipped

	// Episode is the stored episode, for episode writes.
	Episode *Episode
}

// Stored reports whether the write went through.
func (r WriteResult) Stored() bool {
	return r.Status == StatusStored
}

func skipped(reason string) WriteResult {
	return WriteResult{Status: StatusSkipped, Reason: reason}
}
