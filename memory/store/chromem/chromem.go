package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultCollection is the episode collection name.
const DefaultCollection = "episodic_memory"

// Config configures the chromem store.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection is the episode collection name (default: episodic_memory).
	Collection string

	// Dimensions is the embedding size, used for full scans.
	Dimensions int
}

// Store wraps chromem-go for episode storage.
// chromem-go is a pure Go, embedded vector database using cosine similarity.
type Store struct {
	db         *chromem.DB
	col        *chromem.Collection
	dimensions int
	logger     *slog.Logger
	mu         sync.RWMutex
}

// New creates a chromem-based store.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dimensions < 1 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(
		cfg.Collection,
		map[string]string{"space": "cosine"},
		nil, // No embedding func; episodes arrive embedded
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{
		db:         db,
		col:        col,
		dimensions: cfg.Dimensions,
		logger:     logger.With("component", "chromem", "collection", cfg.Collection),
	}, nil
}

// Add saves an episode with its embedding.
func (s *Store) Add(ctx context.Context, ep *memory.Episode) error {
	if len(ep.Embedding) == 0 {
		return fmt.Errorf("episode %s has no embedding", ep.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := chromem.Document{
		ID:        ep.ID,
		Content:   ep.Document,
		Embedding: ep.Embedding,
		Metadata:  ep.Metadata(),
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debug("stored episode", "id", ep.ID, "consolidated", ep.Consolidated)
	return nil
}

// Query retrieves episodes by vector similarity, most similar first.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int) ([]memory.ScoredEpisode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.query(ctx, embedding, limit)
	if err != nil || len(results) == 0 {
		return nil, err
	}

	scored := make([]memory.ScoredEpisode, 0, len(results))
	for _, r := range results {
		scored = append(scored, memory.ScoredEpisode{
			Episode:    toEpisode(r),
			Similarity: float64(r.Similarity),
		})
	}
	return scored, nil
}

// All returns every episode in store order.
func (s *Store) All(ctx context.Context) ([]*memory.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem-go has no listing API. A query for the whole collection with
	// a uniform probe vector returns every document; order is restored by
	// timestamp afterwards.
	results, err := s.query(ctx, s.probe(), s.col.Count())
	if err != nil {
		return nil, err
	}

	episodes := make([]*memory.Episode, 0, len(results))
	for _, r := range results {
		episodes = append(episodes, toEpisode(r))
	}
	memory.SortEpisodes(episodes)
	return episodes, nil
}

// Delete removes episodes by ID. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.col.GetByID(ctx, id); err == nil {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := s.col.Delete(ctx, nil, nil, existing...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}

	s.logger.Debug("deleted episodes", "count", len(existing), "requested", len(ids))
	return nil
}

// Count returns the number of stored episodes.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.col.Count(), nil
}

// Close releases resources.
func (s *Store) Close() error {
	// chromem-go persists on every write, nothing to flush
	return nil
}

// query runs a similarity query clamped to the collection size, which
// chromem-go requires. chromem-go reports a cancelled context as an empty
// result, so ctx is checked on both sides of the call.
func (s *Store) query(ctx context.Context, embedding []float32, limit int) ([]chromem.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count := s.col.Count()
	if limit > count {
		limit = count
	}
	if limit < 1 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// probe returns a unit vector with equal components.
func (s *Store) probe() []float32 {
	v := make([]float32, s.dimensions)
	c := float32(1 / math.Sqrt(float64(s.dimensions)))
	for i := range v {
		v[i] = c
	}
	return v
}

func toEpisode(r chromem.Result) *memory.Episode {
	return memory.EpisodeFromMetadata(r.ID, r.Content, r.Embedding, r.Metadata)
}

var _ memory.Store = (*Store)(nil)
