package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// EpisodicMemory stores past conversations as reflected episodes and
// recalls them with similarity + recency ranking.
//
// Writes are best-effort: when the Reasoner fails to produce a reflection
// the conversation is simply not remembered. Embedding and persistence
// failures are returned to the caller.
type EpisodicMemory struct {
	store    Store
	embedder Embedder
	reasoner Reasoner
	ranker   Ranker
	logger   *slog.Logger
	now      func() time.Time

	// last is the most recent write timestamp handed out by stamp.
	stampMu sync.Mutex
	last    time.Time
}

// NewEpisodicMemory creates an EpisodicMemory.
func NewEpisodicMemory(store Store, embedder Embedder, reasoner Reasoner, config *Config, logger *slog.Logger) *EpisodicMemory {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &EpisodicMemory{
		store:    store,
		embedder: embedder,
		reasoner: reasoner,
		logger:   logger.With("component", "memory"),
		now:      time.Now,
	}
	m.ranker = Ranker{
		TopK:     config.EpisodicTopK,
		HalfLife: config.RecencyHalfLife,
		Now:      func() time.Time { return m.now() },
	}
	return m
}

// SetClock overrides the clock used for timestamps and recency.
func (m *EpisodicMemory) SetClock(now func() time.Time) {
	m.now = now
}

// stamp returns the timestamp for a new episode. Write timestamps are
// strictly increasing at the microsecond precision they are persisted
// with, so store order (timestamp, then ID) is insertion order even when
// the clock stands still.
func (m *EpisodicMemory) stamp() time.Time {
	m.stampMu.Lock()
	defer m.stampMu.Unlock()

	t := m.now().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// Store reflects on a conversation and persists it as an episode.
func (m *EpisodicMemory) Store(ctx context.Context, conversation string) (WriteResult, error) {
	if strings.TrimSpace(conversation) == "" {
		return skipped("empty conversation"), nil
	}

	reflection, err := m.reasoner.Reflect(ctx, conversation)
	if err != nil {
		m.logger.Warn("reflection failed, conversation not stored",
			"kind", failureKind(err), "error", err)
		return skipped("reflection failed"), nil
	}

	ep := NewEpisode(reflection, conversation, m.stamp())
	if err := m.embedAndAdd(ctx, ep); err != nil {
		return WriteResult{}, err
	}

	m.logger.Info("stored episode", "id", ep.ID, "tags", ep.ContextTags, "summary", truncateLog(ep.Summary, 80))
	return WriteResult{Status: StatusStored, ID: ep.ID, Episode: ep}, nil
}

// Recall returns the most relevant past episodes for query. The boolean is
// false when there is nothing to recall.
func (m *EpisodicMemory) Recall(ctx context.Context, query string) ([]ScoredEpisode, bool, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("count episodes: %w", err)
	}
	if count == 0 {
		return nil, false, nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := m.store.Query(ctx, embedding, m.ranker.Candidates(count))
	if err != nil {
		return nil, false, fmt.Errorf("query store: %w", err)
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}

	ranked := m.ranker.Rank(candidates)
	m.logger.Debug("recalled episodes",
		"query", truncateLog(query, 50), "candidates", len(candidates), "returned", len(ranked))
	return ranked, len(ranked) > 0, nil
}

// RecallAsContext formats recalled episodes as a text block for prompt
// injection. The boolean is false when there is nothing to recall.
func (m *EpisodicMemory) RecallAsContext(ctx context.Context, query string) (string, bool, error) {
	episodes, ok, err := m.Recall(ctx, query)
	if err != nil || !ok {
		return "", false, err
	}
	return FormatEpisodes(episodes), true, nil
}

// All returns every stored episode in store order.
func (m *EpisodicMemory) All(ctx context.Context) ([]*Episode, error) {
	eps, err := m.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	if eps == nil {
		eps = []*Episode{}
	}
	return eps, nil
}

// Delete removes episodes by ID. Unknown IDs are ignored.
func (m *EpisodicMemory) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.store.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("delete episodes: %w", err)
	}
	return nil
}

// Count returns the number of stored episodes.
func (m *EpisodicMemory) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// replace adds merged and then removes the originals it absorbed.
func (m *EpisodicMemory) replace(ctx context.Context, originals []*Episode, merged *Episode) error {
	if err := m.embedAndAdd(ctx, merged); err != nil {
		return err
	}
	ids := make([]string, 0, len(originals))
	for _, ep := range originals {
		ids = append(ids, ep.ID)
	}
	return m.Delete(ctx, ids...)
}

func (m *EpisodicMemory) embedAndAdd(ctx context.Context, ep *Episode) error {
	embedding, err := m.embedder.Embed(ctx, ep.Document)
	if err != nil {
		return fmt.Errorf("embed episode: %w", err)
	}
	ep.Embedding = embedding

	if err := m.store.Add(ctx, ep); err != nil {
		return fmt.Errorf("store episode: %w", err)
	}
	return nil
}

// FormatEpisodes renders episodes as numbered past experiences.
func FormatEpisodes(episodes []ScoredEpisode) string {
	parts := make([]string, 0, len(episodes))
	for i, ep := range episodes {
		parts = append(parts, fmt.Sprintf("[Past experience %d]\n%s", i+1, ep.Lessons()))
	}
	return strings.Join(parts, "\n\n")
}

// failureKind classifies a Reasoner error for logging.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrGeneration):
		return "generation"
	default:
		return "unknown"
	}
}

// truncateLog truncates text to maxLen runes for logging.
func truncateLog(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// Config holds memory tuning parameters.
type Config struct {
	// EpisodicTopK is the number of episodes returned by Recall.
	// Default: 3
	EpisodicTopK int

	// RecencyHalfLife is the age at which recency weight halves.
	// Default: 72h
	RecencyHalfLife time.Duration

	// ConsolidationThreshold is the cosine similarity at or above which
	// an episode joins a cluster seed.
	// Default: 0.70
	ConsolidationThreshold float64

	// PromotionMinOccurrences is the minimum number of episodes before
	// pattern promotion is attempted.
	// Default: 3
	PromotionMinOccurrences int

	// MaxRules caps the procedural rule store.
	// Default: 15
	MaxRules int
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		EpisodicTopK:            3,
		RecencyHalfLife:         72 * time.Hour,
		ConsolidationThreshold:  0.70,
		PromotionMinOccurrences: 3,
		MaxRules:                15,
	}
}
