package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

var base = time.Unix(1_700_000_000, 0)

func episode(id string, offset time.Duration, vec ...float32) *memory.Episode {
	return &memory.Episode{
		ID:          id,
		Embedding:   vec,
		Timestamp:   base.Add(offset),
		Summary:     "summary of " + id,
		WhatWorked:  "asking first",
		WhatToAvoid: memory.NoData,
		ContextTags: []string{"billing", "refund"},
		Document:    "document for " + id,
	}
}

func newStore(t *testing.T) *chromem.Store {
	t.Helper()
	s, err := chromem.New(chromem.Config{Dimensions: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_EmptyQueries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	got, err := s.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_AddQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, episode("a", 0, 1, 0)))
	require.NoError(t, s.Add(ctx, episode("b", time.Hour, 0, 1)))

	got, err := s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "limit is clamped to collection size")

	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
	assert.InDelta(t, 0.0, got[1].Similarity, 1e-5)

	ep := got[0].Episode
	assert.Equal(t, "summary of a", ep.Summary)
	assert.Equal(t, "asking first", ep.WhatWorked)
	assert.Equal(t, memory.NoData, ep.WhatToAvoid)
	assert.Equal(t, []string{"billing", "refund"}, ep.ContextTags)
	assert.True(t, ep.Timestamp.Equal(base), "timestamp %v", ep.Timestamp)
	assert.Equal(t, "document for a", ep.Document)
	assert.Len(t, ep.Embedding, 2)
}

func TestStore_QueryLimit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, episode("a", 0, 1, 0)))
	require.NoError(t, s.Add(ctx, episode("b", 0, 0.8, 0.6)))
	require.NoError(t, s.Add(ctx, episode("c", 0, 0, 1)))

	got, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = s.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_AllOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, episode("late", 2*time.Hour, 0, 1)))
	require.NoError(t, s.Add(ctx, episode("early", 0, 1, 0)))
	require.NoError(t, s.Add(ctx, episode("mid-b", time.Hour, 0.6, 0.8)))
	require.NoError(t, s.Add(ctx, episode("mid-a", time.Hour, 0.8, 0.6)))

	all, err := s.All(ctx)
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, ep := range all {
		ids[i] = ep.ID
		assert.NotEmpty(t, ep.Embedding, "All includes embeddings")
	}
	assert.Equal(t, []string{"early", "mid-a", "mid-b", "late"}, ids)

	// All has no side effects
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_DeleteIgnoresUnknown(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, episode("a", 0, 1, 0)))
	require.NoError(t, s.Add(ctx, episode("b", 0, 0, 1)))

	require.NoError(t, s.Delete(ctx, "missing"))
	require.NoError(t, s.Delete(ctx, "a", "missing"))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestStore_AddRequiresEmbedding(t *testing.T) {
	s := newStore(t)
	err := s.Add(context.Background(), episode("a", 0))
	assert.Error(t, err)
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := chromem.New(chromem.Config{Path: dir, Dimensions: 2}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, episode("a", 0, 1, 0)))
	require.NoError(t, s.Close())

	reopened, err := chromem.New(chromem.Config{Path: dir, Dimensions: 2}, nil)
	require.NoError(t, err)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_RequiresDimensions(t *testing.T) {
	_, err := chromem.New(chromem.Config{}, nil)
	assert.Error(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newStore(t)
	for _, ep := range []*memory.Episode{
		episode("a", 0, 1, 0),
		episode("b", time.Minute, 0, 1),
		episode("c", 2*time.Minute, 1, 1),
	} {
		require.NoError(t, s.Add(context.Background(), ep))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	all, err := s.All(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, all)

	got, err := s.Query(ctx, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)

	expired, cancelExpired := context.WithDeadline(context.Background(), base)
	defer cancelExpired()
	_, err = s.All(expired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
