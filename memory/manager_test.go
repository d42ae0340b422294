package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

func newEpisodic(t *testing.T, emb memory.Embedder, r memory.Reasoner) (*memory.EpisodicMemory, memory.Store) {
	t.Helper()
	store := newTestStore(t)
	m := memory.NewEpisodicMemory(store, emb, r, memory.DefaultConfig(), discardLogger())
	m.SetClock(fixedClock(epoch))
	return m, store
}

func TestEpisodicMemory_StoreAndAll(t *testing.T) {
	ctx := context.Background()
	m, _ := newEpisodic(t, newKeyedEmbedder(), newScriptedReasoner())

	res, err := m.Store(ctx, "refund for order 42")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !res.Stored() {
		t.Fatalf("expected stored, got %s (%s)", res.Status, res.Reason)
	}
	if !strings.HasPrefix(res.ID, "episode_") {
		t.Errorf("unexpected episode ID %q", res.ID)
	}

	all, err := m.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(all))
	}

	ep := all[0]
	if ep.ID != res.ID {
		t.Errorf("ID = %q, want %q", ep.ID, res.ID)
	}
	if ep.Summary != "talked about refund for order 42" {
		t.Errorf("Summary = %q", ep.Summary)
	}
	if ep.WhatToAvoid != memory.NoData {
		t.Errorf("blank what_to_avoid should be stored as %q, got %q", memory.NoData, ep.WhatToAvoid)
	}
	if ep.Consolidated {
		t.Error("fresh episode must not be marked consolidated")
	}
	if !ep.Timestamp.Equal(epoch) {
		t.Errorf("Timestamp = %v, want %v", ep.Timestamp, epoch)
	}
	if !strings.Contains(ep.Document, "Full conversation:\nrefund for order 42") {
		t.Errorf("document should embed the conversation, got %q", ep.Document)
	}
}

func TestEpisodicMemory_StoreSkipsEmptyConversation(t *testing.T) {
	r := newScriptedReasoner()
	m, _ := newEpisodic(t, newKeyedEmbedder(), r)

	res, err := m.Store(context.Background(), "   \n\t")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if res.Stored() {
		t.Error("blank conversation must not be stored")
	}
	if r.reflectCalls != 0 {
		t.Errorf("reasoner should not be called, got %d calls", r.reflectCalls)
	}
}

func TestEpisodicMemory_StoreSkipsOnReasonerFailure(t *testing.T) {
	for name, failure := range map[string]error{
		"malformed":  fmt.Errorf("%w: not json", memory.ErrMalformedOutput),
		"generation": fmt.Errorf("%w: timeout", memory.ErrGeneration),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newScriptedReasoner()
			r.reflect = func(string) (memory.Reflection, error) { return memory.Reflection{}, failure }
			emb := newKeyedEmbedder()
			m, _ := newEpisodic(t, emb, r)

			res, err := m.Store(ctx, "hello")
			if err != nil {
				t.Fatalf("reasoner failure must not surface as error: %v", err)
			}
			if res.Stored() {
				t.Error("expected skipped result")
			}
			if n, _ := m.Count(ctx); n != 0 {
				t.Errorf("expected empty store, got %d", n)
			}
			if emb.callCount() != 0 {
				t.Error("embedder should not run after a failed reflection")
			}
		})
	}
}

func TestEpisodicMemory_StoreReturnsEmbedError(t *testing.T) {
	emb := newKeyedEmbedder()
	emb.err = errors.New("embedding service down")
	m, _ := newEpisodic(t, emb, newScriptedReasoner())

	if _, err := m.Store(context.Background(), "hello"); err == nil {
		t.Fatal("expected embed error to be returned")
	}
}

func TestEpisodicMemory_RecallEmpty(t *testing.T) {
	emb := newKeyedEmbedder()
	m, _ := newEpisodic(t, emb, newScriptedReasoner())

	got, ok, err := m.Recall(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if ok || got != nil {
		t.Errorf("expected nothing to recall, got %v", got)
	}
	if emb.callCount() != 0 {
		t.Error("empty store should short-circuit before embedding")
	}

	text, ok, err := m.RecallAsContext(context.Background(), "anything")
	if err != nil || ok || text != "" {
		t.Errorf("RecallAsContext = (%q, %v, %v), want empty", text, ok, err)
	}
}

func TestEpisodicMemory_RecallRanksByRecency(t *testing.T) {
	ctx := context.Background()
	emb := newKeyedEmbedder().on("query", 1, 0, 0)
	m, store := newEpisodic(t, emb, newScriptedReasoner())

	// old: similarity 1.0, ten half-lives old; fresh: similarity 0.8, new.
	seed(t, store, "old", epoch.Add(-720*time.Hour), 1, 0, 0)
	seed(t, store, "fresh", epoch, 0.8, 0.6, 0)

	got, ok, err := m.Recall(ctx, "query")
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if !ok || len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "fresh" {
		t.Errorf("expected fresh episode first, got %s", got[0].ID)
	}
	if got[0].Recency < 0.999 {
		t.Errorf("fresh recency = %f, want ~1", got[0].Recency)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %f, %f", got[0].Score, got[1].Score)
	}
}

func TestEpisodicMemory_RecallTopK(t *testing.T) {
	ctx := context.Background()
	emb := newKeyedEmbedder().on("query", 1, 0, 0)
	m, store := newEpisodic(t, emb, newScriptedReasoner())

	for i := 0; i < 8; i++ {
		seed(t, store, fmt.Sprintf("ep%d", i), epoch, 1, float32(i)/10, 0)
	}

	got, ok, err := m.Recall(ctx, "query")
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	if !ok || len(got) != 3 {
		t.Fatalf("expected TopK=3 results, got %d", len(got))
	}
	want := []string{"ep0", "ep1", "ep2"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("result %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestEpisodicMemory_RecallAsContext(t *testing.T) {
	ctx := context.Background()
	emb := newKeyedEmbedder().on("query", 1, 0, 0)
	m, store := newEpisodic(t, emb, newScriptedReasoner())

	seed(t, store, "a", epoch, 1, 0, 0)
	seed(t, store, "b", epoch, 0, 1, 0)

	text, ok, err := m.RecallAsContext(ctx, "query")
	if err != nil || !ok {
		t.Fatalf("RecallAsContext = (%v, %v)", ok, err)
	}

	want := "[Past experience 1]\nSummary: summary a\nWhat worked: worked a\nWhat to avoid: avoid a" +
		"\n\n[Past experience 2]\nSummary: summary b\nWhat worked: worked b\nWhat to avoid: avoid b"
	if text != want {
		t.Errorf("RecallAsContext =\n%s\nwant\n%s", text, want)
	}
}

func TestEpisodicMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m, store := newEpisodic(t, newKeyedEmbedder(), newScriptedReasoner())

	seed(t, store, "a", epoch, 1, 0, 0)
	seed(t, store, "b", epoch, 0, 1, 0)

	if err := m.Delete(ctx); err != nil {
		t.Fatalf("empty Delete failed: %v", err)
	}
	if err := m.Delete(ctx, "a", "nope"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	all, err := m.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "b" {
		t.Errorf("expected only b to remain, got %v", all)
	}
}

func TestEpisodicMemory_AllEmptyIsNonNil(t *testing.T) {
	m, _ := newEpisodic(t, newKeyedEmbedder(), newScriptedReasoner())
	all, err := m.All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", all)
	}
}

func TestEpisodicMemory_StoreOrderUnderFixedClock(t *testing.T) {
	ctx := context.Background()
	m, _ := newEpisodic(t, newKeyedEmbedder(), newScriptedReasoner())

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := m.Store(ctx, fmt.Sprintf("conversation %d", i))
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		ids = append(ids, res.ID)
	}

	all, err := m.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != len(ids) {
		t.Fatalf("expected %d episodes, got %d", len(ids), len(all))
	}
	for i, ep := range all {
		if ep.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s (insertion order)", i, ep.ID, ids[i])
		}
		if i > 0 && !ep.Timestamp.After(all[i-1].Timestamp) {
			t.Errorf("timestamps must strictly increase: %v then %v", all[i-1].Timestamp, ep.Timestamp)
		}
	}
}

func TestEpisodicMemory_RecallCancelledIsError(t *testing.T) {
	m, store := newEpisodic(t, newKeyedEmbedder(), newScriptedReasoner())
	seed(t, store, "a", epoch, 1, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, ok, err := m.Recall(ctx, "refund")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ok || got != nil {
		t.Errorf("cancelled recall must not report results, got %v", got)
	}
}
