package memory_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

const dims = 3

var epoch = time.Unix(1_700_000_000, 0)

// keyedEmbedder returns the vector of the first key contained in the text,
// or fallback.
type keyedEmbedder struct {
	mu       sync.Mutex
	keys     []string
	vecs     map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func newKeyedEmbedder() *keyedEmbedder {
	return &keyedEmbedder{
		vecs:     map[string][]float32{},
		fallback: []float32{0, 0, 1},
	}
}

func (e *keyedEmbedder) on(key string, vec ...float32) *keyedEmbedder {
	e.keys = append(e.keys, key)
	e.vecs[key] = vec
	return e
}

func (e *keyedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	for _, k := range e.keys {
		if strings.Contains(text, k) {
			return e.vecs[k], nil
		}
	}
	return e.fallback, nil
}

func (e *keyedEmbedder) Dimensions() int { return dims }

func (e *keyedEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// scriptedReasoner answers each call with a configurable function and
// records its inputs.
type scriptedReasoner struct {
	mu sync.Mutex

	reflect  func(conversation string) (memory.Reflection, error)
	merge    func(texts []string) (memory.Reflection, error)
	patterns func(texts []string) ([]string, error)
	update   func(current, evidence string, maxRules int) ([]string, error)

	reflectCalls  int
	mergeCalls    [][]string
	patternCalls  int
	updateCurrent []string
}

func newScriptedReasoner() *scriptedReasoner {
	return &scriptedReasoner{
		reflect: func(conv string) (memory.Reflection, error) {
			return memory.Reflection{
				Summary:     "talked about " + conv,
				WhatWorked:  "listening",
				WhatToAvoid: "",
				ContextTags: []string{"support"},
			}, nil
		},
		merge: func(texts []string) (memory.Reflection, error) {
			return memory.Reflection{
				Summary:     fmt.Sprintf("merged %d", len(texts)),
				WhatWorked:  "combined",
				WhatToAvoid: "repetition",
			}, nil
		},
		patterns: func([]string) ([]string, error) { return []string{}, nil },
		update: func(string, string, int) ([]string, error) {
			return []string{}, nil
		},
	}
}

func (r *scriptedReasoner) Reflect(_ context.Context, conversation string) (memory.Reflection, error) {
	r.mu.Lock()
	r.reflectCalls++
	r.mu.Unlock()
	return r.reflect(conversation)
}

func (r *scriptedReasoner) Merge(_ context.Context, texts []string) (memory.Reflection, error) {
	r.mu.Lock()
	r.mergeCalls = append(r.mergeCalls, texts)
	r.mu.Unlock()
	return r.merge(texts)
}

func (r *scriptedReasoner) ExtractPatterns(_ context.Context, texts []string) ([]string, error) {
	r.mu.Lock()
	r.patternCalls++
	r.mu.Unlock()
	return r.patterns(texts)
}

func (r *scriptedReasoner) UpdateRules(_ context.Context, current, evidence string, maxRules int) ([]string, error) {
	r.mu.Lock()
	r.updateCurrent = append(r.updateCurrent, current)
	r.mu.Unlock()
	return r.update(current, evidence, maxRules)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *chromem.Store {
	t.Helper()
	store, err := chromem.New(chromem.Config{Dimensions: dims}, discardLogger())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seed adds an episode directly to the store.
func seed(t *testing.T, store memory.Store, id string, at time.Time, vec ...float32) *memory.Episode {
	t.Helper()
	ep := &memory.Episode{
		ID:          id,
		Embedding:   vec,
		Timestamp:   at,
		Summary:     "summary " + id,
		WhatWorked:  "worked " + id,
		WhatToAvoid: "avoid " + id,
		Document:    "document " + id,
	}
	if err := store.Add(context.Background(), ep); err != nil {
		t.Fatalf("Failed to seed %s: %v", id, err)
	}
	return ep
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
