// Package engine ties the memory stores into a conversation lifecycle.
//
// The caller's chat loop asks BuildContext for prompt enrichment before
// answering, and calls EndConversation when a conversation is over. Every
// N conversations the engine runs consolidation. All mutations go through
// one writer lock, so readers never observe a half-applied merge.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultConsolidateEveryN is how many conversations pass between
// automatic consolidation runs.
const DefaultConsolidateEveryN = 5

// Context section headers.
const (
	rulesHeader    = "Behavioral rules learned from past conversations:"
	episodesHeader = "Relevant past experiences:"
)

// Config configures the engine.
type Config struct {
	// Memory holds retrieval and consolidation tuning. Nil uses defaults.
	Memory *memory.Config

	// RulesFile is the procedural rule file path.
	RulesFile string

	// ConsolidateEveryN triggers consolidation after every N stored
	// conversations. Default: 5
	ConsolidateEveryN int
}

// Engine is the memory lifecycle integrator.
type Engine struct {
	store        memory.Store
	episodes     *memory.EpisodicMemory
	rules        *memory.RuleStore
	consolidator *memory.Consolidator
	everyN       int
	logger       *slog.Logger
	now          func() time.Time

	mu            sync.RWMutex
	conversations int
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the clock used for episode timestamps and recency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over the given backends.
func New(store memory.Store, embedder memory.Embedder, reasoner memory.Reasoner, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		everyN: cfg.ConsolidateEveryN,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.everyN <= 0 {
		e.everyN = DefaultConsolidateEveryN
	}
	mcfg := cfg.Memory
	if mcfg == nil {
		mcfg = memory.DefaultConfig()
	}

	e.episodes = memory.NewEpisodicMemory(store, embedder, reasoner, mcfg, e.logger)
	if e.now != nil {
		e.episodes.SetClock(e.now)
	}
	e.rules = memory.OpenRuleStore(cfg.RulesFile, mcfg.MaxRules, reasoner, e.logger)
	e.consolidator = memory.NewConsolidator(e.episodes, e.rules, reasoner, mcfg, e.logger)
	e.logger = e.logger.With("component", "engine")
	return e
}

// EndResult reports what EndConversation did.
type EndResult struct {
	// Conversation is the running count of remembered conversations.
	Conversation int

	// Episode is the outcome of storing the conversation.
	Episode memory.WriteResult

	// Rules is the outcome of the incremental rule update.
	Rules memory.WriteResult

	// Consolidation is set when this conversation triggered a run.
	Consolidation *memory.ConsolidationResult
}

// EndConversation remembers a finished conversation.
func (e *Engine) EndConversation(ctx context.Context, turns []core.Turn) (*EndResult, error) {
	return e.EndTranscript(ctx, core.FormatTranscript(turns))
}

// EndTranscript remembers a finished conversation given as plain text. It
// stores an episode, folds the episode's lessons into the rule set, and
// runs consolidation every N conversations.
func (e *Engine) EndTranscript(ctx context.Context, transcript string) (*EndResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &EndResult{}
	if strings.TrimSpace(transcript) == "" {
		res.Episode = memory.WriteResult{Reason: "empty conversation"}
		res.Rules = memory.WriteResult{Reason: "no episode"}
		res.Conversation = e.conversations
		return res, nil
	}

	res.Conversation = e.conversations
	stored, err := e.episodes.Store(ctx, transcript)
	if err != nil {
		return res, fmt.Errorf("store episode: %w", err)
	}
	res.Episode = stored

	// A skipped reflection still counts; a failed write does not.
	e.conversations++
	res.Conversation = e.conversations

	res.Rules = memory.WriteResult{Reason: "no episode"}
	if stored.Stored() {
		if evidence := Evidence(stored.Episode); evidence != "" {
			res.Rules, err = e.rules.Update(ctx, evidence)
			if err != nil {
				return res, fmt.Errorf("update rules: %w", err)
			}
		} else {
			res.Rules = memory.WriteResult{Reason: "no lessons"}
		}
	}

	if e.conversations%e.everyN == 0 {
		e.logger.Info("consolidation due", "conversation", e.conversations, "every", e.everyN)
		cons, err := e.consolidator.Run(ctx)
		res.Consolidation = cons
		if err != nil {
			return res, fmt.Errorf("consolidate: %w", err)
		}
	}

	e.logger.Info("conversation remembered",
		"conversation", e.conversations,
		"episode", stored.Status.String(),
		"rules", res.Rules.Status.String(),
		"consolidated", res.Consolidation != nil)
	return res, nil
}

// Evidence renders an episode's lessons for the rule update, or "" when
// the episode has none.
func Evidence(ep *memory.Episode) string {
	if ep == nil {
		return ""
	}
	var lines []string
	if ep.WhatWorked != "" && ep.WhatWorked != memory.NoData {
		lines = append(lines, "What worked: "+ep.WhatWorked)
	}
	if ep.WhatToAvoid != "" && ep.WhatToAvoid != memory.NoData {
		lines = append(lines, "What to avoid: "+ep.WhatToAvoid)
	}
	return strings.Join(lines, "\n")
}

// BuildContext assembles prompt enrichment for query: the procedural rules
// and the recalled episodes. Sections are omitted when empty; the result
// is "" when there is nothing to add.
func (e *Engine) BuildContext(ctx context.Context, query string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var sections []string
	if rules, ok := e.rules.RulesText(); ok {
		sections = append(sections, rulesHeader+"\n"+rules)
	}

	recalled, ok, err := e.episodes.RecallAsContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("recall episodes: %w", err)
	}
	if ok {
		sections = append(sections, episodesHeader+"\n"+recalled)
	}

	return strings.Join(sections, "\n\n"), nil
}

// Recall returns the ranked episodes for query.
func (e *Engine) Recall(ctx context.Context, query string) ([]memory.ScoredEpisode, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.episodes.Recall(ctx, query)
}

// Consolidate runs consolidation now.
func (e *Engine) Consolidate(ctx context.Context) (*memory.ConsolidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consolidator.Run(ctx)
}

// Episodes lists all stored episodes.
func (e *Engine) Episodes(ctx context.Context) ([]*memory.Episode, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.episodes.All(ctx)
}

// Forget deletes episodes by ID. Unknown IDs are ignored.
func (e *Engine) Forget(ctx context.Context, ids ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.episodes.Delete(ctx, ids...)
}

// Rules returns the current procedural rules.
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules.Rules()
}

// AddRule adds a procedural rule directly.
func (e *Engine) AddRule(rule string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.AddRule(rule)
}

// UpdateRules folds evidence into the procedural rules.
func (e *Engine) UpdateRules(ctx context.Context, evidence string) (memory.WriteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Update(ctx, evidence)
}

// Stats summarizes memory contents.
type Stats struct {
	Episodes      int `json:"episodes"`
	Consolidated  int `json:"consolidated"`
	Rules         int `json:"rules"`
	MaxRules      int `json:"max_rules"`
	Conversations int `json:"conversations"`
}

// Stats returns counts across the stores.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	eps, err := e.episodes.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Episodes:      len(eps),
		Rules:         e.rules.Len(),
		MaxRules:      e.rules.MaxRules(),
		Conversations: e.conversations,
	}
	for _, ep := range eps {
		if ep.Consolidated {
			s.Consolidated++
		}
	}
	return s, nil
}

// Close releases the episode store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Close()
}
