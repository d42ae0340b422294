package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// episodeSeparator joins formatted episodes in Reasoner input.
const episodeSeparator = "\n\n---\n\n"

// ConsolidationResult contains the results of a consolidation run.
type ConsolidationResult struct {
	EpisodesBefore   int  `json:"episodes_before"`
	Clusters         int  `json:"clusters"`
	MergeCandidates  int  `json:"merge_candidates"`
	Merged           int  `json:"merged"`
	MergeFailures    int  `json:"merge_failures"`
	EpisodesAfter    int  `json:"episodes_after"`
	RulesPromoted    int  `json:"rules_promoted"`
	PromotionSkipped bool `json:"promotion_skipped"`
}

// Consolidator runs the periodic sleep phase: cluster similar episodes,
// merge each cluster into one episode, then promote recurring patterns to
// procedural rules.
//
// It owns no state. Callers must serialize Run against other writes to the
// same stores.
type Consolidator struct {
	episodes *EpisodicMemory
	rules    RuleSink
	reasoner Reasoner
	config   *Config
	logger   *slog.Logger
}

// NewConsolidator creates a Consolidator over the given stores.
func NewConsolidator(episodes *EpisodicMemory, rules RuleSink, reasoner Reasoner, config *Config, logger *slog.Logger) *Consolidator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{
		episodes: episodes,
		rules:    rules,
		reasoner: reasoner,
		config:   config,
		logger:   logger.With("component", "consolidation"),
	}
}

// Run executes a full consolidation cycle. Reasoner failures skip the
// affected cluster or the promotion step; persistence failures and context
// cancellation abort the run.
func (c *Consolidator) Run(ctx context.Context) (*ConsolidationResult, error) {
	result := &ConsolidationResult{}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	episodes, err := c.episodes.All(ctx)
	if err != nil {
		return result, err
	}
	result.EpisodesBefore = len(episodes)
	c.logger.Info("consolidation started", "episodes", len(episodes))

	// Phase 1: cluster
	clusters := ClusterEpisodes(episodes, c.config.ConsolidationThreshold)
	result.Clusters = len(clusters)

	// Phase 2: merge
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		result.MergeCandidates++

		if err := ctx.Err(); err != nil {
			return result, err
		}

		merged, err := c.mergeCluster(ctx, cluster)
		if err != nil {
			return result, err
		}
		if merged {
			result.Merged++
		} else {
			result.MergeFailures++
		}
	}

	// Phase 3: promote
	promoted, ran, err := c.promotePatterns(ctx)
	if err != nil {
		return result, err
	}
	result.RulesPromoted = promoted
	result.PromotionSkipped = !ran

	count, err := c.episodes.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("count episodes: %w", err)
	}
	result.EpisodesAfter = count

	c.logger.Info("consolidation finished",
		"clusters", result.Clusters,
		"merged", result.Merged,
		"merge_failures", result.MergeFailures,
		"episodes_after", result.EpisodesAfter,
		"rules_promoted", result.RulesPromoted)
	return result, nil
}

// mergeCluster replaces a cluster with a single merged episode. It reports
// false without error when the Reasoner could not produce a merge.
func (c *Consolidator) mergeCluster(ctx context.Context, cluster []*Episode) (bool, error) {
	merged, err := c.reasoner.Merge(ctx, lessonsOf(cluster))
	if err != nil {
		c.logger.Warn("merge failed, keeping originals",
			"kind", failureKind(err), "size", len(cluster), "error", err)
		return false, nil
	}

	ep := NewConsolidatedEpisode(merged, len(cluster), c.episodes.stamp())
	if err := c.episodes.replace(ctx, cluster, ep); err != nil {
		return false, fmt.Errorf("replace cluster: %w", err)
	}

	c.logger.Info("merged cluster", "id", ep.ID, "size", len(cluster))
	return true, nil
}

// promotePatterns asks the Reasoner for recurring patterns across the
// current episodes and adds each to the rule store. The boolean reports
// whether extraction was attempted.
func (c *Consolidator) promotePatterns(ctx context.Context) (int, bool, error) {
	episodes, err := c.episodes.All(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(episodes) < c.config.PromotionMinOccurrences {
		c.logger.Debug("too few episodes for promotion",
			"episodes", len(episodes), "min", c.config.PromotionMinOccurrences)
		return 0, false, nil
	}

	rules, err := c.reasoner.ExtractPatterns(ctx, lessonsOf(episodes))
	if err != nil {
		c.logger.Warn("pattern extraction failed", "kind", failureKind(err), "error", err)
		return 0, true, nil
	}

	promoted := 0
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if err := c.rules.AddRule(rule); err != nil {
			return promoted, true, fmt.Errorf("promote rule: %w", err)
		}
		promoted++
	}
	return promoted, true, nil
}

// ClusterEpisodes groups episodes by embedding similarity with a greedy
// single pass in the given order. Each unassigned episode seeds a cluster
// and absorbs every later unassigned episode whose similarity to the seed
// is at least threshold. Similarity is not transitive across seeds.
//
// If any episode has no embedding, every episode becomes a singleton.
func ClusterEpisodes(episodes []*Episode, threshold float64) [][]*Episode {
	clusters := make([][]*Episode, 0, len(episodes))

	if !allEmbedded(episodes) {
		for _, ep := range episodes {
			clusters = append(clusters, []*Episode{ep})
		}
		return clusters
	}

	assigned := make([]bool, len(episodes))
	for i, seed := range episodes {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		cluster := []*Episode{seed}

		for j := i + 1; j < len(episodes); j++ {
			if assigned[j] {
				continue
			}
			if CosineSimilarity(seed.Embedding, episodes[j].Embedding) >= threshold {
				cluster = append(cluster, episodes[j])
				assigned[j] = true
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

func allEmbedded(episodes []*Episode) bool {
	for _, ep := range episodes {
		if len(ep.Embedding) == 0 {
			return false
		}
	}
	return true
}

func lessonsOf(episodes []*Episode) []string {
	texts := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		texts = append(texts, ep.Lessons())
	}
	return texts
}

// JoinEpisodeTexts joins formatted episodes for a Reasoner prompt.
func JoinEpisodeTexts(texts []string) string {
	return strings.Join(texts, episodeSeparator)
}
