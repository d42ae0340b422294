package memory

import (
	"math"
	"sort"
	"time"
)

// Retrieval weights. Similarity dominates; recency breaks near-ties in
// favor of fresher memories.
const (
	SimilarityWeight = 0.7
	RecencyWeight    = 0.3

	// OversampleFactor is how many more candidates than TopK are pulled
	// from the similarity search before the recency re-rank.
	OversampleFactor = 2
)

// Ranker combines similarity and recency into a single ordering.
type Ranker struct {
	// TopK is the number of episodes kept after re-ranking.
	TopK int

	// HalfLife is the age at which an episode's recency drops to 0.5.
	HalfLife time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Candidates returns how many nearest neighbours to request for a store
// holding count episodes.
func (r Ranker) Candidates(count int) int {
	n := r.TopK * OversampleFactor
	if n > count {
		n = count
	}
	return n
}

// Rank scores candidates in place and returns the best TopK, highest score
// first. Candidates with equal scores keep their retrieval order.
func (r Ranker) Rank(candidates []ScoredEpisode) []ScoredEpisode {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	ranked := make([]ScoredEpisode, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Recency = Recency(now.Sub(ranked[i].Timestamp), r.HalfLife)
		ranked[i].Score = Score(ranked[i].Similarity, ranked[i].Recency)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if r.TopK >= 0 && len(ranked) > r.TopK {
		ranked = ranked[:r.TopK]
	}
	return ranked
}

// Recency is exp(-ln2 * age/halfLife): 1 for a brand new episode, 0.5 after
// one half-life. Negative ages are treated as zero.
func Recency(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

// Score blends similarity and recency with the retrieval weights.
func Score(similarity, recency float64) float64 {
	return similarity*SimilarityWeight + recency*RecencyWeight
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
