package memory

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoData is the sentinel stored in WhatWorked/WhatToAvoid when a reflection
// had nothing to report.
const NoData = "N/A"

// Metadata keys shared by Store implementations.
const (
	MetaSummary      = "summary"
	MetaWhatWorked   = "what_worked"
	MetaWhatToAvoid  = "what_to_avoid"
	MetaContextTags  = "context_tags"
	MetaTimestamp    = "timestamp"
	MetaConsolidated = "consolidated"
)

// Reflection is the structured summary the Reasoner derives from raw text.
type Reflection struct {
	Summary     string   `json:"summary"`
	WhatWorked  string   `json:"what_worked"`
	WhatToAvoid string   `json:"what_to_avoid"`
	ContextTags []string `json:"context_tags"`
}

// Episode is one persisted unit of reflected-upon past experience.
//
// Episodes are immutable once stored. Consolidation replaces a group of
// episodes with a single merged one; nothing updates fields in place.
type Episode struct {
	ID           string
	Embedding    []float32
	Timestamp    time.Time
	Summary      string
	WhatWorked   string
	WhatToAvoid  string
	ContextTags  []string
	Consolidated bool

	// Document is the text the embedding was computed from.
	Document string
}

// ScoredEpisode is an episode returned by a similarity query, with the
// ranking signals attached.
type ScoredEpisode struct {
	*Episode
	Similarity float64
	Recency    float64
	Score      float64
}

// NewEpisode creates an episode from a reflection of a conversation.
// The embedding is set separately once the document has been embedded.
func NewEpisode(r Reflection, conversation string, now time.Time) *Episode {
	ep := &Episode{
		ID:          newID("episode", now),
		Timestamp:   now,
		Summary:     strings.TrimSpace(r.Summary),
		WhatWorked:  orNoData(r.WhatWorked),
		WhatToAvoid: orNoData(r.WhatToAvoid),
		ContextTags: NormalizeTags(r.ContextTags),
	}
	ep.Document = ep.Lessons() + "\n\nFull conversation:\n" + conversation
	return ep
}

// NewConsolidatedEpisode creates the merge product of size source episodes.
// Its timestamp is now, which resets its recency clock.
func NewConsolidatedEpisode(r Reflection, size int, now time.Time) *Episode {
	ep := &Episode{
		ID:           newID("consolidated", now),
		Timestamp:    now,
		Summary:      strings.TrimSpace(r.Summary),
		WhatWorked:   orNoData(r.WhatWorked),
		WhatToAvoid:  orNoData(r.WhatToAvoid),
		ContextTags:  NormalizeTags(r.ContextTags),
		Consolidated: true,
	}
	ep.Document = fmt.Sprintf("%s\n\n[Consolidated from %d episodes]", ep.Lessons(), size)
	return ep
}

// Lessons formats the summary and worked/avoid fields. This is the text
// handed to the Reasoner for merge and pattern extraction.
func (e *Episode) Lessons() string {
	return fmt.Sprintf("Summary: %s\nWhat worked: %s\nWhat to avoid: %s",
		orNoData(e.Summary), orNoData(e.WhatWorked), orNoData(e.WhatToAvoid))
}

// Metadata returns the flat string metadata persisted alongside the vector.
func (e *Episode) Metadata() map[string]string {
	return map[string]string{
		MetaSummary:      e.Summary,
		MetaWhatWorked:   e.WhatWorked,
		MetaWhatToAvoid:  e.WhatToAvoid,
		MetaContextTags:  strings.Join(e.ContextTags, ","),
		MetaTimestamp:    FormatTimestamp(e.Timestamp),
		MetaConsolidated: strconv.FormatBool(e.Consolidated),
	}
}

// EpisodeFromMetadata rebuilds an episode from stored fields.
// Used by Store implementations when deserializing.
func EpisodeFromMetadata(id, document string, embedding []float32, meta map[string]string) *Episode {
	consolidated, _ := strconv.ParseBool(meta[MetaConsolidated])
	return &Episode{
		ID:           id,
		Embedding:    embedding,
		Timestamp:    ParseTimestamp(meta[MetaTimestamp]),
		Summary:      meta[MetaSummary],
		WhatWorked:   meta[MetaWhatWorked],
		WhatToAvoid:  meta[MetaWhatToAvoid],
		ContextTags:  SplitTags(meta[MetaContextTags]),
		Consolidated: consolidated,
		Document:     document,
	}
}

// NormalizeTags applies set semantics: trimmed, blanks dropped,
// duplicates collapsed, sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SplitTags parses the comma-joined tag list stored in metadata.
func SplitTags(s string) []string {
	if s == "" {
		return nil
	}
	return NormalizeTags(strings.Split(s, ","))
}

// FormatTimestamp renders t as float seconds since epoch.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

// ParseTimestamp parses float seconds since epoch, to microsecond
// precision. Invalid input yields the zero time.
func ParseTimestamp(s string) time.Time {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	whole := math.Floor(secs)
	micros := math.Round((secs - whole) * 1e6)
	return time.Unix(int64(whole), int64(micros)*int64(time.Microsecond))
}

// SortEpisodes orders episodes by store order: timestamp, then ID.
func SortEpisodes(eps []*Episode) {
	sort.SliceStable(eps, func(i, j int) bool {
		if !eps[i].Timestamp.Equal(eps[j].Timestamp) {
			return eps[i].Timestamp.Before(eps[j].Timestamp)
		}
		return eps[i].ID < eps[j].ID
	})
}

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), uuid.New().String()[:8])
}

func orNoData(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoData
	}
	return s
}
