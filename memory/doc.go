// Package memory provides long-term memory for a conversational agent.
//
// The memory system decides which past conversations are worth keeping,
// recalls the most relevant ones for a new query, and compresses a growing
// episode store into a bounded set of durable rules.
//
// Architecture:
//   - Store: Vector storage backend (chromem-go locally, pgvector for production)
//   - Embedder: Text-to-vector conversion (ONNX or OpenAI, optionally cached)
//   - Reasoner: LLM reflection, merging, and rule extraction (see package reasoner)
//   - EpisodicMemory: Reflect-and-store writes, similarity + recency recall
//   - Consolidator: Cluster, merge, and promote in one batch pass
//   - RuleStore: Bounded, deduplicated procedural rules mirrored to a JSON file
//
// Lifecycle:
//   - End of conversation: EpisodicMemory.Store, then RuleStore.Update
//   - Before answering: RuleStore.RulesText and EpisodicMemory.RecallAsContext
//   - Every N conversations: Consolidator.Run
//
// Nothing in this package locks across calls. The engine package serializes
// writers for multi-session use.
package memory
