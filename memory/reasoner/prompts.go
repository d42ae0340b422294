package reasoner

const reflectPrompt = `You encode conversations into memories that can be retrieved later.

<conversation>
%s
</conversation>

Return ONLY a JSON object (no markdown, no code fences) with these fields:
- "context_tags": 2-4 specific retrieval keywords (product names, identifiers), not generic words
- "summary": one factual sentence with the key topic and outcome
- "what_worked": approaches that were effective, or "N/A"
- "what_to_avoid": mistakes or pitfalls that came up, or "N/A"`

const mergePrompt = `Several stored memories cover overlapping topics. Merge them into ONE memory that keeps every distinct piece of information.

<episodes>
%s
</episodes>

Keep every distinct fact and lesson. Drop only exact duplicates. Combine the "what worked" and "what to avoid" points.

Return ONLY a JSON object (no markdown, no code fences) with these fields:
- "summary": one sentence covering the merged topic
- "what_worked": combined effective approaches
- "what_to_avoid": combined pitfalls
- "context_tags": 2-4 keywords covering all merged topics`

const patternsPrompt = `Find recurring behavioral patterns in these memories that should become standing rules.

<memories>
%s
</memories>

A pattern qualifies only if at least 2 separate memories support it. Rules must be specific and actionable.

Return ONLY a JSON array of rule strings, or [] if nothing qualifies. No explanation, no markdown.`

const updatePrompt = `You maintain a list of behavioral guidelines and update it with new evidence.

<current_rules>
%s
</current_rules>

<new_evidence>
%s
</new_evidence>

Keep rules that are still valid. Merge evidence that overlaps an existing rule into that rule. Add a rule only when the evidence supports a general behavior. Remove rules the evidence contradicts. At most %d rules, most important first.

Return ONLY a JSON array of rule strings. No explanation, no markdown.`
