// Package core holds the conversation types shared between the caller's
// chat loop and the memory engine.
package core

import (
	"strings"
	"sync"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// FormatTranscript renders turns as "role: text" lines.
func FormatTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		lines = append(lines, t.Role+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// ParseTranscript splits "role: text" lines back into turns. Role prefixes
// match case-insensitively ("User:" and "user:"). Lines without
// a known role prefix continue the previous turn; leading text before any
// role is attributed to the user.
func ParseTranscript(text string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(text, "\n") {
		if role, rest, ok := splitRole(line); ok {
			turns = append(turns, Turn{Role: role, Text: rest})
			continue
		}
		if len(turns) == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			turns = append(turns, Turn{Role: RoleUser, Text: line})
			continue
		}
		last := &turns[len(turns)-1]
		last.Text += "\n" + line
	}
	for i := range turns {
		turns[i].Text = strings.TrimSpace(turns[i].Text)
	}
	return turns
}

func splitRole(line string) (role, rest string, ok bool) {
	for _, r := range []string{RoleUser, RoleAssistant} {
		if len(line) > len(r) && line[len(r)] == ':' && strings.EqualFold(line[:len(r)], r) {
			return r, strings.TrimSpace(line[len(r)+1:]), true
		}
	}
	return "", "", false
}

// Buffer is the working-memory turn buffer for the current conversation.
// It is safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	turns []Turn
}

// Add appends a turn.
func (b *Buffer) Add(role, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, Turn{Role: role, Text: text})
}

// Turns returns a copy of the buffered turns.
func (b *Buffer) Turns() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Drain returns the buffered turns and empties the buffer.
func (b *Buffer) Drain() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.turns
	b.turns = nil
	return out
}

// Len returns the number of buffered turns.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}
