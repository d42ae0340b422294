package reasoner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-memory/memory"
)

const fence = "```"

// StripFences removes incidental formatting around a JSON payload: Markdown
// code fences (with or without a language tag) and any prose before the
// first or after the last fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, fence); start >= 0 {
		body := text[start+len(fence):]
		if end := strings.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		// Drop a language tag such as "json" on the opening fence line.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			tag := strings.TrimSpace(body[:nl])
			if tag != "" && !strings.ContainsAny(tag, "{[") {
				body = body[nl+1:]
			}
		} else {
			body = strings.TrimPrefix(strings.TrimSpace(body), "json")
		}
		text = body
	}

	return strings.TrimSpace(text)
}

// reflectionPayload uses pointers to tell missing fields from empty ones.
type reflectionPayload struct {
	Summary     *string  `json:"summary"`
	WhatWorked  *string  `json:"what_worked"`
	WhatToAvoid *string  `json:"what_to_avoid"`
	ContextTags []string `json:"context_tags"`
}

// ParseReflection parses a reflection or merge payload. Summary, what_worked
// and what_to_avoid must be present strings and the summary must not be
// blank; context_tags, when present, must be an array of strings.
func ParseReflection(text string) (memory.Reflection, error) {
	var p reflectionPayload
	if err := decodeStrict(StripFences(text), &p); err != nil {
		return memory.Reflection{}, err
	}

	switch {
	case p.Summary == nil || strings.TrimSpace(*p.Summary) == "":
		return memory.Reflection{}, fmt.Errorf("%w: missing summary", memory.ErrMalformedOutput)
	case p.WhatWorked == nil:
		return memory.Reflection{}, fmt.Errorf("%w: missing what_worked", memory.ErrMalformedOutput)
	case p.WhatToAvoid == nil:
		return memory.Reflection{}, fmt.Errorf("%w: missing what_to_avoid", memory.ErrMalformedOutput)
	}

	return memory.Reflection{
		Summary:     *p.Summary,
		WhatWorked:  *p.WhatWorked,
		WhatToAvoid: *p.WhatToAvoid,
		ContextTags: p.ContextTags,
	}, nil
}

// ParseRuleList parses a JSON array of strings.
func ParseRuleList(text string) ([]string, error) {
	var rules []string
	if err := decodeStrict(StripFences(text), &rules); err != nil {
		return nil, err
	}
	if rules == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", memory.ErrMalformedOutput)
	}
	return rules, nil
}

// decodeStrict decodes exactly one JSON value from text into v.
func decodeStrict(text string, v any) error {
	if text == "" {
		return fmt.Errorf("%w: empty output", memory.ErrMalformedOutput)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", memory.ErrMalformedOutput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", memory.ErrMalformedOutput)
	}
	return nil
}
