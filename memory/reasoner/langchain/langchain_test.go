package langchain

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms/fake"

	"github.com/becomeliminal/nim-memory/memory/reasoner"
)

func TestGenerator_WithFakeModel(t *testing.T) {
	llm := fake.NewFakeLLM([]string{`["Ask for the order number first"]`})
	svc := reasoner.New(NewFromModel(llm, 0, 0))

	rules, err := svc.ExtractPatterns(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("ExtractPatterns failed: %v", err)
	}
	if len(rules) != 1 || rules[0] != "Ask for the order number first" {
		t.Errorf("rules = %v", rules)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown provider", Config{Provider: "cohere"}},
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}},
		{"anthropic without key", Config{Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_Ollama(t *testing.T) {
	g, err := New(Config{Provider: ProviderOllama, Model: "llama3", OllamaHost: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if g.maxTokens != 1024 || g.temperature != 0.3 {
		t.Errorf("defaults not applied: %d, %f", g.maxTokens, g.temperature)
	}
}
