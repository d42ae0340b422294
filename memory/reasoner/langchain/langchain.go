// Package langchain generates reasoner output through langchaingo, which
// lets the memory core run against Ollama, OpenAI, or Anthropic models.
package langchain

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures the backing model.
type Config struct {
	Provider    string
	Model       string
	APIKey      string // OpenAI or Anthropic
	OllamaHost  string
	MaxTokens   int
	Temperature float64
}

// Generator wraps a langchaingo model.
type Generator struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

// New creates a Generator for the configured provider.
func New(cfg Config) (*Generator, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return NewFromModel(model, cfg.MaxTokens, cfg.Temperature), nil
}

// NewFromModel wraps an existing langchaingo model.
func NewFromModel(model llms.Model, maxTokens int, temperature float64) *Generator {
	if maxTokens == 0 {
		maxTokens = 1024
	}
	if temperature == 0 {
		temperature = 0.3
	}
	return &Generator{
		llm:         model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate generates text from a single prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithMaxTokens(g.maxTokens),
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}
