// Package anthropic generates reasoner output with the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Config configures the generator.
type Config struct {
	// APIKey is the Anthropic API key.
	APIKey string

	// Model is the Claude model to use (default: claude-sonnet-4-20250514).
	Model string

	// MaxTokens is the maximum response tokens (default: 1024).
	MaxTokens int64

	// Temperature is the sampling temperature (default: 0.3).
	Temperature float64

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Generator calls Claude with a single user message.
type Generator struct {
	client *anthropic.Client
	config Config
}

// New creates a new Anthropic generator.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &Generator{
		client: &client,
		config: cfg,
	}, nil
}

// Generate sends prompt and returns the concatenated text blocks.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.config.Model),
		MaxTokens:   g.config.MaxTokens,
		Temperature: anthropic.Float(g.config.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	if b.Len() == 0 {
		return "", errors.New("no text in Claude response")
	}
	return b.String(), nil
}
