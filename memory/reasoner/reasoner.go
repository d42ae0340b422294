// Package reasoner implements memory.Reasoner on top of a text Generator.
//
// The Service owns prompt construction and strict output parsing; the
// generator subpackages (anthropic, langchain) only turn a prompt into text.
package reasoner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

// Generator turns a prompt into model output text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service is a memory.Reasoner backed by a Generator.
type Service struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds every Generator call. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a Service.
func New(gen Generator, opts ...Option) *Service {
	s := &Service{
		gen:    gen,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "reasoner")
	return s
}

var _ memory.Reasoner = (*Service)(nil)

// Reflect derives a structured reflection from a conversation.
func (s *Service) Reflect(ctx context.Context, conversation string) (memory.Reflection, error) {
	text, err := s.generate(ctx, "reflect", fmt.Sprintf(reflectPrompt, conversation))
	if err != nil {
		return memory.Reflection{}, err
	}
	return ParseReflection(text)
}

// Merge consolidates formatted episodes into one reflection.
func (s *Service) Merge(ctx context.Context, episodeTexts []string) (memory.Reflection, error) {
	prompt := fmt.Sprintf(mergePrompt, memory.JoinEpisodeTexts(episodeTexts))
	text, err := s.generate(ctx, "merge", prompt)
	if err != nil {
		return memory.Reflection{}, err
	}
	return ParseReflection(text)
}

// ExtractPatterns returns rules supported by at least two episodes.
func (s *Service) ExtractPatterns(ctx context.Context, episodeTexts []string) ([]string, error) {
	prompt := fmt.Sprintf(patternsPrompt, memory.JoinEpisodeTexts(episodeTexts))
	text, err := s.generate(ctx, "extract_patterns", prompt)
	if err != nil {
		return nil, err
	}
	return ParseRuleList(text)
}

// UpdateRules returns a complete replacement rule list.
func (s *Service) UpdateRules(ctx context.Context, currentRules, evidence string, maxRules int) ([]string, error) {
	text, err := s.generate(ctx, "update_rules", fmt.Sprintf(updatePrompt, currentRules, evidence, maxRules))
	if err != nil {
		return nil, err
	}
	return ParseRuleList(text)
}

func (s *Service) generate(ctx context.Context, call, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Debug("generation failed", "call", call, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", fmt.Errorf("%w: %s: %v", memory.ErrGeneration, call, err)
	}

	s.logger.Debug("generation complete", "call", call, "duration_ms", time.Since(start).Milliseconds(), "output_len", len(text))
	return text, nil
}
