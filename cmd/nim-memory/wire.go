package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/openai"
	"github.com/becomeliminal/nim-memory/memory/reasoner"
	"github.com/becomeliminal/nim-memory/memory/reasoner/anthropic"
	"github.com/becomeliminal/nim-memory/memory/reasoner/langchain"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/pgvector"
)

func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("reasoner: %w", err)
	}
	rsn := reasoner.New(gen,
		reasoner.WithTimeout(cfg.ReasonerTimeout),
		reasoner.WithLogger(logger),
	)

	store, err := newStore(ctx, cfg, emb.Dimensions(), logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return engine.New(store, emb, rsn, engine.Config{
		Memory:            cfg.Memory(),
		RulesFile:         cfg.ProceduralMemoryFile,
		ConsolidateEveryN: cfg.ConsolidationEveryN,
	}, engine.WithLogger(logger)), nil
}

func newStore(ctx context.Context, cfg *config.Config, dims int, logger *slog.Logger) (memory.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPGVector:
		return pgvector.New(ctx, pgvector.Config{
			DSN:        cfg.PostgresDSN,
			Table:      cfg.EpisodicCollection,
			Dimensions: dims,
		}, logger)
	default:
		return chromem.New(chromem.Config{
			Path:       cfg.StorePath,
			Collection: cfg.EpisodicCollection,
			Dimensions: dims,
		}, logger)
	}
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) (memory.Embedder, error) {
	var emb memory.Embedder
	switch cfg.EmbedProvider {
	case config.EmbedMock:
		emb = mock.New(mock.WithDimensions(cfg.EmbedDimensions))
	case config.EmbedONNX:
		onnxEmb, closeFn, err := newONNXEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, closeFn)
		emb = onnxEmb
	default:
		openaiEmb, err := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDimensions,
		})
		if err != nil {
			return nil, err
		}
		emb = openaiEmb
	}

	if cfg.EmbedCacheSize == 0 {
		return emb, nil
	}
	cached, err := cache.New(emb, cfg.EmbedCacheSize)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() error {
		cached.Close()
		return nil
	})
	return cached, nil
}

func newGenerator(cfg *config.Config) (reasoner.Generator, error) {
	switch cfg.LLMProvider {
	case config.LLMOllama:
		return langchain.New(langchain.Config{
			Provider:   langchain.ProviderOllama,
			Model:      cfg.LLMModel,
			OllamaHost: cfg.OllamaHost,
		})
	case config.LLMOpenAI:
		return langchain.New(langchain.Config{
			Provider: langchain.ProviderOpenAI,
			Model:    cfg.LLMModel,
			APIKey:   cfg.OpenAIAPIKey,
		})
	default:
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.LLMModel,
		})
	}
}
