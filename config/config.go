// Package config loads nim-memory settings from defaults, an optional YAML
// file, and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/memory"
)

// Store backends.
const (
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"
)

// Embedding providers.
const (
	EmbedOpenAI = "openai"
	EmbedONNX   = "onnx"
	EmbedMock   = "mock"
)

// LLM providers.
const (
	LLMAnthropic = "anthropic"
	LLMOllama    = "ollama"
	LLMOpenAI    = "openai"
)

// Config holds all configuration values.
type Config struct {
	// Storage
	StoreBackend       string `yaml:"store_backend"`
	StorePath          string `yaml:"store_path"`
	PostgresDSN        string `yaml:"postgres_dsn"`
	EpisodicCollection string `yaml:"episodic_collection"`
	SemanticCollection string `yaml:"semantic_collection"`

	// Retrieval
	SemanticTopK         int     `yaml:"semantic_top_k"`
	EpisodicTopK         int     `yaml:"episodic_top_k"`
	RecencyHalfLifeHours float64 `yaml:"recency_half_life_hours"`

	// Consolidation
	ConsolidationThreshold  float64 `yaml:"consolidation_threshold"`
	ConsolidationEveryN     int     `yaml:"consolidation_every_n"`
	PromotionMinOccurrences int     `yaml:"promotion_min_occurrences"`

	// Procedural memory
	MaxProceduralRules   int    `yaml:"max_procedural_rules"`
	ProceduralMemoryFile string `yaml:"procedural_memory_file"`

	// Reasoning
	LLMProvider     string        `yaml:"llm_provider"`
	LLMModel        string        `yaml:"llm_model"`
	AnthropicAPIKey string        `yaml:"-"`
	OpenAIAPIKey    string        `yaml:"-"`
	OllamaHost      string        `yaml:"ollama_host"`
	ReasonerTimeout time.Duration `yaml:"reasoner_timeout"`

	// Embedding
	EmbedProvider   string `yaml:"embed_provider"`
	EmbedModel      string `yaml:"embed_model"`
	EmbedDimensions int    `yaml:"embed_dimensions"`
	EmbedCacheSize  int    `yaml:"embed_cache_size"`
	ONNXModel       string `yaml:"onnx_model"`
	ONNXTokenizer   string `yaml:"onnx_tokenizer"`
	ONNXLibrary     string `yaml:"onnx_library"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StoreBackend:       BackendChromem,
		StorePath:          "./memory_db",
		EpisodicCollection: "episodic_memory",
		SemanticCollection: "semantic_memory",

		SemanticTopK:         10,
		EpisodicTopK:         3,
		RecencyHalfLifeHours: 72,

		ConsolidationThreshold:  0.70,
		ConsolidationEveryN:     5,
		PromotionMinOccurrences: 3,

		MaxProceduralRules:   15,
		ProceduralMemoryFile: "./procedural_memory.json",

		LLMProvider:     LLMAnthropic,
		LLMModel:        "claude-sonnet-4-20250514",
		OllamaHost:      "http://localhost:11434",
		ReasonerTimeout: 60 * time.Second,

		EmbedProvider:   EmbedOpenAI,
		EmbedModel:      "text-embedding-3-small",
		EmbedDimensions: 384,
		EmbedCacheSize:  1000,

		LogLevel: "INFO",
	}
}

// Load builds the configuration. path names an optional YAML file; a .env
// file in the working directory is read if present. Environment variables
// win over the file, which wins over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"NIM_MEMORY_STORE_BACKEND":       &c.StoreBackend,
		"NIM_MEMORY_STORE_PATH":          &c.StorePath,
		"NIM_MEMORY_POSTGRES_DSN":        &c.PostgresDSN,
		"NIM_MEMORY_EPISODIC_COLLECTION": &c.EpisodicCollection,
		"NIM_MEMORY_SEMANTIC_COLLECTION": &c.SemanticCollection,
		"PROCEDURAL_MEMORY_FILE":         &c.ProceduralMemoryFile,
		"NIM_MEMORY_LLM_PROVIDER":        &c.LLMProvider,
		"NIM_MEMORY_LLM_MODEL":           &c.LLMModel,
		"ANTHROPIC_API_KEY":              &c.AnthropicAPIKey,
		"OPENAI_API_KEY":                 &c.OpenAIAPIKey,
		"OLLAMA_HOST":                    &c.OllamaHost,
		"NIM_MEMORY_EMBED_PROVIDER":      &c.EmbedProvider,
		"NIM_MEMORY_EMBED_MODEL":         &c.EmbedModel,
		"NIM_MEMORY_ONNX_MODEL":          &c.ONNXModel,
		"NIM_MEMORY_ONNX_TOKENIZER":      &c.ONNXTokenizer,
		"NIM_MEMORY_ONNX_LIBRARY":        &c.ONNXLibrary,
		"NIM_MEMORY_LOG_FILE":            &c.LogFile,
		"NIM_MEMORY_LOG_LEVEL":           &c.LogLevel,
	}
	for key, dst := range strs {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	ints := map[string]*int{
		"SEMANTIC_TOP_K":              &c.SemanticTopK,
		"EPISODIC_TOP_K":              &c.EpisodicTopK,
		"CONSOLIDATION_EVERY_N":       &c.ConsolidationEveryN,
		"PROMOTION_MIN_OCCURRENCES":   &c.PromotionMinOccurrences,
		"MAX_PROCEDURAL_RULES":        &c.MaxProceduralRules,
		"NIM_MEMORY_EMBED_DIMENSIONS": &c.EmbedDimensions,
		"NIM_MEMORY_EMBED_CACHE_SIZE": &c.EmbedCacheSize,
	}
	for key, dst := range ints {
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, val, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"RECENCY_HALF_LIFE_HOURS": &c.RecencyHalfLifeHours,
		"CONSOLIDATION_THRESHOLD": &c.ConsolidationThreshold,
	}
	for key, dst := range floats {
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, val, err)
		}
		*dst = f
	}

	if val := os.Getenv("NIM_MEMORY_REASONER_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid NIM_MEMORY_REASONER_TIMEOUT %q: %w", val, err)
		}
		c.ReasonerTimeout = d
	}
	return nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.StoreBackend == BackendChromem || c.StoreBackend == BackendPGVector,
		"unknown store backend %q", c.StoreBackend)
	check(c.StoreBackend != BackendPGVector || c.PostgresDSN != "",
		"pgvector backend requires NIM_MEMORY_POSTGRES_DSN")
	check(c.EpisodicCollection != "", "episodic collection name is empty")
	check(c.SemanticTopK > 0, "SEMANTIC_TOP_K must be positive, got %d", c.SemanticTopK)
	check(c.EpisodicTopK > 0, "EPISODIC_TOP_K must be positive, got %d", c.EpisodicTopK)
	check(c.RecencyHalfLifeHours > 0, "RECENCY_HALF_LIFE_HOURS must be positive, got %g", c.RecencyHalfLifeHours)
	check(c.ConsolidationThreshold >= -1 && c.ConsolidationThreshold <= 1,
		"CONSOLIDATION_THRESHOLD must be within [-1, 1], got %g", c.ConsolidationThreshold)
	check(c.ConsolidationEveryN > 0, "CONSOLIDATION_EVERY_N must be positive, got %d", c.ConsolidationEveryN)
	check(c.PromotionMinOccurrences > 0, "PROMOTION_MIN_OCCURRENCES must be positive, got %d", c.PromotionMinOccurrences)
	check(c.MaxProceduralRules > 0, "MAX_PROCEDURAL_RULES must be positive, got %d", c.MaxProceduralRules)
	check(c.ProceduralMemoryFile != "", "PROCEDURAL_MEMORY_FILE is empty")
	check(c.EmbedDimensions > 0, "embedding dimensions must be positive, got %d", c.EmbedDimensions)
	check(c.EmbedCacheSize >= 0, "embedding cache size must not be negative, got %d", c.EmbedCacheSize)
	check(c.ReasonerTimeout >= 0, "reasoner timeout must not be negative, got %s", c.ReasonerTimeout)

	switch c.EmbedProvider {
	case EmbedOpenAI, EmbedONNX, EmbedMock:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.EmbedProvider))
	}
	switch c.LLMProvider {
	case LLMAnthropic, LLMOllama, LLMOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM provider %q", c.LLMProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Memory returns the tuning parameters for the memory package.
func (c *Config) Memory() *memory.Config {
	return &memory.Config{
		EpisodicTopK:            c.EpisodicTopK,
		RecencyHalfLife:         time.Duration(c.RecencyHalfLifeHours * float64(time.Hour)),
		ConsolidationThreshold:  c.ConsolidationThreshold,
		PromotionMinOccurrences: c.PromotionMinOccurrences,
		MaxRules:                c.MaxProceduralRules,
	}
}

// Level parses LogLevel.
func (c *Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
