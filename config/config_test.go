package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendChromem, cfg.StoreBackend)
	assert.Equal(t, "./memory_db", cfg.StorePath)
	assert.Equal(t, "episodic_memory", cfg.EpisodicCollection)
	assert.Equal(t, 10, cfg.SemanticTopK)
	assert.Equal(t, 3, cfg.EpisodicTopK)
	assert.Equal(t, 72.0, cfg.RecencyHalfLifeHours)
	assert.Equal(t, 0.70, cfg.ConsolidationThreshold)
	assert.Equal(t, 5, cfg.ConsolidationEveryN)
	assert.Equal(t, 3, cfg.PromotionMinOccurrences)
	assert.Equal(t, 15, cfg.MaxProceduralRules)
	assert.Equal(t, "./procedural_memory.json", cfg.ProceduralMemoryFile)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLMModel)
	assert.Equal(t, 60*time.Second, cfg.ReasonerTimeout)

	mc := cfg.Memory()
	assert.Equal(t, 72*time.Hour, mc.RecencyHalfLife)
	assert.Equal(t, 15, mc.MaxRules)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "nim-memory.yaml")
	yamlData := `
episodic_top_k: 5
consolidation_threshold: 0.8
reasoner_timeout: 15s
max_procedural_rules: 7
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	t.Setenv("EPISODIC_TOP_K", "9")
	t.Setenv("RECENCY_HALF_LIFE_HOURS", "24")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.EpisodicTopK, "env wins over file")
	assert.Equal(t, 0.8, cfg.ConsolidationThreshold)
	assert.Equal(t, 15*time.Second, cfg.ReasonerTimeout)
	assert.Equal(t, 7, cfg.MaxProceduralRules)
	assert.Equal(t, 24*time.Hour, cfg.Memory().RecencyHalfLife)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	const key = "NIM_MEMORY_LLM_MODEL"
	t.Cleanup(func() { os.Unsetenv(key) })
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=llama3\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.LLMModel)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		key, val string
	}{
		{"EPISODIC_TOP_K", "three"},
		{"CONSOLIDATION_THRESHOLD", "high"},
		{"NIM_MEMORY_REASONER_TIMEOUT", "soon"},
		{"CONSOLIDATION_THRESHOLD", "1.5"},
		{"MAX_PROCEDURAL_RULES", "0"},
		{"NIM_MEMORY_STORE_BACKEND", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_PGVectorNeedsDSN(t *testing.T) {
	cfg := Default()
	cfg.StoreBackend = BackendPGVector
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIM_MEMORY_POSTGRES_DSN")

	cfg.PostgresDSN = "postgres://localhost/memory"
	assert.NoError(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("stored episode", "id", "episode_1")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "stored episode")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output should be JSON")
	assert.Contains(t, file.String(), `"id":"episode_1"`)
}

func TestSetupLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("consolidation finished")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "consolidation finished")
}
