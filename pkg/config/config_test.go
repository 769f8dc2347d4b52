package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 60, cfg.LLM.TimeoutSec)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 1000, cfg.LLM.InitialDelayMS)
	assert.Equal(t, 2, cfg.Retrieval.TopN)
	assert.Equal(t, []string{"en", "fr", "nl"}, cfg.Retrieval.Languages)
	assert.Equal(t, "sunday", cfg.Calc.WeekStart)
	assert.Equal(t, "€", cfg.Calc.CurrencySymbol)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
calc:
  referenceDate: "2025-10-29"
index:
  manifests:
    en: ./chunks/en.xlsx
    nl: ./chunks/nl.xlsx
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("BANK_ASSISTANT_RETRIEVAL_TOPN", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "2025-10-29", cfg.Calc.ReferenceDate)
	assert.Equal(t, 4, cfg.Retrieval.TopN)
	assert.Equal(t, "./chunks/nl.xlsx", cfg.Index.Manifests["nl"])
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BANK_ASSISTANT_LLM_APIKEY", "llm-secret")
	t.Setenv("BANK_ASSISTANT_EMBEDDING_APIKEY", "embed-secret")
	t.Setenv("BANK_ASSISTANT_ZILLIZ_APIKEY", "zilliz-secret")
	t.Setenv("BANK_ASSISTANT_REDIS_PASSWORD", "redis-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "llm-secret", cfg.LLM.APIKey)
	assert.Equal(t, "embed-secret", cfg.Embedding.APIKey)
	assert.Equal(t, "zilliz-secret", cfg.Zilliz.APIKey)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
}

func TestLoadSecretsFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("BANK_ASSISTANT_LLM_APIKEY=dotenv-secret\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("BANK_ASSISTANT_LLM_APIKEY") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dotenv-secret", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	base := Config{
		LLM:       LLMConfig{Provider: "gemini", MaxAttempts: 3},
		Retrieval: RetrievalConfig{Backend: "memory"},
		Calc:      CalcConfig{WeekStart: "sunday", ReferenceDate: "2025-10-29"},
		Embedding: EmbeddingConfig{Provider: "openai"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"unknown backend", func(c *Config) { c.Retrieval.Backend = "chroma" }},
		{"unknown week start", func(c *Config) { c.Calc.WeekStart = "friday" }},
		{"no attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"bad reference date", func(c *Config) { c.Calc.ReferenceDate = "29/10/2025" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
