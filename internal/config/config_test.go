package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
llm:
  model: "qwen2:7b-instruct"
  generation:
    max_tokens: 128
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "qwen2:7b-instruct", cfg.LLM.Model)
	assert.Equal(t, 128, cfg.LLM.Generation.MaxTokens)
	assert.Equal(t, 10, cfg.Model.MaxContextTurns)
	assert.Equal(t, "4bit", cfg.Model.Quantization)
	assert.Equal(t, "auto", cfg.Model.Device)
	assert.Equal(t, 60*time.Second, cfg.LLM.Generation.Timeout())
	assert.Equal(t, 168*time.Hour, cfg.Session.TTL())
	assert.Equal(t, time.Hour, cfg.Session.TemporaryTTL())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
model:
  device: "cuda"
  max_context_turns: 4
`)
	t.Setenv("DEVICE", "cpu")
	t.Setenv("MAX_CONTEXT_TURNS", "6")
	t.Setenv("QUANTIZATION", "none")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cpu", cfg.Model.Device)
	assert.Equal(t, 6, cfg.Model.MaxContextTurns)
	assert.Equal(t, "none", cfg.Model.Quantization)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
