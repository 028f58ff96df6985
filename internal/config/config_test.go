package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENWORKER_MODEL", "")
	t.Setenv("OPENWORKER_LOG_LEVEL", "")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()

	cfg, err := Load(home)
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultMaxIterations, cfg.LLM.MaxIterations)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, filepath.Join(home, "logs", "trace.log"), cfg.Log.File)
	require.Contains(t, cfg.Servers, DefaultServerName)
	assert.Equal(t, []string{"serve"}, cfg.Servers[DefaultServerName].Args)
}

func TestLoad_TOMLServers(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	data := `
[llm]
model = "openai/gpt-4o-mini"
max_iterations = 4

[rag]
chunk_size = 500
chunk_overlap = 50

[servers.files]
command = "openworker"
args = ["serve"]

[servers.web]
command = "web-mcp"
env = { TOKEN = "abc" }

[servers.off]
command = "nope"
disabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0o600))

	cfg, err := Load(home)
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.SummaryModel)
	assert.Equal(t, 4, cfg.LLM.MaxIterations)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, []string{"files", "web"}, cfg.ServerNames())
	assert.Equal(t, "abc", cfg.Servers["web"].Env["TOKEN"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OPENWORKER_MODEL", "x-ai/grok-4.1-fast")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "or-key", cfg.LLM.APIKey)
	assert.Equal(t, OpenRouterBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, "x-ai/grok-4.1-fast", cfg.LLM.Model)
	assert.Equal(t, "or-key", cfg.Embedding.APIKey)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	cfg.Log.Level = "loud"
	cfg.Servers["broken"] = ServerConfig{}

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.Contains(t, err.Error(), "rag.chunk_overlap")
	assert.Contains(t, err.Error(), "servers.broken.command")
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	cfg := Default(home)
	cfg.LLM.Model = "deepseek/deepseek-v3.2"
	require.NoError(t, Save(cfg))

	loaded, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-v3.2", loaded.LLM.Model)
}

func TestHomeDir_Env(t *testing.T) {
	t.Setenv("OPENWORKER_HOME", "/tmp/ow-home")
	h, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ow-home", h)
}
