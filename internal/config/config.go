// Package config loads openworker settings from ~/.openworker/config.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultModel         = "google/gemini-3-flash-preview"
	DefaultSummaryModel  = "z-ai/glm-4.5-air:free"
	DefaultRewriteModel  = "google/gemini-2.0-flash-001"
	DefaultEmbedModel    = "text-embedding-3-small"
	DefaultMaxIterations = 15
	OpenRouterBaseURL    = "https://openrouter.ai/api/v1"

	DefaultServerName = "openworker"
)

type Config struct {
	Home string `toml:"-"`

	LLM       LLMConfig               `toml:"llm"`
	Embedding EmbeddingConfig         `toml:"embedding"`
	Rerank    RerankConfig            `toml:"rerank"`
	RAG       RAGConfig               `toml:"rag"`
	Log       LogConfig               `toml:"log"`
	Metrics   MetricsConfig           `toml:"metrics"`
	Servers   map[string]ServerConfig `toml:"servers"`
}

type LLMConfig struct {
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	Model         string `toml:"model"`
	SummaryModel  string `toml:"summary_model"`
	RewriteModel  string `toml:"rewrite_model"`
	MaxIterations int    `toml:"max_iterations"`
}

type EmbeddingConfig struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RerankConfig points at a /rerank endpoint. An empty BaseURL falls back to
// embedding similarity.
type RerankConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type RAGConfig struct {
	ChunkSize    int  `toml:"chunk_size"`
	ChunkOverlap int  `toml:"chunk_overlap"`
	Candidates   int  `toml:"candidates"`
	TopK         int  `toml:"top_k"`
	Watch        bool `toml:"watch"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// ServerConfig describes one tool provider launched over stdio.
type ServerConfig struct {
	Command  string            `toml:"command"`
	Args     []string          `toml:"args"`
	Env      map[string]string `toml:"env"`
	Disabled bool              `toml:"disabled"`
}

// HomeDir returns $OPENWORKER_HOME or ~/.openworker.
func HomeDir() (string, error) {
	if h := os.Getenv("OPENWORKER_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".openworker"), nil
}

// Default returns a config with every field populated.
func Default(home string) *Config {
	cfg := &Config{Home: home}
	cfg.SetDefaults()
	return cfg
}

func (c *Config) Path() string         { return filepath.Join(c.Home, "config.toml") }
func (c *Config) DBPath() string       { return filepath.Join(c.Home, "openworker.db") }
func (c *Config) VectorDBPath() string { return filepath.Join(c.Home, "vectors.db") }

// Load reads the config file under home, applies environment overrides,
// fills defaults and validates. A missing file is not an error.
func Load(home string) (*Config, error) {
	if home == "" {
		h, err := HomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		home = h
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}

	cfg := &Config{Home: home}
	if _, err := os.Stat(cfg.Path()); err == nil {
		if err := LoadTOML(cfg, cfg.Path()); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as TOML to its home directory.
func Save(cfg *Config) error {
	f, err := os.OpenFile(cfg.Path(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = OpenRouterBaseURL
		}
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("OPENWORKER_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if level := os.Getenv("OPENWORKER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *Config) SetDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.SummaryModel == "" {
		c.LLM.SummaryModel = c.LLM.Model
	}
	if c.LLM.RewriteModel == "" {
		c.LLM.RewriteModel = c.LLM.Model
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = DefaultMaxIterations
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbedModel
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.LLM.BaseURL
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}

	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 100
	}
	if c.RAG.Candidates == 0 {
		c.RAG.Candidates = 10
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" && c.Home != "" {
		c.Log.File = filepath.Join(c.Home, "logs", "trace.log")
	}

	if len(c.Servers) == 0 {
		exe, err := os.Executable()
		if err != nil {
			exe = "openworker"
		}
		c.Servers = map[string]ServerConfig{
			DefaultServerName: {Command: exe, Args: []string{"serve"}},
		}
	}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.LLM.MaxIterations < 1 {
		errs = append(errs, ValidationError{"llm.max_iterations", "must be at least 1"})
	}
	if c.RAG.ChunkSize < 1 {
		errs = append(errs, ValidationError{"rag.chunk_size", "must be positive"})
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, ValidationError{"rag.chunk_overlap", "must be in [0, chunk_size)"})
	}
	if c.RAG.TopK < 1 || c.RAG.Candidates < 1 {
		errs = append(errs, ValidationError{"rag", "top_k and candidates must be positive"})
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{"embedding.requests_per_second", "must not be negative"})
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log.level", fmt.Sprintf("invalid level '%s'", c.Log.Level)})
	}
	for _, name := range c.ServerNames() {
		if c.Servers[name].Command == "" {
			errs = append(errs, ValidationError{"servers." + name + ".command", "required"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ServerNames returns the enabled server names in sorted order, which is
// also the order tools are registered in.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name, s := range c.Servers {
		if s.Disabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
