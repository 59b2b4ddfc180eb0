package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when Load is given an empty path.
const DefaultPath = "lumen.toml"

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Agent     AgentConfig     `toml:"agent"`
	RAG       RAGConfig       `toml:"rag"`
	Memory    MemoryConfig    `toml:"memory"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	Provider    string  `toml:"provider"` // openai, deepseek, groq, together, mistral, ollama, anthropic, gemini
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"` // empty uses the provider's public endpoint
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	MaxRetries  int     `toml:"max_retries"`
	RPM         int     `toml:"rpm"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // openai, together, mistral, ollama, gemini
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Dimensions int    `toml:"dimensions"`
	CacheSize  int    `toml:"cache_size"`
	MaxRetries int    `toml:"max_retries"`
	RPM        int    `toml:"rpm"`
}

type AgentConfig struct {
	MaxIterations  int `toml:"max_iterations"`
	MemoryWindow   int `toml:"memory_window"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type RAGConfig struct {
	ChunkSize   int     `toml:"chunk_size"`
	Overlap     int     `toml:"overlap"`
	TopK        int     `toml:"top_k"`
	Concurrency int     `toml:"concurrency"`
	BatchSize   int     `toml:"batch_size"`
	Temperature float64 `toml:"temperature"`
	Index       string  `toml:"index"` // "exhaustive", "chromem" or "postgres"
}

type MemoryConfig struct {
	Backend        string `toml:"backend"`         // "sqlite" or "postgres"; empty picks sqlite when transcript_path is set
	TranscriptPath string `toml:"transcript_path"` // sqlite file; empty keeps the transcript in memory only
	Session        string `toml:"session"`
}

type PostgresConfig struct {
	DSN        string `toml:"dsn"`
	Collection string `toml:"collection"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Timeout returns the agent run timeout; zero means none.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:   "deepseek",
			Model:      "deepseek-chat",
			MaxRetries: 3,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  256,
			MaxRetries: 3,
		},
		Agent:  AgentConfig{MaxIterations: 5, MemoryWindow: 3},
		RAG:    RAGConfig{ChunkSize: 1000, Overlap: 200, TopK: 3, Concurrency: 4, BatchSize: 64, Temperature: 0.2, Index: "exhaustive"},
		Memory:   MemoryConfig{Session: "default"},
		Postgres: PostgresConfig{Collection: "lumen"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)

	// Fallbacks
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == cfg.LLM.Provider {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	str := map[string]*string{
		"LUMEN_LLM_PROVIDER":       &cfg.LLM.Provider,
		"LUMEN_LLM_MODEL":          &cfg.LLM.Model,
		"LUMEN_LLM_BASE_URL":       &cfg.LLM.BaseURL,
		"LUMEN_LLM_API_KEY":        &cfg.LLM.APIKey,
		"LUMEN_EMBEDDING_PROVIDER": &cfg.Embedding.Provider,
		"LUMEN_EMBEDDING_MODEL":    &cfg.Embedding.Model,
		"LUMEN_EMBEDDING_BASE_URL": &cfg.Embedding.BaseURL,
		"LUMEN_EMBEDDING_API_KEY":  &cfg.Embedding.APIKey,
		"LUMEN_TRANSCRIPT_PATH":    &cfg.Memory.TranscriptPath,
		"LUMEN_POSTGRES_DSN":       &cfg.Postgres.DSN,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v, err := strconv.ParseFloat(os.Getenv("LUMEN_LLM_TEMPERATURE"), 64); err == nil {
		cfg.LLM.Temperature = v
	}
	if v, err := strconv.Atoi(os.Getenv("LUMEN_AGENT_MAX_ITERATIONS")); err == nil {
		cfg.Agent.MaxIterations = v
	}
	if v := os.Getenv("LUMEN_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
}

// Validate reports settings the components would reject at run time.
func (c Config) Validate() error {
	var errs []error
	if c.LLM.Provider == "" || c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.provider and llm.model are required"))
	}
	if c.Embedding.Provider == "" || c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.provider and embedding.model are required"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.MemoryWindow < 0 {
		errs = append(errs, fmt.Errorf("agent.memory_window must not be negative, got %d", c.Agent.MemoryWindow))
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.Overlap < 0 || c.RAG.Overlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag chunk_size %d / overlap %d: need 0 <= overlap < chunk_size", c.RAG.ChunkSize, c.RAG.Overlap))
	}
	switch c.RAG.Index {
	case "exhaustive", "chromem", "postgres":
	default:
		errs = append(errs, fmt.Errorf("rag.index %q: want exhaustive, chromem or postgres", c.RAG.Index))
	}
	switch c.Memory.Backend {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q: want sqlite or postgres", c.Memory.Backend))
	}
	if c.Memory.Backend == "sqlite" && c.Memory.TranscriptPath == "" {
		errs = append(errs, errors.New("memory.backend sqlite needs memory.transcript_path"))
	}
	if (c.Memory.Backend == "postgres" || c.RAG.Index == "postgres") && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required by the postgres backend"))
	}
	return errors.Join(errs...)
}
