// Package config loads ragchat settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values mirror a local Ollama + Qdrant + Redis setup.
const (
	DefaultLLMModel           = "qwen3:14b"
	DefaultEmbeddingModel     = "nomic-embed-text"
	DefaultEmbeddingDimension = 768
	DefaultLLMURI             = "http://localhost:11434"
	DefaultQdrantHost         = "localhost"
	DefaultQdrantPort         = 6334
	DefaultQdrantCollection   = "data"
	DefaultHistoryURI         = "redis://localhost:6379/0"
	DefaultHistoryUser        = "user"
	DefaultHistoryDatabase    = "bot"
	DefaultHistoryCollection  = "chat_histories"
	DefaultChunkSize          = 1000
	DefaultChunkOverlap       = 200
	DefaultRetrievalK         = 4
	DefaultEmbedBatchSize     = 64
	DefaultGenerationTimeout  = 2 * time.Minute
	DefaultPort               = "8080"

	VectorStoreQdrant = "qdrant"
	VectorStoreMemory = "memory"
)

// DefaultSources are indexed when no SOURCES are configured.
var DefaultSources = []string{
	"https://en.wikipedia.org/wiki/MongoDB",
	"https://en.wikipedia.org/wiki/AT%26T",
	"https://en.wikipedia.org/wiki/Bank_of_America",
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// ModelConfig configures the Ollama-served chat and embedding models.
type ModelConfig struct {
	LLMModel           string        `yaml:"llm_model"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	EmbeddingDimension int           `yaml:"embedding_dimension"`
	URI                string        `yaml:"uri"`
	APIKey             string        `yaml:"api_key"`
	EmbedBatchSize     int           `yaml:"embed_batch_size"`
	GenerationTimeout  time.Duration `yaml:"generation_timeout"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// HistoryConfig addresses the conversation history store.
type HistoryConfig struct {
	URI        string `yaml:"uri"`
	User       string `yaml:"user"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// ChunkingConfig sets the sliding window used to split documents.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Config is the root application configuration.
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	History     HistoryConfig     `yaml:"history"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	RetrievalK  int               `yaml:"retrieval_k"`
	Sources     []string          `yaml:"sources"`
	GitHubToken string            `yaml:"github_token"`
	Port        string            `yaml:"port"`
}

// Load starts from the defaults, overlays the YAML file at path (skipped when
// path is empty or missing), then the environment, and validates the result.
// Values present in the file or environment replace defaults even when zero.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
			}
		}
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with every non-empty environment variable. Values
// that do not parse are reported together.
func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	setInt := func(dst *int, key string) {
		if err := parseInt(dst, key, getenv(key)); err != nil {
			errs = append(errs, err)
		}
	}

	setString(&cfg.Model.LLMModel, getenv("LLM_MODEL"))
	setString(&cfg.Model.EmbeddingModel, getenv("EMBEDDING_MODEL"))
	setInt(&cfg.Model.EmbeddingDimension, "EMBEDDING_DIMENSION")
	setString(&cfg.Model.URI, getenv("LLM_URI"))
	setString(&cfg.Model.APIKey, getenv("LLM_API_KEY"))
	setInt(&cfg.Model.EmbedBatchSize, "EMBED_BATCH_SIZE")
	if v := getenv("GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: GENERATION_TIMEOUT=%q is not a duration", ErrInvalidConfig, v))
		} else {
			cfg.Model.GenerationTimeout = d
		}
	}

	setString(&cfg.VectorStore.Type, getenv("VECTOR_STORE"))
	setString(&cfg.VectorStore.Host, getenv("QDRANT_HOST"))
	setInt(&cfg.VectorStore.Port, "QDRANT_PORT")
	setString(&cfg.VectorStore.Collection, getenv("QDRANT_COLLECTION"))

	setString(&cfg.History.URI, getenv("HISTORY_URI"))
	setString(&cfg.History.User, getenv("HISTORY_USER"))
	setString(&cfg.History.Database, getenv("HISTORY_DATABASE"))
	setString(&cfg.History.Collection, getenv("HISTORY_COLLECTION"))

	setInt(&cfg.Chunking.Size, "CHUNK_SIZE")
	setInt(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")
	setInt(&cfg.RetrievalK, "RETRIEVAL_K")

	if v := getenv("SOURCES"); v != "" {
		cfg.Sources = splitList(v)
	}
	setString(&cfg.GitHubToken, getenv("GITHUB_TOKEN"))
	setString(&cfg.Port, getenv("PORT"))

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Model.LLMModel == "" {
		cfg.Model.LLMModel = DefaultLLMModel
	}
	if cfg.Model.EmbeddingModel == "" {
		cfg.Model.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Model.EmbeddingDimension == 0 {
		cfg.Model.EmbeddingDimension = DefaultEmbeddingDimension
	}
	if cfg.Model.URI == "" {
		cfg.Model.URI = DefaultLLMURI
	}
	if cfg.Model.APIKey == "" {
		// Ollama ignores the key but the OpenAI client requires one.
		cfg.Model.APIKey = "ollama"
	}
	if cfg.Model.EmbedBatchSize == 0 {
		cfg.Model.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.Model.GenerationTimeout == 0 {
		cfg.Model.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = VectorStoreQdrant
	}
	if cfg.VectorStore.Host == "" {
		cfg.VectorStore.Host = DefaultQdrantHost
	}
	if cfg.VectorStore.Port == 0 {
		cfg.VectorStore.Port = DefaultQdrantPort
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = DefaultQdrantCollection
	}
	if cfg.History.URI == "" {
		cfg.History.URI = DefaultHistoryURI
	}
	if cfg.History.User == "" {
		cfg.History.User = DefaultHistoryUser
	}
	if cfg.History.Database == "" {
		cfg.History.Database = DefaultHistoryDatabase
	}
	if cfg.History.Collection == "" {
		cfg.History.Collection = DefaultHistoryCollection
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = DefaultChunkSize
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = DefaultChunkOverlap
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = DefaultRetrievalK
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = append([]string(nil), DefaultSources...)
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
}

// Validate reports configuration that cannot produce a working pipeline.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("%w: retrieval k must be positive, got %d", ErrInvalidConfig, c.RetrievalK)
	}
	if c.Model.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: embed batch size must be positive, got %d", ErrInvalidConfig, c.Model.EmbedBatchSize)
	}
	if c.Model.GenerationTimeout <= 0 {
		return fmt.Errorf("%w: generation timeout must be positive, got %s", ErrInvalidConfig, c.Model.GenerationTimeout)
	}
	if c.Model.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalidConfig, c.Model.EmbeddingDimension)
	}
	switch c.VectorStore.Type {
	case VectorStoreQdrant, VectorStoreMemory:
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, c.VectorStore.Type)
	}
	switch scheme := c.History.Scheme(); scheme {
	case "redis", "rediss", "mongodb", "mongodb+srv", "memory":
	default:
		return fmt.Errorf("%w: unsupported history uri %q", ErrInvalidConfig, c.History.URI)
	}
	return nil
}

// Scheme returns the scheme of the history URI ("redis", "mongodb", "memory", ...),
// or "" when the URI does not parse.
func (h HistoryConfig) Scheme() string {
	u, err := url.Parse(h.URI)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// ModelBaseURL returns the OpenAI-compatible endpoint exposed by Ollama.
func (c *Config) ModelBaseURL() string {
	return strings.TrimRight(c.Model.URI, "/") + "/v1/"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseInt(dst *int, key, v string) error {
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
	}
	*dst = i
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
