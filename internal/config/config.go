package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"movie-search/internal/models"
)

const (
	DefaultEmbeddingProvider = "ollama"
	DefaultEmbeddingBaseURL  = "http://localhost:11434"
	DefaultEmbeddingModel    = "bge-small-en-v1.5"
	DefaultDevice            = "cpu"
	DefaultBatchSize         = 32
	DefaultSplitLength       = 512
	DefaultSplitOverlap      = 32
	DefaultCollection        = "movies"
	DefaultTopK              = 5
	DefaultLogLevel          = "info"
)

var deviceRe = regexp.MustCompile(`^(cpu|gpu|mps|cuda(:\d+)?)$`)

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Log       LogConfig       `yaml:"log"`
}

// EmbeddingConfig selects the sentence-embedding model and where it runs
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Device    string `yaml:"device"`
	BatchSize int    `yaml:"batch_size"`
}

type SplitterConfig struct {
	Length  int `yaml:"length"`
	Overlap int `yaml:"overlap"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

// DatabaseConfig configures the optional pgvector mirror
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
	// Recreate drops the mirror table before indexing so removed movies disappear
	Recreate bool `yaml:"recreate"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields. Splitter overlap is left alone when a length is set so an
// explicit overlap of 0 survives.
func (c *Config) ApplyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = DefaultEmbeddingProvider
	}
	if c.Embedding.BaseURL == "" && c.Embedding.Provider == DefaultEmbeddingProvider {
		c.Embedding.BaseURL = DefaultEmbeddingBaseURL
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbeddingModel
	}
	if c.Embedding.Device == "" {
		c.Embedding.Device = DefaultDevice
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = DefaultBatchSize
	}
	if c.Splitter.Length == 0 {
		c.Splitter.Length = DefaultSplitLength
		if c.Splitter.Overlap == 0 {
			c.Splitter.Overlap = DefaultSplitOverlap
		}
	}
	if c.Store.Collection == "" {
		c.Store.Collection = DefaultCollection
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = DefaultTopK
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate reports the first invalid setting wrapped in models.ErrConfiguration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", models.ErrConfiguration)
	}
	if !deviceRe.MatchString(c.Embedding.Device) {
		return fmt.Errorf("%w: unsupported device %q", models.ErrConfiguration, c.Embedding.Device)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, c.Embedding.BatchSize)
	}
	if c.Splitter.Length < 1 || c.Splitter.Overlap < 0 || c.Splitter.Overlap >= c.Splitter.Length {
		return fmt.Errorf("%w: invalid split length %d with overlap %d", models.ErrConfiguration, c.Splitter.Length, c.Splitter.Overlap)
	}
	if k := c.Store.EncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes, got %d", models.ErrConfiguration, len(k))
	}
	if c.Database.Enabled {
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database dsn is required when the mirror is enabled", models.ErrConfiguration)
		}
		if c.Database.Driver != "pgdriver" && c.Database.Driver != "pq" {
			return fmt.Errorf("%w: unknown database driver %q", models.ErrConfiguration, c.Database.Driver)
		}
	}
	return nil
}

// LoadConfig reads a YAML config. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading config %s: %v", models.ErrIO, path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config %s: %v", models.ErrConfiguration, path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
