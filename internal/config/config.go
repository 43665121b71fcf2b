// Package config loads service configuration from defaults, an
// optional YAML file, and ASKCODE_* environment overrides, in that
// order of precedence (lowest to highest).
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mvp-joe/askcode/internal/ollama"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type IndexingConfig struct {
	MaxParallelism     int      `mapstructure:"max_parallelism"`
	EmbeddingBatchSize int      `mapstructure:"embedding_batch_size"`
	IgnorePatterns     []string `mapstructure:"ignore_patterns"`
	Watch              bool     `mapstructure:"watch"`
}

type OllamaConfig struct {
	BaseURL                    string `mapstructure:"base_url"`
	EmbeddingModel             string `mapstructure:"embedding_model"`
	ChatModel                  string `mapstructure:"chat_model"`
	RequestTimeoutMinutes      int    `mapstructure:"request_timeout_minutes"`
	MaxRetries                 int    `mapstructure:"max_retries"`
	RetryDelaySeconds          int    `mapstructure:"retry_delay_seconds"`
	FallbackEmbeddingDimension int    `mapstructure:"fallback_embedding_dimension"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // "memory" or "postgres"
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"` // zap level name
}

// ClientConfig converts the Ollama section into the client's config.
func (o OllamaConfig) ClientConfig() ollama.Config {
	return ollama.Config{
		BaseURL:           o.BaseURL,
		EmbeddingModel:    o.EmbeddingModel,
		ChatModel:         o.ChatModel,
		RequestTimeout:    time.Duration(o.RequestTimeoutMinutes) * time.Minute,
		MaxRetries:        o.MaxRetries,
		RetryDelayBase:    o.RetryDelaySeconds,
		FallbackDimension: o.FallbackEmbeddingDimension,
	}
}

// Load reads configuration. configFile may be empty, in which case
// askcode.yaml is searched for in the working directory and ~/.askcode;
// a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("askcode")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.askcode")
	}

	v.SetEnvPrefix("ASKCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("indexing.max_parallelism", runtime.NumCPU())
	v.SetDefault("indexing.embedding_batch_size", 50)
	v.SetDefault("indexing.ignore_patterns", []string{})
	v.SetDefault("indexing.watch", false)
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.embedding_model", "nomic-embed-text")
	v.SetDefault("ollama.chat_model", "llama3")
	v.SetDefault("ollama.request_timeout_minutes", 5)
	v.SetDefault("ollama.max_retries", 3)
	v.SetDefault("ollama.retry_delay_seconds", 2)
	v.SetDefault("ollama.fallback_embedding_dimension", 384)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("logging.level", "info")
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	if c.Indexing.MaxParallelism < 1 {
		return fmt.Errorf("indexing.max_parallelism must be at least 1, got %d", c.Indexing.MaxParallelism)
	}
	if c.Indexing.EmbeddingBatchSize < 1 {
		return fmt.Errorf("indexing.embedding_batch_size must be at least 1, got %d", c.Indexing.EmbeddingBatchSize)
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend)
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url must not be empty")
	}
	if c.Ollama.FallbackEmbeddingDimension < 1 {
		return fmt.Errorf("ollama.fallback_embedding_dimension must be at least 1, got %d",
			c.Ollama.FallbackEmbeddingDimension)
	}
	return nil
}
