package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultChatBase      = "https://openrouter.ai/api/v1"
	defaultEmbeddingBase = "https://api.openai.com/v1"
)

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	SourceDir    string   `yaml:"source_dir"`
}

type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	TopK          int     `yaml:"top_k"`
	PDFCropTop    float64 `yaml:"pdf_crop_top"`
	PDFCropBottom float64 `yaml:"pdf_crop_bottom"`
}

type StoreConfig struct {
	Backing   string `yaml:"backing"` // memory | pgvector
	VectorDim int    `yaml:"vector_dim"`
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type ModelConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

type ChatConfig struct {
	BaseURL      string                 `yaml:"base_url"`
	APIKeyEnv    string                 `yaml:"api_key_env"`
	SiteURL      string                 `yaml:"site_url"`
	SiteName     string                 `yaml:"site_name"`
	TimeoutSecs  int                    `yaml:"timeout_secs"`
	DefaultModel string                 `yaml:"default_model"`
	Models       map[string]ModelConfig `yaml:"models"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RAG       RAGConfig       `yaml:"rag"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
}

// Load reads a config from the given path. A missing file yields defaults so
// the service can run against its stock providers with only env credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// APIKey resolves the chat provider credential from the environment.
// Credentials never live in the config file or the source.
func (c ChatConfig) APIKey() (string, error) {
	return keyFromEnv(c.APIKeyEnv)
}

func (c EmbeddingConfig) APIKey() (string, error) {
	return keyFromEnv(c.APIKeyEnv)
}

func keyFromEnv(name string) (string, error) {
	key := os.Getenv(name)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return key, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.SourceDir == "" {
		cfg.Server.SourceDir = "./uploads"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 4
	}
	if cfg.Store.Backing == "" {
		cfg.Store.Backing = "memory"
	}
	if cfg.Store.VectorDim == 0 {
		cfg.Store.VectorDim = 1536
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = defaultEmbeddingBase
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "EMBEDDING_API_KEY"
	}
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = defaultChatBase
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 120
	}
	if len(cfg.Chat.Models) == 0 {
		cfg.Chat.Models = map[string]ModelConfig{
			"deepseek/deepseek-r1-0528:free": {MaxTokens: 2048},
			"moonshotai/kimi-dev-72b:free":   {MaxTokens: 4096},
		}
	}
	if cfg.Chat.DefaultModel == "" {
		cfg.Chat.DefaultModel = "deepseek/deepseek-r1-0528:free"
	}
}
