package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the config layer.
const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// EmbeddingConfig selects and parameterizes the embedding backend.
type EmbeddingConfig struct {
	Backend   string `yaml:"backend"`   // "openai" or "local".
	BaseURL   string `yaml:"base-url"`  // OpenAI-compatible embeddings endpoint.
	APIKey    string `yaml:"api-key"`   // Bearer key for the embeddings endpoint.
	Model     string `yaml:"model"`     // Embedding model name.
	Dimension int    `yaml:"dimension"` // Vector dimensionality.
}

// QdrantConfig parameterizes the Qdrant vector store backend.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api-key"`
	Collection string `yaml:"collection"`
}

// PineconeConfig parameterizes the Pinecone vector store backend.
type PineconeConfig struct {
	APIKey string `yaml:"api-key"`
	Index  string `yaml:"index"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Backend  string         `yaml:"backend"` // "memory", "qdrant", or "pinecone".
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pinecone PineconeConfig `yaml:"pinecone"`
}

// ProvidersConfig holds credentials and endpoints for LLM providers.
type ProvidersConfig struct {
	OpenAIAPIKey    string `yaml:"openai-api-key"`
	OpenAIBaseURL   string `yaml:"openai-base-url"`
	OllamaBaseURL   string `yaml:"ollama-base-url"`
	LMStudioBaseURL string `yaml:"lmstudio-base-url"`
}

// RedisConfig holds Redis connection settings for rate limiting.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds query rate limit settings.
type RateLimitConfig struct {
	PerMinute int         `yaml:"per-minute"`
	Redis     RedisConfig `yaml:"redis"`
}

// BootstrapConfig seeds an initial user when the database is empty.
type BootstrapConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Tier     string `yaml:"tier"`
}

// FileConfig is the full YAML configuration file shape.
type FileConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector-store"`
	Providers   ProvidersConfig   `yaml:"providers"`
	RateLimit   RateLimitConfig   `yaml:"rate-limit"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
}

// LoadFile reads and parses the YAML config file, applying env overrides.
// A missing file is not an error; env variables alone can carry a minimal
// deployment.
func LoadFile(configPath string) (FileConfig, error) {
	var cfg FileConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return FileConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return FileConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	if key := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); key != "" {
		cfg.Providers.OpenAIAPIKey = key
	}
	if key := strings.TrimSpace(os.Getenv(EnvEmbeddingAPIKey)); key != "" {
		cfg.Embedding.APIKey = key
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	result := JWTConfig{Expiry: defaultJWTExpiry}

	if cfg, errLoad := LoadFile(configPath); errLoad == nil {
		if cfg.JWT.Secret != "" {
			result.Secret = cfg.JWT.Secret
		}
		if cfg.JWT.Expiry > 0 {
			result.Expiry = cfg.JWT.Expiry
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}
