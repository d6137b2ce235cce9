// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	PublicURL      string // base URL used in verification links and the OAuth redirect
	AllowedOrigin  string
	GRPCHealthPort string // empty disables the gRPC health server

	DB        DBConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Qdrant    QdrantConfig
	Mail      MailConfig

	DomainCatalogPath string
	AskRatePerMinute  float64
	AskBurst          int
}

// DBConfig selects the conversation store.
type DBConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string
	URL    string
}

// AuthConfig controls tokens, Google login and account cleanup.
type AuthConfig struct {
	SecretKey          string
	TokenTTL           time.Duration
	UnverifiedTTL      time.Duration
	GoogleClientID     string
	GoogleClientSecret string
}

// LLMConfig selects the completion backend.
type LLMConfig struct {
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint. It is
// separate from the LLM endpoint because OpenRouter serves no embeddings.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// QdrantConfig describes the vector collection.
type QdrantConfig struct {
	Host        string
	Port        int
	APIKey      string
	UseTLS      bool
	Collection  string
	ContentKey  string
	MetadataKey string
}

// MailConfig controls outbound verification mail. An empty Server logs mail instead of sending it.
type MailConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	From      string
	StartTLS  bool
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	llmKey := getEnv("OPENROUTER_KEY", "")

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8000"), "/"),
		AllowedOrigin:  getEnv("ALLOWED_ORIGIN", "*"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/cognivyu.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			SecretKey:          getEnv("SECRET_KEY", ""),
			TokenTTL:           getEnvDuration("TOKEN_TTL", 24*time.Hour),
			UnverifiedTTL:      getEnvDuration("UNVERIFIED_TTL", 7*24*time.Hour),
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		LLM: LLMConfig{
			Provider:      getEnv("LLM_PROVIDER", "openai"),
			APIKey:        llmKey,
			BaseURL:       getEnv("LLM_BASE_URL", ""),
			Model:         getEnv("LLM_MODEL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", ""),
			GeminiBaseURL: getEnv("GEMINI_BASE_URL", ""),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getEnv("EMBEDDING_API_KEY", llmKey),
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", ""),
		},
		Qdrant: QdrantConfig{
			Host:        getEnv("QDRANT_HOST", "localhost"),
			Port:        getEnvInt("QDRANT_PORT", 6334),
			APIKey:      getEnv("QDRANT_API_KEY", ""),
			UseTLS:      getEnvBool("QDRANT_USE_TLS", false),
			Collection:  getEnv("QDRANT_COLLECTION", "all-in-one-agent"),
			ContentKey:  getEnv("QDRANT_CONTENT_KEY", "page_content"),
			MetadataKey: getEnv("QDRANT_METADATA_KEY", "metadata"),
		},
		Mail: MailConfig{
			Server:    getEnv("MAIL_SERVER", ""),
			Port:      getEnvInt("MAIL_PORT", 587),
			Username:  getEnv("MAIL_USERNAME", ""),
			Password:  getEnv("MAIL_PASSWORD", ""),
			From:      getEnv("MAIL_FROM", ""),
			StartTLS:  getEnvBool("MAIL_STARTTLS", true),
			QueueSize: getEnvInt("MAIL_QUEUE_SIZE", 100),
		},
		DomainCatalogPath: getEnv("DOMAIN_CATALOG_PATH", ""),
		AskRatePerMinute:  getEnvFloat("ASK_RATE_PER_MINUTE", 20),
		AskBurst:          getEnvInt("ASK_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be > 0")
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	switch c.LLM.Provider {
	case "openai":
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", c.LLM.Provider)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("EMBEDDING_BASE_URL is required")
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("QDRANT_COLLECTION cannot be empty")
	}
	if c.Mail.QueueSize <= 0 {
		return fmt.Errorf("MAIL_QUEUE_SIZE must be > 0")
	}
	if c.Mail.Server != "" && c.Mail.From == "" {
		return fmt.Errorf("MAIL_FROM is required when MAIL_SERVER is set")
	}
	if c.AskRatePerMinute < 0 || c.AskBurst < 0 {
		return fmt.Errorf("ASK_RATE_PER_MINUTE and ASK_BURST must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.PublicURL == "" ||
		strings.Contains(c.PublicURL, "localhost") ||
		strings.Contains(c.PublicURL, "127.0.0.1")
}

// GoogleRedirectURL is the OAuth callback registered with Google.
func (c *Config) GoogleRedirectURL() string {
	return c.PublicURL + "/auth/google/callback"
}

// CatalogPathFromEnv returns DOMAIN_CATALOG_PATH without loading the rest of the configuration.
func CatalogPathFromEnv() string {
	return getEnv("DOMAIN_CATALOG_PATH", "")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
