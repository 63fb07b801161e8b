package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Chat configuration
	TelegramBotToken string
	TelegramAPIURL   string

	// LLM configuration
	LLMProvider     string // "openai" or "anthropic"
	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	EmbeddingModel  string

	// Trend feeds
	TwitterBearerToken string
	TrendLimit         int

	// LinkedIn OAuth configuration
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURL  string

	// Blob storage configuration
	StorageBackend   string // "local" or "azure"
	StorageAccount   string
	StorageContainer string
	LocalStorageDir  string

	// Engagement and index databases
	DatabasePath  string
	VectorBackend string // "sqlite" or "mongo"
	MongoURI      string
	MongoDatabase string
	RepoCacheDir  string

	// Scheduling
	DefaultTimezone string
	MetricsSchedule string

	// Limits
	MaxReposPerUser     int
	AgentMaxSteps       int
	RunTimeout          time.Duration
	ExternalCallTimeout time.Duration
	RetryCount          int
	InsightRecencyFloor float64
	PromptTokenBudget   int

	// Optional email copy of drafts
	DraftEmail   string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:        getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		TrendLimit:         getIntEnv("TREND_LIMIT", 10),

		LinkedInClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedInRedirectURL:  getEnv("LINKEDIN_REDIRECT_URL", "http://localhost:8080/callback"),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "content-bot"),
		LocalStorageDir:  getEnv("LOCAL_STORAGE_DIR", "./data/blobs"),

		DatabasePath:  getEnv("DATABASE_PATH", "./data/content_bot.db"),
		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", "sqlite")),
		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DB", "content_bot"),
		RepoCacheDir:  getEnv("REPO_CACHE_DIR", "./data/repos"),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "UTC"),
		MetricsSchedule: getEnv("METRICS_SCHEDULE", "0 6 * * *"),

		MaxReposPerUser:     getIntEnv("MAX_REPOS_PER_USER", 5),
		AgentMaxSteps:       getIntEnv("AGENT_MAX_STEPS", 10),
		RunTimeout:          time.Duration(getIntEnv("RUN_TIMEOUT_SEC", 300)) * time.Second,
		ExternalCallTimeout: time.Duration(getIntEnv("EXTERNAL_TIMEOUT_SEC", 30)) * time.Second,
		RetryCount:          getIntEnv("RETRY_COUNT", 3),
		InsightRecencyFloor: getFloatEnv("INSIGHT_RECENCY_FLOOR", 0.2),
		PromptTokenBudget:   getIntEnv("PROMPT_TOKEN_BUDGET", 6000),

		DraftEmail:   getEnv("DRAFT_EMAIL", ""),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
	}

	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultModel(cfg.LLMProvider)
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultModel(provider string) string {
	if provider == "anthropic" {
		return "claude-sonnet-4-20250514"
	}
	return "gpt-4o-mini"
}

func (c *Config) validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER is 'openai'")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is 'anthropic'")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be 'openai' or 'anthropic'")
	}

	// Embeddings always go through OpenAI
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for repository embeddings")
	}

	switch c.StorageBackend {
	case "local":
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'local' or 'azure'")
	}

	switch c.VectorBackend {
	case "sqlite":
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when VECTOR_BACKEND is 'mongo'")
		}
	default:
		return fmt.Errorf("VECTOR_BACKEND must be 'sqlite' or 'mongo'")
	}

	if c.MaxReposPerUser < 1 {
		return fmt.Errorf("MAX_REPOS_PER_USER must be at least 1")
	}

	if c.AgentMaxSteps < 1 {
		return fmt.Errorf("AGENT_MAX_STEPS must be at least 1")
	}

	if c.InsightRecencyFloor < 0 || c.InsightRecencyFloor > 1 {
		return fmt.Errorf("INSIGHT_RECENCY_FLOOR must be between 0 and 1")
	}

	if c.DraftEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when DRAFT_EMAIL is set")
		}
	}

	return nil
}

// LinkedInEnabled reports whether publishing can be configured at all
func (c *Config) LinkedInEnabled() bool {
	return c.LinkedInClientID != "" && c.LinkedInClientSecret != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
