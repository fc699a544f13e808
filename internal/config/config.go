// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// AI provider identifiers accepted by AI_PROVIDER.
const (
	AIProviderNone      = "none"
	AIProviderAnthropic = "anthropic"
	AIProviderOpenAI    = "openai"
	AIProviderOllama    = "ollama"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Directory holding all databases (derived from DATABASE_PATH, always absolute)
	DatabasePath string // Absolute path to app.db; ledger.db and cache.db live beside it

	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	AppBaseURL string // Public base URL used for checkout redirect targets

	// Shopping provider
	ShoppingAPIURL string
	ShoppingAPIKey string

	// AI normalizer
	AIProvider string // none, anthropic, openai, ollama
	AIAPIKey   string
	AIModel    string
	AIBaseURL  string // Only used by ollama (local daemon)

	// Stripe billing
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceIDs      map[string]string // packId -> Stripe price id

	// Credits
	FreeCredits   int     // FREE_FRESH_FETCH_ALLOWANCE
	VerdictMargin float64 // Margin applied to the worth_it threshold

	// Off-site backups
	BackupEnabled     bool
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine database location
	// 1. Check DATABASE_PATH environment variable
	// 2. If not set, default to data/app.db
	// 3. Always resolve to absolute path
	// 4. Ensure the directory exists
	dbPath := getEnv("DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = "data/app.db"
	}

	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	dataDir := filepath.Dir(absDBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      dataDir,
		DatabasePath: absDBPath,

		Port:      getEnvAsInt("PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		ShoppingAPIURL: getEnv("SHOPPING_API_URL", "https://api.shopping-search.example.com"),
		ShoppingAPIKey: getEnv("SHOPPING_API_KEY", ""),

		AIProvider: getEnv("AI_PROVIDER", AIProviderNone),
		AIAPIKey:   getEnv("AI_API_KEY", ""),
		AIModel:    getEnv("AI_MODEL", ""),
		AIBaseURL:  getEnv("AI_BASE_URL", "http://localhost:11434"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceIDs: map[string]string{
			"pack_1":   getEnv("STRIPE_PRICE_PACK_1", ""),
			"pack_5":   getEnv("STRIPE_PRICE_PACK_5", ""),
			"pack_10":  getEnv("STRIPE_PRICE_PACK_10", ""),
			"pack_30":  getEnv("STRIPE_PRICE_PACK_30", ""),
			"pack_100": getEnv("STRIPE_PRICE_PACK_100", ""),
		},

		FreeCredits:   getEnvAsInt("FREE_FRESH_FETCH_ALLOWANCE", 1),
		VerdictMargin: getEnvAsFloat("VERDICT_MARGIN", 0.15),

		BackupEnabled:     getEnvAsBool("BACKUP_ENABLED", false),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AIProvider {
	case AIProviderNone, AIProviderOllama:
		// No API key needed
	case AIProviderAnthropic, AIProviderOpenAI:
		if c.AIAPIKey == "" {
			return fmt.Errorf("AI_API_KEY required when AI_PROVIDER=%s", c.AIProvider)
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER: %q", c.AIProvider)
	}

	// Stripe keys travel in pairs: a secret key without the webhook secret
	// means paid sessions could never be confirmed.
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET required when STRIPE_SECRET_KEY is set")
	}

	if c.FreeCredits < 0 {
		return fmt.Errorf("FREE_FRESH_FETCH_ALLOWANCE must be >= 0, got %d", c.FreeCredits)
	}

	if c.VerdictMargin < 0 || c.VerdictMargin >= 1 {
		return fmt.Errorf("VERDICT_MARGIN must be in [0,1), got %v", c.VerdictMargin)
	}

	if c.BackupEnabled {
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			return fmt.Errorf("backups enabled but S3_BUCKET / S3_ACCESS_KEY_ID / S3_SECRET_ACCESS_KEY incomplete")
		}
	}

	return nil
}

// LedgerDatabasePath returns the path of the credits ledger database.
func (c *Config) LedgerDatabasePath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// CacheDatabasePath returns the path of the compare cache database.
func (c *Config) CacheDatabasePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
