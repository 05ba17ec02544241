package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port            int
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Database
	DatabaseURL         string
	DBMaxConnections    int
	DBConnectionTimeout time.Duration

	// Clerk Auth
	ClerkSecretKey string

	// S3
	S3Bucket    string
	S3Region    string
	AWSEndpoint string // For LocalStack in development

	// Matching
	MatchAmountTolerancePercent   float64
	MatchDateToleranceDays        int
	SuggestAmountTolerancePercent float64
	OrphanInvoiceLimit            int
	CandidatePoolLimit            int

	// Reconciliation writes
	InvoiceWriteRetries int
	SideChannelTimeout  time.Duration
	EntityCacheTTL      time.Duration
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Port:                          getEnvInt("PORT", 8080),
		Environment:                   getEnv("ENVIRONMENT", "development"),
		LogLevel:                      getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout:               getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:                   getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		DatabaseURL:                   getEnv("DATABASE_URL", ""),
		DBMaxConnections:              getEnvInt("DB_MAX_CONNECTIONS", 25),
		DBConnectionTimeout:           getEnvDuration("DB_CONNECTION_TIMEOUT", 30*time.Second),
		ClerkSecretKey:                getEnv("CLERK_SECRET_KEY", ""),
		S3Bucket:                      getEnv("S3_BUCKET", ""),
		S3Region:                      getEnv("S3_REGION", "eu-west-3"),
		AWSEndpoint:                   getEnv("AWS_ENDPOINT", ""),
		MatchAmountTolerancePercent:   getEnvFloat("MATCH_AMOUNT_TOLERANCE_PERCENT", 10),
		MatchDateToleranceDays:        getEnvInt("MATCH_DATE_TOLERANCE_DAYS", 30),
		SuggestAmountTolerancePercent: getEnvFloat("SUGGEST_AMOUNT_TOLERANCE_PERCENT", 10),
		OrphanInvoiceLimit:            getEnvInt("ORPHAN_INVOICE_LIMIT", 100),
		CandidatePoolLimit:            getEnvInt("CANDIDATE_POOL_LIMIT", 500),
		InvoiceWriteRetries:           getEnvInt("INVOICE_WRITE_RETRIES", 2),
		SideChannelTimeout:            getEnvDuration("SIDE_CHANNEL_TIMEOUT", 5*time.Second),
		EntityCacheTTL:                getEnvDuration("ENTITY_CACHE_TTL", 5*time.Minute),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ClerkSecretKey == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY is required in production")
	}
	if cfg.S3Bucket == "" && cfg.Environment == "production" {
		return nil, fmt.Errorf("S3_BUCKET is required in production")
	}
	if cfg.MatchAmountTolerancePercent < 0 || cfg.SuggestAmountTolerancePercent < 0 {
		return nil, fmt.Errorf("amount tolerances cannot be negative")
	}
	if cfg.InvoiceWriteRetries < 0 {
		return nil, fmt.Errorf("INVOICE_WRITE_RETRIES cannot be negative")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
