package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN returns the connection string for lib/pq.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config billing sync pipeline configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	Uploader struct {
		BatchSize      int // records per upsert batch
		MaxRetries     int // attempts per batch before degrading it
		BackoffSeconds int // linear backoff base between attempts
		Workers        int // concurrent batch uploads
	}

	Extractor struct {
		InputDir  string // directory scanned recursively for *.pdf
		OutputDir string // results CSV + summary destination
		Workers   int    // concurrent document parsers
		MaxPages  int    // pages inspected per document (PSID is on page 1)
	}

	Ingest struct {
		SurveyDir string // survey master .xlsx exports
		BillerDir string // biller list .csv exports
		BillMonth string // fallback when the export carries no Month column
	}

	Audit struct {
		Dir string // append-only outcome logs
	}

	Cache struct {
		Enabled    bool
		TTLSeconds int // survey key set cache TTL
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load loads configuration from environment variables, with a .env
// file in the working directory taken as defaults when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "sgwmc")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 8)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 4)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Uploader.BatchSize = getEnvInt("UPLOAD_BATCH_SIZE", 500)
	cfg.Uploader.MaxRetries = getEnvInt("UPLOAD_MAX_RETRIES", 3)
	cfg.Uploader.BackoffSeconds = getEnvInt("UPLOAD_BACKOFF_SECONDS", 2)
	cfg.Uploader.Workers = getEnvInt("UPLOAD_WORKERS", 4)

	cfg.Extractor.InputDir = getEnv("PDF_INPUT_DIR", "inputs/raw_pdfs")
	cfg.Extractor.OutputDir = getEnv("PDF_OUTPUT_DIR", "outputs/processed_pdfs")
	cfg.Extractor.Workers = getEnvInt("PDF_WORKERS", 4)
	cfg.Extractor.MaxPages = getEnvInt("PDF_MAX_PAGES", 3)

	cfg.Ingest.SurveyDir = getEnv("SURVEY_INPUT_DIR", "inputs/survey_dumps")
	cfg.Ingest.BillerDir = getEnv("BILLER_INPUT_DIR", "inputs/excel_dumps")
	cfg.Ingest.BillMonth = getEnv("BILL_MONTH", "")

	cfg.Audit.Dir = getEnv("AUDIT_LOG_DIR", "outputs/logs")

	cfg.Cache.Enabled = getEnv("KEY_CACHE_ENABLED", "true") == "true"
	cfg.Cache.TTLSeconds = getEnvInt("KEY_CACHE_TTL_SECONDS", 900)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

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
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
