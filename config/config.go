package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Default per-token pricing for the evaluated model (USD). Overridable so a
// model swap never requires touching domain logic.
const (
	defaultInputTokenRate  = 0.3 / 1_000_000
	defaultOutputTokenRate = 2.5 / 1_000_000
)

// Config holds all application configuration
type Config struct {
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBName     string `env:"DB_NAME" envDefault:"predictions"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	ParserAPIURL string `env:"PARSER_API_URL" envDefault:"http://localhost:8000"`
	ModelName    string `env:"MODEL_NAME" envDefault:"gemini-2.5-flash"`

	DatasetPath string `env:"DATASET_PATH" envDefault:"data/annotated-dataset.json"`
	ReportDir   string `env:"REPORT_DIR" envDefault:"report/confusion_matrix"`

	SingleTimeout  int `env:"SINGLE_TIMEOUT" envDefault:"30"`  // seconds
	BatchTimeout   int `env:"BATCH_TIMEOUT" envDefault:"300"`  // seconds
	RequestsPerSec int `env:"REQUESTS_PER_SEC" envDefault:"5"` // extraction service politeness cap

	InputTokenRate  float64 `env:"INPUT_TOKEN_RATE"`
	OutputTokenRate float64 `env:"OUTPUT_TOKEN_RATE"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.DBHost = getEnvWithDefault("DB_HOST", "localhost")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = getEnvWithDefault("DB_USER", "postgres")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "predictions")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.ParserAPIURL = getEnvWithDefault("PARSER_API_URL", "http://localhost:8000")
	cfg.ModelName = getEnvWithDefault("MODEL_NAME", "gemini-2.5-flash")

	cfg.DatasetPath = getEnvWithDefault("DATASET_PATH", "data/annotated-dataset.json")
	cfg.ReportDir = getEnvWithDefault("REPORT_DIR", "report/confusion_matrix")

	cfg.SingleTimeout = getEnvIntWithDefault("SINGLE_TIMEOUT", 30)
	cfg.BatchTimeout = getEnvIntWithDefault("BATCH_TIMEOUT", 300)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)

	cfg.InputTokenRate = getEnvFloatWithDefault("INPUT_TOKEN_RATE", defaultInputTokenRate)
	cfg.OutputTokenRate = getEnvFloatWithDefault("OUTPUT_TOKEN_RATE", defaultOutputTokenRate)

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")

	return &cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
