package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port           int
	MaxWorkers     int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string

	// AI extraction configuration
	GeminiAPIKey  string
	GeminiModelID string
	GeminiTimeout time.Duration

	// Database configuration
	PostgresURL string

	// Cache configuration
	RedisAddr string
	CacheTTL  time.Duration

	// Image archive configuration
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string

	// Upload limits
	MaxFileSizeMB    int64
	MaxFilesPerBatch int
}

// LoadConfig loads the application configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env file. Using environment variables.")
	}

	config := &Config{
		// Server configuration
		Port:         getEnvInt("PORT", 8080),
		MaxWorkers:   getEnvInt("MAX_WORKERS", 5),
		ReadTimeout:  time.Duration(getEnvInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvInt("WRITE_TIMEOUT", 120)) * time.Second,
		AllowedOrigins: getEnvStringSlice("ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),

		// AI extraction configuration
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModelID: getEnvString("GEMINI_MODEL_ID", "gemini-2.0-flash"),
		GeminiTimeout: time.Duration(getEnvInt("GEMINI_TIMEOUT", 60)) * time.Second,

		// Database configuration
		PostgresURL: os.Getenv("POSTGRES_DB_URL"),

		// Cache configuration
		RedisAddr: getEnvString("REDIS_ADDR", "localhost:6379"),
		CacheTTL:  time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)) * time.Hour,

		// Image archive configuration
		S3Region:          getEnvString("S3_REGION", "us-east-1"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),

		// Upload limits
		MaxFileSizeMB:    int64(getEnvInt("MAX_FILE_SIZE_MB", 10)),
		MaxFilesPerBatch: getEnvInt("MAX_FILES_PER_BATCH", 10),
	}

	validateConfig(config)

	return config, nil
}

// validateConfig checks if critical configuration values are set and logs warnings if they're missing
func validateConfig(config *Config) {
	if config.GeminiAPIKey == "" {
		log.Println("Warning: No Gemini API key provided. Extraction requests will fail.")
	}

	if config.PostgresURL == "" {
		log.Println("Warning: No Postgres URL provided. The service will not start without a database.")
	}

	if config.S3Bucket == "" {
		log.Println("Warning: No S3 bucket provided. Image archiving is disabled.")
	}
}

// getEnvInt gets an integer from an environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvString gets a string from an environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvStringSlice gets a string slice from a comma-separated environment variable
func getEnvStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	return strings.Split(valueStr, ",")
}
