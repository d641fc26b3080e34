package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Blob backend selectors.
const (
	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string

	// MongoDB configuration
	DBHost     string
	DBPort     string
	DBDatabase string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Blob storage configuration
	BlobBackend string
	FolderPath  string

	// MinIO configuration (BLOB_BACKEND=s3 only)
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// Session configuration
	SessionTTL time.Duration

	// Worker configuration
	WorkerCount int

	// Jaeger configuration
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		// Service defaults
		ServicePort: getEnv("SERVICE_PORT", "5000"),
		ServiceName: getEnv("SERVICE_NAME", "filevault"),

		// MongoDB defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "27017"),
		DBDatabase: getEnv("DB_DATABASE", "filevault"),

		// Redis defaults
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Blob storage defaults
		BlobBackend: getEnv("BLOB_BACKEND", BlobBackendLocal),
		FolderPath:  getEnv("FOLDER_PATH", "/tmp/files_manager"),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "filevault"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// Session defaults (24h, matching token expiry on login)
		SessionTTL: time.Duration(getEnvAsInt("SESSION_TTL_HOURS", 24)) * time.Hour,

		// Worker defaults
		WorkerCount: getEnvAsInt("WORKER_COUNT", 4),

		// Jaeger defaults
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "localhost:4318"),
	}

	if config.BlobBackend != BlobBackendLocal && config.BlobBackend != BlobBackendS3 {
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", config.BlobBackend)
	}

	return config, nil
}

// GetMongoURI returns the MongoDB connection string
func (c *Config) GetMongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s", c.DBHost, c.DBPort)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
