package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents the service configuration
type Config struct {
	Mapbox MapboxConfig
	S3     S3Config
	Paths  PathsConfig
}

// MapboxConfig represents Static Images API settings
type MapboxConfig struct {
	BaseURL        string // empty means the production API
	AccessToken    string
	Style          string
	Username       string
	TimeoutSeconds int
}

// S3Config represents S3/R2 connection settings
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	BucketPath      string // e.g., "maps"
	PublicBaseURL   string
}

// PathsConfig represents file system paths
type PathsConfig struct {
	OutputDir string // Where generated maps and sidecar JSON are stored
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig(envPath string) (*Config, error) {
	// Prefer .env.local over .env (like Next.js)
	// This allows local development configuration to override production config
	localEnvPath := strings.TrimSuffix(envPath, ".env") + ".env.local"
	if _, err := os.Stat(localEnvPath); err == nil {
		if err := loadEnvFile(localEnvPath); err != nil {
			return nil, fmt.Errorf("failed to load local env file: %w", err)
		}
	} else if _, err := os.Stat(envPath); err == nil {
		// Fall back to regular .env file if .env.local doesn't exist
		if err := loadEnvFile(envPath); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	defaultOutputDir := "./output"
	if home, err := os.UserHomeDir(); err == nil {
		defaultOutputDir = filepath.Join(home, "data", "parcel-maps")
	}

	cfg := &Config{
		Mapbox: MapboxConfig{
			BaseURL:        getEnv("MAPBOX_BASE_URL", ""),
			AccessToken:    getEnv("MAPBOX_ACCESS_TOKEN", ""),
			Style:          getEnv("MAPBOX_STYLE", "satellite-streets-v12"),
			Username:       getEnv("MAPBOX_USERNAME", "mapbox"),
			TimeoutSeconds: getEnvInt("MAPBOX_TIMEOUT_SECONDS", 60),
		},
		S3: S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Bucket:          getEnv("S3_BUCKET", "parcel-maps"),
			BucketPath:      getEnv("S3_BUCKET_PATH", "maps"),
			PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		},
		Paths: PathsConfig{
			OutputDir: getEnv("OUTPUT_DIR", defaultOutputDir),
		},
	}

	// Validate required config
	if cfg.Mapbox.AccessToken == "" {
		return nil, fmt.Errorf("MAPBOX_ACCESS_TOKEN environment variable is required")
	}
	// Note: S3 credentials are optional - only needed if you plan to upload maps to R2
	// For local development with --skip-upload, S3 credentials are not required

	return cfg, nil
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Simple env file parsing - split by newlines and set env vars
	lines := strings.Split(string(content), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Split by = and set environment variable
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			os.Setenv(key, value)
		}
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// getEnvInt gets an environment variable as integer with a default value
func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}
