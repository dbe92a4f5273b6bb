package config

import (
	"os"
	"strconv"

	"escapemap/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Paths    PathConfig
	Run      RunConfig
}

// DatabaseConfig holds database connection settings. The database is an
// optional result sink: with no URL the run writes filesystem outputs only.
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	DataFile  string
	StudyFile string
	OutputDir string
}

// RunConfig holds run execution settings
type RunConfig struct {
	MaxParallelGroups int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Paths: PathConfig{
			DataFile:  getEnvOrDefault("DATA_FILE", ""),
			StudyFile: getEnvOrDefault("STUDY_CONFIG", ""),
			OutputDir: getEnvOrDefault("OUTPUT_DIR", "results"),
		},
		Run: RunConfig{
			MaxParallelGroups: getEnvIntOrDefault("MAX_PARALLEL_GROUPS", 4),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// HasDatabase reports whether a database result store is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func validateConfig(config *Config) error {
	if config.Run.MaxParallelGroups < 1 {
		return errors.ConfigInvalid("MAX_PARALLEL_GROUPS must be at least 1")
	}
	if config.Paths.OutputDir == "" {
		return errors.ConfigInvalid("OUTPUT_DIR cannot be empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
