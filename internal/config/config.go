package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Source    ProviderConfig
	Dest      ProviderConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ProviderConfig holds connection settings for one analytics provider API.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout int
}

type SchedulerConfig struct {
	// Store selects the job store backend: "postgres" or "memory".
	Store string
	// LockJobs enables per-job advisory locks for multi-instance deployments.
	LockJobs bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "metricbridge"),
			Password: getEnv("DB_PASSWORD", "metricbridge123"),
			DBName:   getEnv("DB_NAME", "metricbridge_core"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Source: ProviderConfig{
			BaseURL: getEnv("SOURCE_API_URL", ""),
			APIKey:  getEnv("SOURCE_API_KEY", ""),
			Timeout: getEnvAsInt("SOURCE_API_TIMEOUT", 30),
		},
		Dest: ProviderConfig{
			BaseURL: getEnv("DEST_API_URL", ""),
			APIKey:  getEnv("DEST_API_KEY", ""),
			Timeout: getEnvAsInt("DEST_API_TIMEOUT", 60),
		},
		Scheduler: SchedulerConfig{
			Store:    getEnv("JOB_STORE", "postgres"),
			LockJobs: getEnvAsBool("JOB_LOCKING", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
