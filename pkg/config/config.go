// Package config loads runtime configuration: environment variables for
// deployment knobs, plus an optional YAML profile for the validation
// policy settings operators tune per installation.
package config

import "os"

// Config holds service configuration.
type Config struct {
	LogLevel        string
	DatabaseURL     string
	RedisAddr       string
	GeneratorURL    string
	OTLPEndpoint    string
	CatalogVersion  string
	SigningKeyPath  string
	AuditDBPath     string
	ProfilePath     string
	UnknownSafeMode bool
}

// Load reads configuration from environment variables with local-dev
// defaults.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://flowforge@localhost:5432/flowforge?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	generatorURL := os.Getenv("GENERATOR_URL")
	if generatorURL == "" {
		generatorURL = "http://localhost:8090"
	}

	catalogVersion := os.Getenv("CATALOG_VERSION")
	if catalogVersion == "" {
		catalogVersion = "dev"
	}

	auditDB := os.Getenv("AUDIT_DB_PATH")
	if auditDB == "" {
		auditDB = "flowforge-audit.db"
	}

	return &Config{
		LogLevel:        logLevel,
		DatabaseURL:     dbURL,
		RedisAddr:       redisAddr,
		GeneratorURL:    generatorURL,
		OTLPEndpoint:    os.Getenv("OTLP_ENDPOINT"),
		CatalogVersion:  catalogVersion,
		SigningKeyPath:  os.Getenv("SIGNING_KEY_PATH"),
		AuditDBPath:     auditDB,
		ProfilePath:     os.Getenv("VALIDATION_PROFILE"),
		UnknownSafeMode: os.Getenv("UNKNOWN_SAFE_MODE") == "true",
	}
}
