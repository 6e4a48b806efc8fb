package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration, loaded once at startup.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    store.Config
	Fhir        FhirConfig
	Limits      LimitsConfig
	LogLevel    logrus.Level
	LogFile     string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	BasePath     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FhirConfig holds Standard-version-specific defaults.
type FhirConfig struct {
	Version string // "R4", "R4B", or "R5"
}

// LimitsConfig holds the ambient bounds referenced throughout spec §5 that
// are not themselves runtime_config keys (those live in runtimeconfig's
// static-default table) but gate process startup (worker pool sizing).
type LimitsConfig struct {
	IndexWorkerPoolSize int
	DBMaxOpenConns      int
	DBMaxIdleConns      int
}

// Load loads the application configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			BasePath:     getEnv("FHIR_BASE_PATH", "/fhir"),
			ReadTimeout:  time.Duration(getEnvAsInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			IdleTimeout:  time.Duration(getEnvAsInt("SERVER_IDLE_TIMEOUT", 120)) * time.Second,
		},
		Database: store.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fhir"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Fhir: FhirConfig{
			Version: getEnv("FHIR_VERSION", "R4"),
		},
		Limits: LimitsConfig{
			IndexWorkerPoolSize: getEnvAsInt("INDEX_WORKER_POOL_SIZE", 4),
			DBMaxOpenConns:      getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			DBMaxIdleConns:      getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		},
		LogLevel: getLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	logger.Init(cfg.LogLevel, cfg.LogFile)

	logger.WithFields(logger.Fields{
		"environment": cfg.Environment,
		"server_port": cfg.Server.Port,
		"base_path":   cfg.Server.BasePath,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.DBName,
		"fhir_version": cfg.Fhir.Version,
		"log_level":   cfg.LogLevel.String(),
	}).Info("Configuration loaded")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
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

func getLogLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
