// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported entity store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongoDB  = "mongodb"
	StoreRedis    = "redis"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port            int
	Host            string
	MetricsEnabled  bool
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type     string // memory, postgres, mongodb or redis
	URI      string
	Driver   string // database/sql driver for postgres: "postgres" (lib/pq) or "pgx"
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	RedisPassword string
	RedisDB       int
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	AllowedOrigins []string
	Debug          bool
	LogFormat      string
	SeedSampleData bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		Host:            "0.0.0.0",
		MetricsEnabled:  true,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:    StoreMemory,
		Driver:  "postgres",
		Port:    5432,
		SSLMode: "require",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	server := DefaultConfig()
	v.SetDefault("port", server.Port)
	v.SetDefault("host", server.Host)
	v.SetDefault("metrics_enabled", server.MetricsEnabled)
	v.SetDefault("request_timeout", server.RequestTimeout)
	v.SetDefault("shutdown_timeout", server.ShutdownTimeout)

	db := DefaultDatabaseConfig()
	v.SetDefault("db_type", db.Type)
	v.SetDefault("db_driver", db.Driver)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", db.Port)
	v.SetDefault("db_name", "postgres")
	v.SetDefault("db_ssl_mode", db.SSLMode)
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "fresh_hub")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("allowed_origins", "*")
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "text")
	v.SetDefault("seed_sample_data", true)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return v
}

// LoadConfig loads configuration from .env files, an optional config.yaml and
// environment variables, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/fresh-hub/.env"),
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	serverConfig := &ServerConfig{
		Port:            v.GetInt("port"),
		Host:            v.GetString("host"),
		MetricsEnabled:  v.GetBool("metrics_enabled"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	if serverConfig.Port <= 0 || serverConfig.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", serverConfig.Port)
	}
	if serverConfig.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	dbConfig, err := loadDatabaseConfig(v)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		Debug:          v.GetBool("debug"),
		LogFormat:      v.GetString("log_format"),
		SeedSampleData: v.GetBool("seed_sample_data"),
	}
	return config, nil
}

func loadDatabaseConfig(v *viper.Viper) (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()
	dbConfig.Type = strings.ToLower(v.GetString("db_type"))

	switch dbConfig.Type {
	case StoreMemory:
	case StorePostgres:
		dbConfig.Driver = v.GetString("db_driver")
		if dbConfig.Driver != "postgres" && dbConfig.Driver != "pgx" {
			return nil, fmt.Errorf("unsupported DB_DRIVER %q", dbConfig.Driver)
		}
		// Prioritize DATABASE_URL if provided
		if uri := v.GetString("database_url"); uri != "" {
			dbConfig.URI = uri
			dbConfig.SSLMode = getSSLModeFromURI(uri)
			break
		}

		dbConfig.Host = v.GetString("db_host")
		dbConfig.Port = v.GetInt("db_port")
		dbConfig.User = v.GetString("db_user")
		if dbConfig.User == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Password = v.GetString("db_password")
		if dbConfig.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}
		dbConfig.Name = v.GetString("db_name")
		dbConfig.SSLMode = v.GetString("db_ssl_mode")

		dbConfig.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			dbConfig.Port,
			dbConfig.Name,
			dbConfig.SSLMode,
		)
	case StoreMongoDB:
		dbConfig.URI = v.GetString("mongodb_uri")
		dbConfig.Name = v.GetString("mongodb_database")
	case StoreRedis:
		dbConfig.URI = v.GetString("redis_addr")
		dbConfig.RedisPassword = v.GetString("redis_password")
		dbConfig.RedisDB = v.GetInt("redis_db")
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbConfig.Type)
	}
	return dbConfig, nil
}

// Address is the listen address for the HTTP server.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to extract sslmode from a DSN, defaults to "require"
func getSSLModeFromURI(uri string) string {
	if _, query, ok := strings.Cut(uri, "?"); ok {
		for _, param := range strings.Split(query, "&") {
			if key, value, ok := strings.Cut(param, "="); ok && key == "sslmode" {
				return value
			}
		}
	}
	return "require"
}
