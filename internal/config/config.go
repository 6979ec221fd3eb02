package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	LogLevel string         `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// TelegramConfig holds MTProto API credentials shared by all workers
type TelegramConfig struct {
	APIID   int32  `mapstructure:"api_id"`
	APIHash string `mapstructure:"api_hash"`
}

// WorkerConfig holds worker process configuration
type WorkerConfig struct {
	// Binary is the worker entry-point executable the supervisor spawns.
	Binary string `mapstructure:"binary"`
	// DataDir receives per-worker log files and private session copies.
	DataDir        string `mapstructure:"data_dir"`
	SessionsDir    string `mapstructure:"sessions_dir"`
	MediaAssetsDir string `mapstructure:"media_assets_dir"`
	// MetricsAddr is where each worker exposes its own /metrics endpoint.
	// Port 0 binds an ephemeral port (logged at startup) so concurrent
	// workers never collide; empty disables the endpoint.
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period"`
}

// CleanupConfig holds retention settings for relay logs and the reply index
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("worker.binary", "relay-worker")
	viper.SetDefault("worker.data_dir", "data")
	viper.SetDefault("worker.sessions_dir", "data/sessions")
	viper.SetDefault("worker.media_assets_dir", "data/media_assets")
	viper.SetDefault("worker.metrics_addr", "127.0.0.1:0")
	viper.SetDefault("worker.stop_grace_period", "5s")

	viper.SetDefault("cleanup.retention_days", 30)

	viper.SetDefault("log_level", "info")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Telegram
	viper.BindEnv("telegram.api_id", "API_ID")
	viper.BindEnv("telegram.api_hash", "API_HASH")

	// Worker
	viper.BindEnv("worker.binary", "WORKER_BINARY")
	viper.BindEnv("worker.data_dir", "WORKER_DATA_DIR")
	viper.BindEnv("worker.sessions_dir", "WORKER_SESSIONS_DIR")
	viper.BindEnv("worker.media_assets_dir", "WORKER_MEDIA_ASSETS_DIR")
	viper.BindEnv("worker.metrics_addr", "WORKER_METRICS_ADDR")
	viper.BindEnv("worker.stop_grace_period", "WORKER_STOP_GRACE_PERIOD")

	// Cleanup
	viper.BindEnv("cleanup.retention_days", "CLEANUP_RETENTION_DAYS")

	viper.BindEnv("log_level", "LOG_LEVEL")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Worker.StopGracePeriod <= 0 {
		return fmt.Errorf("worker stop grace period must be greater than 0")
	}

	if c.Cleanup.RetentionDays <= 0 {
		return fmt.Errorf("cleanup retention days must be greater than 0")
	}

	return nil
}

// ValidateTelegram checks the MTProto credentials a worker needs. Kept apart
// from Validate so the control plane can boot without them.
func (c *Config) ValidateTelegram() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("API_ID and API_HASH must be configured for user sessions")
	}
	return nil
}
