package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   PostgresConfig `mapstructure:"database"`
	Redis      RedisConfig
	MQTT       MQTTConfig
	Scheduler  SchedulerConfig
	Ingest     IngestConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MQTTConfig struct {
	Broker       string        `mapstructure:"broker"`
	ClientID     string        `mapstructure:"client_id"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	ImageBaseURL string        `mapstructure:"image_base_url"`
	ImageDir     string        `mapstructure:"image_dir"`
	ChunkGrace   time.Duration `mapstructure:"chunk_grace"`
	MaxRetryAsks int           `mapstructure:"max_retry_asks"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type IngestConfig struct {
	// OverageToleranceMax caps the per-schedule tolerance window (half the
	// inter-slot gap) used for overage detection.
	OverageToleranceMax time.Duration `mapstructure:"overage_tolerance_max"`
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetEnvPrefix("BLT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Load config file if exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.sslmode", "disable")

	// Redis defaults
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cache_ttl", "10m")

	// MQTT defaults
	viper.SetDefault("mqtt.client_id", "brainlytree-hub")
	viper.SetDefault("mqtt.image_dir", "./images")
	viper.SetDefault("mqtt.chunk_grace", "30s")
	viper.SetDefault("mqtt.max_retry_asks", 3)

	// Scheduler defaults
	viper.SetDefault("scheduler.tick_interval", "1m")

	// Ingest defaults
	viper.SetDefault("ingest.overage_tolerance_max", "90m")

	// Monitoring defaults
	viper.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Ingest.OverageToleranceMax <= 0 {
		return fmt.Errorf("ingest overage tolerance must be positive")
	}
	if config.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick interval must be positive")
	}
	return nil
}
