// Package config loads omr-eval settings from config.yaml and OMR_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/varshakam/omr-eval/internal/layout"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Layouts LayoutsConfig `mapstructure:"layouts"`
	Storage StorageConfig `mapstructure:"storage"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Log     LogConfig     `mapstructure:"log"`
	OCR     OCRConfig     `mapstructure:"ocr"`
}

type ServerConfig struct {
	Port           string          `mapstructure:"port"`
	Mode           string          `mapstructure:"mode"`
	DefaultVersion string          `mapstructure:"default_version"`
	MaxUploadMB    int64           `mapstructure:"max_upload_mb"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LayoutsConfig struct {
	// File is a layout file path. Empty uses the built-in layouts.
	File string `mapstructure:"file"`
}

type StorageConfig struct {
	Type           string `mapstructure:"type"`
	LocalPath      string `mapstructure:"local_path"`
	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`
}

type QueueConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	Name        string        `mapstructure:"name"`
	Concurrency int           `mapstructure:"concurrency"`
	Retention   time.Duration `mapstructure:"retention"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type OCRConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Language       string `mapstructure:"language"`
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.default_version", layout.DefaultVersion)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.rate_limit.requests_per_second", 5)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("layouts.file", "")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "processed")
	v.SetDefault("storage.minio_bucket", "omr-processed")

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.name", "omr")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retention", "24h")
	v.SetDefault("queue.timeout", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_prefix", "")
}

// Load reads configuration. path may name a config file directly, a
// directory holding config.yaml, or be empty to search the working
// directory. A missing config file is not an error: defaults and
// environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicitFile := false
	if info, err := os.Stat(path); path != "" && err == nil && !info.IsDir() {
		v.SetConfigFile(path)
		explicitFile = true
	} else {
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would only fail later at run time.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage.local_path is required for local storage")
		}
	case "minio":
		if c.Storage.MinioEndpoint == "" || c.Storage.MinioBucket == "" {
			return fmt.Errorf("storage.minio_endpoint and storage.minio_bucket are required for minio storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.Queue.Enabled && c.Queue.RedisURL == "" {
		return fmt.Errorf("queue.redis_url is required when the queue is enabled")
	}
	if c.Queue.Concurrency < 1 {
		c.Queue.Concurrency = 1
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	return nil
}
