package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"linkstash/internal/fetchpool"
	"linkstash/internal/scraper"
)

const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"

	ImageCacheBadger = "badger"
	ImageCacheS3     = "s3"

	RendererHTTP = "http"
	RendererRod  = "rod"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	BadgerDBPath string `mapstructure:"BADGERDB_PATH"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`

	ImageCache     string `mapstructure:"IMAGE_CACHE"`
	ImageCachePath string `mapstructure:"IMAGE_CACHE_PATH"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
	S3Region       string `mapstructure:"S3_REGION"`
	S3Endpoint     string `mapstructure:"S3_ENDPOINT"`
	S3Prefix       string `mapstructure:"S3_PREFIX"`

	FetchWindow       int           `mapstructure:"FETCH_WINDOW"`
	FetchUserAgent    string        `mapstructure:"FETCH_USER_AGENT"`
	FetchTimeout      time.Duration `mapstructure:"FETCH_TIMEOUT"`
	FetchMaxBodyBytes int64         `mapstructure:"FETCH_MAX_BODY_BYTES"`
	FetchRateLimit    float64       `mapstructure:"FETCH_RATE_LIMIT"`
	FetchRateBurst    int           `mapstructure:"FETCH_RATE_BURST"`
	FetchRenderer     string        `mapstructure:"FETCH_RENDERER"`

	// HTTPAddr is the API listen address. Empty disables the API.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// TelegramBotToken enables the bot when set.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
}

func setDefaults(v *viper.Viper) {
	def := scraper.DefaultHTTPConfig()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreBadger)
	v.SetDefault("BADGERDB_PATH", "./badger_data")
	v.SetDefault("SQLITE_PATH", "./linkstash.db")
	v.SetDefault("IMAGE_CACHE", ImageCacheBadger)
	v.SetDefault("IMAGE_CACHE_PATH", "./image_cache")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_PREFIX", "previews")
	v.SetDefault("FETCH_WINDOW", fetchpool.DefaultWindow)
	v.SetDefault("FETCH_USER_AGENT", def.UserAgent)
	v.SetDefault("FETCH_TIMEOUT", def.Timeout)
	v.SetDefault("FETCH_MAX_BODY_BYTES", def.MaxBodyBytes)
	v.SetDefault("FETCH_RATE_LIMIT", 0)
	v.SetDefault("FETCH_RATE_BURST", 1)
	v.SetDefault("FETCH_RENDERER", RendererHTTP)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
}

// LoadConfig reads configuration from file or environment variables.
// Environment variables win over config.yaml in path.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	// Every key has a default, so AutomaticEnv also applies on Unmarshal.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	switch c.StoreDriver {
	case StoreBadger:
		if c.BadgerDBPath == "" {
			return errors.New("BADGERDB_PATH is not set")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is not set")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ImageCache {
	case ImageCacheBadger:
		if c.ImageCachePath == "" {
			return errors.New("IMAGE_CACHE_PATH is not set")
		}
	case ImageCacheS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when IMAGE_CACHE is s3")
		}
	default:
		return fmt.Errorf("unknown IMAGE_CACHE %q", c.ImageCache)
	}
	switch c.FetchRenderer {
	case RendererHTTP, RendererRod:
	default:
		return fmt.Errorf("unknown FETCH_RENDERER %q", c.FetchRenderer)
	}
	if c.FetchRateLimit < 0 {
		return errors.New("FETCH_RATE_LIMIT must not be negative")
	}
	return nil
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// HTTPFetch returns the settings for the plain HTTP fetcher.
func (c Config) HTTPFetch() scraper.HTTPConfig {
	return scraper.HTTPConfig{
		UserAgent:    c.FetchUserAgent,
		Timeout:      c.FetchTimeout,
		MaxBodyBytes: c.FetchMaxBodyBytes,
		RateLimit:    c.FetchRateLimit,
		RateBurst:    c.FetchRateBurst,
	}
}
