package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkstash/internal/scraper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoreBadger, cfg.StoreDriver)
	assert.Equal(t, "./badger_data", cfg.BadgerDBPath)
	assert.Equal(t, ImageCacheBadger, cfg.ImageCache)
	assert.Equal(t, 10, cfg.FetchWindow)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, scraper.DefaultUserAgent, cfg.FetchUserAgent)
	assert.Equal(t, RendererHTTP, cfg.FetchRenderer)
	assert.Empty(t, cfg.TelegramBotToken)
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
LOG_LEVEL: debug
STORE_DRIVER: sqlite
SQLITE_PATH: /tmp/links.db
FETCH_WINDOW: 4
FETCH_TIMEOUT: 15s
FETCH_RATE_LIMIT: 2.5
`)
	t.Setenv("FETCH_WINDOW", "6")
	t.Setenv("TELEGRAM_BOT_TOKEN", "secret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/links.db", cfg.SQLitePath)
	assert.Equal(t, 6, cfg.FetchWindow, "environment wins over the file")
	assert.Equal(t, "secret", cfg.TelegramBotToken)

	fetch := cfg.HTTPFetch()
	assert.Equal(t, 15*time.Second, fetch.Timeout)
	assert.InDelta(t, 2.5, fetch.RateLimit, 0.0001)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := writeConfig(t, "STORE_DRIVER: [unterminated")
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogLevel:       "info",
			StoreDriver:    StoreBadger,
			BadgerDBPath:   "./data",
			ImageCache:     ImageCacheBadger,
			ImageCachePath: "./images",
			FetchRenderer:  RendererHTTP,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "mongo" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.StoreDriver = StoreSQLite }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.ImageCache = ImageCacheS3 }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) { c.ImageCache = ImageCacheS3; c.S3Bucket = "previews" }},
		{name: "unknown renderer", mutate: func(c *Config) { c.FetchRenderer = "curl" }, wantErr: true},
		{name: "rod renderer", mutate: func(c *Config) { c.FetchRenderer = RendererRod }},
		{name: "negative rate", mutate: func(c *Config) { c.FetchRateLimit = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
