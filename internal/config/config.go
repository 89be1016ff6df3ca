package config

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/knowtext/internal/storage"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "KNOWTEXT"

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogMode     string `envconfig:"LOG_MODE" default:"development"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	TreeCacheTTL time.Duration `envconfig:"TREE_CACHE_TTL" default:"5m"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"knowtext-exports"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Soft-deleted records older than PurgeRetention are removed every PurgeInterval.
	// A zero interval disables the background purge.
	PurgeRetention time.Duration `envconfig:"PURGE_RETENTION" default:"720h"`
	PurgeInterval  time.Duration `envconfig:"PURGE_INTERVAL" default:"1h"`

	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Config().Configured()
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// S3Config maps the storage settings onto the client configuration. A custom
// endpoint implies an S3-compatible server and path-style addressing.
func (c *Config) S3Config() storage.S3ClientConfig {
	return storage.S3ClientConfig{
		Endpoint:        c.S3Endpoint,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKey,
		SecretAccessKey: c.S3SecretKey,
		Bucket:          c.S3Bucket,
		UsePathStyle:    c.S3Endpoint != "",
	}
}
