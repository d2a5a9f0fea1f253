// Package config loads client configuration from a YAML (or TOML/JSON) file
// and RAWRSYNC_* environment variables, and turns it into rawrsync options.
//
// Environment variables override file values; nested keys use underscores,
// e.g. RAWRSYNC_QUERY_STALE_TIME=30s or RAWRSYNC_REDIS_ADDR=localhost:6379.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Keksclan/rawrsync"
	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/internal/logging"
	"github.com/Keksclan/rawrsync/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RAWRSYNC"

// Config is the file and environment configuration of a client.
type Config struct {
	BaseURL string            `mapstructure:"base_url"`
	Prefix  string            `mapstructure:"prefix"`
	Headers map[string]string `mapstructure:"headers"`

	Request   RequestConfig   `mapstructure:"request"`
	Query     QueryConfig     `mapstructure:"query"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type RequestConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Recovery bool          `mapstructure:"recovery"`
}

type QueryConfig struct {
	StaleTime     time.Duration `mapstructure:"stale_time"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	GCTime        time.Duration `mapstructure:"gc_time"`
	MaxRetained   int64         `mapstructure:"max_retained"`
	PrefetchLimit int           `mapstructure:"prefetch_limit"`
}

// RateLimitConfig limits all requests. A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type BreakerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	OpenTimeout        time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxSuccess int           `mapstructure:"half_open_max_success"`
}

// RetryConfig enables retries when MaxAttempts is above one.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// RedisConfig enables the Redis invalidation bus when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig registers the collectors with the default Prometheus
// registry when Enabled.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// defaults lists every key so environment variables bind even when the file
// omits them.
func defaults(v *viper.Viper) {
	bd := breaker.DefaultConfig()
	v.SetDefault("base_url", "")
	v.SetDefault("prefix", "/api")
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("request.recovery", true)
	v.SetDefault("query.stale_time", time.Duration(0))
	v.SetDefault("query.fetch_timeout", 30*time.Second)
	v.SetDefault("query.gc_time", 5*time.Minute)
	v.SetDefault("query.max_retained", 10_000)
	v.SetDefault("query.prefetch_limit", 0)
	v.SetDefault("rate_limit.rps", 0.0)
	v.SetDefault("rate_limit.burst", 0)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", bd.FailureThreshold)
	v.SetDefault("breaker.open_timeout", bd.OpenTimeout)
	v.SetDefault("breaker.half_open_max_success", bd.HalfOpenMaxSuccess)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.base_delay", 100*time.Millisecond)
	v.SetDefault("retry.max_delay", 2*time.Second)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("metrics.enabled", false)
}

// Load reads the file at path, when non-empty, and applies environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot produce a working client.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("config: base_url is required"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("config: rate_limit must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("config: rate_limit.burst is required when rps is set"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("config: retry.jitter must be within [0, 1]"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	return errors.Join(errs...)
}

// Options translates the configuration into client options. The returned
// closer releases the log file and must be closed after the client.
func (c *Config) Options() ([]rawrsync.Option, io.Closer, error) {
	logger, closer, err := logging.New(logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []rawrsync.Option{
		rawrsync.WithLogger(logger),
		rawrsync.WithPrefix(c.Prefix),
		rawrsync.WithRequestTimeout(c.Request.Timeout),
		rawrsync.WithStaleTime(c.Query.StaleTime),
		rawrsync.WithFetchTimeout(c.Query.FetchTimeout),
		rawrsync.WithGCTime(c.Query.GCTime),
		rawrsync.WithMaxRetained(c.Query.MaxRetained),
		rawrsync.WithPrefetchLimit(c.Query.PrefetchLimit),
	}
	for k, val := range c.Headers {
		opts = append(opts, rawrsync.WithHeader(k, val))
	}
	if c.Request.Recovery {
		opts = append(opts, rawrsync.WithRecovery())
	}
	if c.RateLimit.RPS > 0 {
		opts = append(opts, rawrsync.WithRateLimitGlobal(c.RateLimit.RPS, c.RateLimit.Burst))
	}
	if c.Breaker.Enabled {
		opts = append(opts, rawrsync.WithBreaker(breaker.Config{
			FailureThreshold:   c.Breaker.FailureThreshold,
			OpenTimeout:        c.Breaker.OpenTimeout,
			HalfOpenMaxSuccess: c.Breaker.HalfOpenMaxSuccess,
		}))
	}
	if c.Retry.MaxAttempts > 1 {
		opts = append(opts, rawrsync.WithRetry(retry.Config{
			MaxAttempts:   c.Retry.MaxAttempts,
			BaseDelay:     c.Retry.BaseDelay,
			MaxDelay:      c.Retry.MaxDelay,
			Jitter:        c.Retry.Jitter,
			RetryStatuses: retry.DefaultRetryStatuses,
		}))
	}
	if c.Redis.Addr != "" {
		opts = append(opts, rawrsync.WithRedisBus(c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.Channel))
	}
	if c.Metrics.Enabled {
		opts = append(opts, rawrsync.WithMetrics(prometheus.DefaultRegisterer))
	}
	return opts, closer, nil
}

// NewClient builds a client from c, appending extra options. The returned
// closer closes the client and then the log file.
func (c *Config) NewClient(extra ...rawrsync.Option) (*rawrsync.Client, io.Closer, error) {
	opts, logCloser, err := c.Options()
	if err != nil {
		return nil, nil, err
	}
	client, err := rawrsync.NewClient(c.BaseURL, append(opts, extra...)...)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	return client, closerFunc(func() error {
		return errors.Join(client.Close(), logCloser.Close())
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
