// Package config loads the viewer configuration from POSTVIEW_* environment
// variables and an optional config file using viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/postview/pkg/client"
	"github.com/Sternrassler/postview/pkg/logging"
	"github.com/Sternrassler/postview/pkg/render"
	"github.com/Sternrassler/postview/pkg/viewer"
)

// EnvPrefix is prepended to every key when reading the environment.
const EnvPrefix = "POSTVIEW"

var (
	ErrInvalidEndpoint    = errors.New("endpoint must be an absolute http(s) URL")
	ErrInvalidPageSize    = errors.New("page_size must be > 0")
	ErrInvalidSkeletons   = errors.New("skeleton_count must be >= 0")
	ErrInvalidDelay       = errors.New("delays must be >= 0")
	ErrInvalidRateLimit   = errors.New("rate_limit must be >= 0")
	ErrInvalidRetries     = errors.New("max_retries must be >= 1")
	ErrInvalidRemotePages = errors.New("remote_page_size must be >= 0")
	ErrInvalidConcurrency = errors.New("max_concurrency must be > 0")
	ErrInvalidLogLevel    = errors.New("invalid log_level")
	ErrMissingUserAgent   = errors.New("user_agent must not be empty")
	ErrMissingListenAddr  = errors.New("listen_addr must not be empty")
)

// Config is the complete process configuration.
type Config struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenAddr string `mapstructure:"listen_addr"`

	PageSize      int           `mapstructure:"page_size"`
	SkeletonCount int           `mapstructure:"skeleton_count"`
	SkeletonDelay time.Duration `mapstructure:"skeleton_delay"`
	CloseDelay    time.Duration `mapstructure:"close_delay"`

	RedisURL       string        `mapstructure:"redis_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RemotePageSize int           `mapstructure:"remote_page_size"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRemotePages int           `mapstructure:"max_remote_pages"`
	StrictPayload  bool          `mapstructure:"strict_payload"`

	LogLevel    string `mapstructure:"log_level"`
	LogPretty   bool   `mapstructure:"log_pretty"`
	TraceStdout bool   `mapstructure:"trace_stdout"`
}

// keys lists every supported key with its default.
var keys = map[string]any{
	"endpoint":         client.DefaultEndpoint,
	"listen_addr":      ":8080",
	"page_size":        6,
	"skeleton_count":   6,
	"skeleton_delay":   "500ms",
	"close_delay":      "150ms",
	"redis_url":        "",
	"user_agent":       "postview/0.1.0",
	"rate_limit":       0.0,
	"request_timeout":  "0s",
	"max_retries":      1,
	"remote_page_size": 0,
	"max_concurrency":  5,
	"max_remote_pages": 500,
	"strict_payload":   false,
	"log_level":        "info",
	"log_pretty":       false,
	"trace_stdout":     false,
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for key, def := range keys {
		v.SetDefault(key, def)
		// Unmarshal only sees env values for bound keys
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the optional config file at path, applies the environment on
// top and validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field and returns the first violation.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w (got %q)", ErrInvalidEndpoint, c.Endpoint)
	}

	switch {
	case c.ListenAddr == "":
		return ErrMissingListenAddr
	case c.PageSize <= 0:
		return fmt.Errorf("%w (got %d)", ErrInvalidPageSize, c.PageSize)
	case c.SkeletonCount < 0:
		return fmt.Errorf("%w (got %d)", ErrInvalidSkeletons, c.SkeletonCount)
	case c.SkeletonDelay < 0 || c.CloseDelay < 0 || c.RequestTimeout < 0:
		return ErrInvalidDelay
	case c.UserAgent == "":
		return ErrMissingUserAgent
	case c.RateLimit < 0:
		return fmt.Errorf("%w (got %v)", ErrInvalidRateLimit, c.RateLimit)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w (got %d)", ErrInvalidRetries, c.MaxRetries)
	case c.RemotePageSize < 0:
		return fmt.Errorf("%w (got %d)", ErrInvalidRemotePages, c.RemotePageSize)
	case c.MaxRemotePages <= 0:
		return fmt.Errorf("%w: max_remote_pages must be > 0 (got %d)", ErrInvalidRemotePages, c.MaxRemotePages)
	case c.MaxConcurrency <= 0:
		return fmt.Errorf("%w (got %d)", ErrInvalidConcurrency, c.MaxConcurrency)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogLevel, err)
	}
	return nil
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Client returns the gateway settings. rdb may be nil.
func (c Config) Client(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig()
	cfg.Endpoint = c.Endpoint
	cfg.UserAgent = c.UserAgent
	cfg.Redis = rdb
	cfg.RateLimit = c.RateLimit
	cfg.Timeout = c.RequestTimeout
	cfg.Retry.MaxAttempts = c.MaxRetries
	cfg.RemotePageSize = c.RemotePageSize
	cfg.MaxConcurrency = c.MaxConcurrency
	cfg.MaxRemotePages = c.MaxRemotePages
	cfg.StrictPayload = c.StrictPayload
	return cfg
}

// Viewer returns the controller settings.
func (c Config) Viewer() viewer.Config {
	cfg := viewer.DefaultConfig()
	cfg.PageSize = c.PageSize
	cfg.SkeletonDelay = c.SkeletonDelay
	cfg.CloseDelay = c.CloseDelay
	cfg.Render = render.Config{
		SkeletonCount:    c.SkeletonCount,
		BodyPreviewRunes: render.DefaultConfig().BodyPreviewRunes,
	}
	return cfg
}

// Redis opens a client for RedisURL, or returns nil when none is set.
// Both redis:// URLs and bare host:port addresses are accepted.
func (c Config) Redis() (*redis.Client, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if u, err := url.Parse(c.RedisURL); err == nil && (u.Scheme == "redis" || u.Scheme == "rediss") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis_url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: c.RedisURL}), nil
}
