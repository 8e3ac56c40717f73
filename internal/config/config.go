// Package config provides the functional-options Config for synthd,
// patterned after gomind's core.Config/core.Option.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
)

// Config holds every knob the synthesis service needs at startup.
type Config struct {
	Port int

	RunsBase string

	OpenRouterKey string
	SiteURL       string
	SiteName      string

	CORSOrigin string

	LogJSON  bool
	LogLevel string

	EventLogMaxBytes int64
}

// Option mutates a Config during construction; an error aborts New.
type Option func(*Config) error

func defaults() *Config {
	return &Config{
		Port:             8080,
		RunsBase:         "runs",
		SiteURL:          "http://localhost:8080",
		SiteName:         "Synthesis Pipeline",
		CORSOrigin:       "*",
		LogLevel:         "info",
		EventLogMaxBytes: 10 * 1024 * 1024,
	}
}

// New builds a Config from defaults plus the supplied options, validating
// the result before returning it.
func New(opts ...Option) (*Config, error) {
	cfg := defaults()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.Port = port
		return nil
	}
}

func WithRunsBase(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return fmt.Errorf("runs base path cannot be empty")
		}
		c.RunsBase = path
		return nil
	}
}

func WithOpenRouterKey(key string) Option {
	return func(c *Config) error {
		c.OpenRouterKey = key
		return nil
	}
}

func WithSiteIdentity(url, name string) Option {
	return func(c *Config) error {
		if url != "" {
			c.SiteURL = url
		}
		if name != "" {
			c.SiteName = name
		}
		return nil
	}
}

func WithCORSOrigin(origin string) Option {
	return func(c *Config) error {
		if origin != "" {
			c.CORSOrigin = origin
		}
		return nil
	}
}

func WithLogFormat(jsonFormat bool) Option {
	return func(c *Config) error {
		c.LogJSON = jsonFormat
		return nil
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.LogLevel = level
		return nil
	}
}

func WithEventLogMaxBytes(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("event log max bytes must be positive")
		}
		c.EventLogMaxBytes = n
		return nil
	}
}

// FromEnv reads the process environment the same way it's read in
// production: OPENROUTER_API_KEY, YOUR_SITE_URL, YOUR_SITE_NAME, PORT,
// SYNTH_RUNS_DIR, SYNTH_CORS_ORIGIN, LOG_JSON, SYNTH_LOG_LEVEL and
// PROD_LOG_MAX_BYTES.
func FromEnv() (*Config, error) {
	opts := []Option{
		WithOpenRouterKey(os.Getenv("OPENROUTER_API_KEY")),
		WithSiteIdentity(os.Getenv("YOUR_SITE_URL"), os.Getenv("YOUR_SITE_NAME")),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing PORT: %w", err)
		}
		opts = append(opts, WithPort(port))
	}
	if v := os.Getenv("SYNTH_RUNS_DIR"); v != "" {
		opts = append(opts, WithRunsBase(v))
	}
	if v := os.Getenv("SYNTH_CORS_ORIGIN"); v != "" {
		opts = append(opts, WithCORSOrigin(v))
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		opts = append(opts, WithLogFormat(v == "1" || v == "true"))
	}
	if v := os.Getenv("SYNTH_LOG_LEVEL"); v != "" {
		opts = append(opts, WithLogLevel(v))
	}
	if v := os.Getenv("PROD_LOG_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing PROD_LOG_MAX_BYTES: %w", err)
		}
		opts = append(opts, WithEventLogMaxBytes(n))
	}

	return New(opts...)
}

// Validate enforces the one hard precondition the whole service depends on:
// a run can never be scheduled without a credential to call the gateway
// with.
func (c *Config) Validate() error {
	if c.OpenRouterKey == "" {
		return apperrors.ErrMissingCredential
	}
	if c.RunsBase == "" {
		return fmt.Errorf("runs base path cannot be empty")
	}
	return nil
}
