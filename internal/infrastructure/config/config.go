package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/vfl/internal/shared/id"
)

// Config holds all agent configuration.
type Config struct {
	Buffer  BufferConfig
	Flush   FlushConfig
	IDs     IDConfig
	Tracer  TracerConfig
	Logging LogConfig
	Admin   AdminConfig
}

// BufferConfig holds buffering and drain configuration.
type BufferConfig struct {
	Mode         string        `envconfig:"VFL_BUFFER_MODE" default:"async"`
	Size         int           `envconfig:"VFL_BUFFER_SIZE" default:"500"`
	Interval     time.Duration `envconfig:"VFL_FLUSH_INTERVAL" default:"5s"`
	DrainTimeout time.Duration `envconfig:"VFL_DRAIN_TIMEOUT" default:"10s"`
	Workers      int           `envconfig:"VFL_FLUSH_WORKERS" default:"8"`
}

// FlushConfig selects and configures the flush handler.
type FlushConfig struct {
	Handler   string        `envconfig:"VFL_FLUSH_HANDLER" default:"hub"`
	Strict    bool          `envconfig:"VFL_FLUSH_STRICT" default:"false"`
	HubURL    string        `envconfig:"VFL_HUB_URL" default:"http://localhost:8080"`
	Timeout   time.Duration `envconfig:"VFL_HUB_TIMEOUT" default:"10s"`
	Retries   int           `envconfig:"VFL_HUB_RETRIES" default:"3"`
	Gzip      bool          `envconfig:"VFL_HUB_GZIP" default:"false"`
	RateLimit float64       `envconfig:"VFL_HUB_RATE_LIMIT" default:"0"`
	SpoolDir  string        `envconfig:"VFL_SPOOL_DIR"`
}

// IDConfig selects the id strategy.
type IDConfig struct {
	Strategy string `envconfig:"VFL_ID_STRATEGY" default:"ulid"`
}

// TracerConfig holds tracer behavior switches.
type TracerConfig struct {
	FlushOnRootExit bool `envconfig:"VFL_FLUSH_ON_ROOT_EXIT" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"VFL_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"VFL_LOG_DEV" default:"false"`
}

// AdminConfig holds the admin HTTP server configuration.
type AdminConfig struct {
	Enabled bool   `envconfig:"VFL_ADMIN_ENABLED" default:"false"`
	Host    string `envconfig:"VFL_ADMIN_HOST" default:"127.0.0.1"`
	Port    int    `envconfig:"VFL_ADMIN_PORT" default:"9464"`
}

// Addr returns host:port
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Buffer modes
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Flush handlers
const (
	HandlerHub   = "hub"
	HandlerSpool = "spool"
	HandlerLog   = "log"
	HandlerNop   = "nop"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Buffer: BufferConfig{
			Mode:         ModeAsync,
			Size:         500,
			Interval:     5 * time.Second,
			DrainTimeout: 10 * time.Second,
			Workers:      8,
		},
		Flush: FlushConfig{
			Handler:  HandlerHub,
			HubURL:   "http://localhost:8080",
			Timeout:  10 * time.Second,
			Retries:  3,
			SpoolDir: defaultSpoolDir(),
		},
		IDs: IDConfig{
			Strategy: string(id.StrategyULID),
		},
		Tracer: TracerConfig{
			FlushOnRootExit: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Admin: AdminConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9464,
		},
	}
}

// Validate rejects values the agent cannot run with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Buffer.Mode == ModeAsync || c.Buffer.Mode == ModeSync, "buffer mode %q", c.Buffer.Mode)
	check(c.Buffer.Size > 0, "buffer size %d", c.Buffer.Size)
	check(c.Buffer.Interval > 0, "flush interval %s", c.Buffer.Interval)
	check(c.Buffer.DrainTimeout > 0, "drain timeout %s", c.Buffer.DrainTimeout)
	check(c.Buffer.Workers > 0, "flush workers %d", c.Buffer.Workers)

	switch c.Flush.Handler {
	case HandlerHub:
		check(strings.HasPrefix(c.Flush.HubURL, "http://") || strings.HasPrefix(c.Flush.HubURL, "https://"),
			"hub url %q", c.Flush.HubURL)
		check(c.Flush.Timeout > 0, "hub timeout %s", c.Flush.Timeout)
	case HandlerSpool:
		check(c.Flush.SpoolDir != "", "spool dir is empty")
	case HandlerLog, HandlerNop:
	default:
		check(false, "flush handler %q", c.Flush.Handler)
	}
	check(c.Flush.Retries >= 0, "hub retries %d", c.Flush.Retries)
	check(c.Flush.RateLimit >= 0, "hub rate limit %g", c.Flush.RateLimit)

	_, err := id.ParseStrategy(c.IDs.Strategy)
	check(err == nil, "id strategy %q", c.IDs.Strategy)
	check(c.Admin.Port >= 0 && c.Admin.Port < 65536, "admin port %d", c.Admin.Port)

	return errors.Join(errs...)
}

func (c *Config) applyDerived() {
	if c.Flush.SpoolDir == "" {
		c.Flush.SpoolDir = defaultSpoolDir()
	}
}

func defaultSpoolDir() string {
	return filepath.Join(os.TempDir(), "vfl-spool")
}
