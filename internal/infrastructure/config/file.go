package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for file decoding. Nil fields are absent from the
// file and keep the environment value.
type fileConfig struct {
	Buffer *struct {
		Mode         *string `yaml:"mode" toml:"mode"`
		Size         *int    `yaml:"size" toml:"size"`
		Interval     *string `yaml:"interval" toml:"interval"`
		DrainTimeout *string `yaml:"drain_timeout" toml:"drain_timeout"`
		Workers      *int    `yaml:"workers" toml:"workers"`
	} `yaml:"buffer" toml:"buffer"`
	Flush *struct {
		Handler   *string  `yaml:"handler" toml:"handler"`
		Strict    *bool    `yaml:"strict" toml:"strict"`
		HubURL    *string  `yaml:"hub_url" toml:"hub_url"`
		Timeout   *string  `yaml:"hub_timeout" toml:"hub_timeout"`
		Retries   *int     `yaml:"hub_retries" toml:"hub_retries"`
		Gzip      *bool    `yaml:"hub_gzip" toml:"hub_gzip"`
		RateLimit *float64 `yaml:"hub_rate_limit" toml:"hub_rate_limit"`
		SpoolDir  *string  `yaml:"spool_dir" toml:"spool_dir"`
	} `yaml:"flush" toml:"flush"`
	IDs *struct {
		Strategy *string `yaml:"strategy" toml:"strategy"`
	} `yaml:"ids" toml:"ids"`
	Tracer *struct {
		FlushOnRootExit *bool `yaml:"flush_on_root_exit" toml:"flush_on_root_exit"`
	} `yaml:"tracer" toml:"tracer"`
	Logging *struct {
		Level       *string `yaml:"level" toml:"level"`
		Development *bool   `yaml:"development" toml:"development"`
	} `yaml:"logging" toml:"logging"`
	Admin *struct {
		Enabled *bool   `yaml:"enabled" toml:"enabled"`
		Host    *string `yaml:"host" toml:"host"`
		Port    *int    `yaml:"port" toml:"port"`
	} `yaml:"admin" toml:"admin"`
}

// LoadFile loads the environment and overlays a YAML or TOML file chosen by
// extension. Keys present in the file win.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalid, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := fc.apply(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YAML renders the configuration in the format LoadFile reads
func (c *Config) YAML() ([]byte, error) {
	out := map[string]any{
		"buffer": map[string]any{
			"mode":          c.Buffer.Mode,
			"size":          c.Buffer.Size,
			"interval":      c.Buffer.Interval.String(),
			"drain_timeout": c.Buffer.DrainTimeout.String(),
			"workers":       c.Buffer.Workers,
		},
		"flush": map[string]any{
			"handler":        c.Flush.Handler,
			"strict":         c.Flush.Strict,
			"hub_url":        c.Flush.HubURL,
			"hub_timeout":    c.Flush.Timeout.String(),
			"hub_retries":    c.Flush.Retries,
			"hub_gzip":       c.Flush.Gzip,
			"hub_rate_limit": c.Flush.RateLimit,
			"spool_dir":      c.Flush.SpoolDir,
		},
		"ids": map[string]any{
			"strategy": c.IDs.Strategy,
		},
		"tracer": map[string]any{
			"flush_on_root_exit": c.Tracer.FlushOnRootExit,
		},
		"logging": map[string]any{
			"level":       c.Logging.Level,
			"development": c.Logging.Development,
		},
		"admin": map[string]any{
			"enabled": c.Admin.Enabled,
			"host":    c.Admin.Host,
			"port":    c.Admin.Port,
		},
	}
	return yaml.Marshal(out)
}

func (fc *fileConfig) apply(cfg *Config) error {
	if b := fc.Buffer; b != nil {
		set(&cfg.Buffer.Mode, b.Mode)
		set(&cfg.Buffer.Size, b.Size)
		set(&cfg.Buffer.Workers, b.Workers)
		if err := setDuration(&cfg.Buffer.Interval, b.Interval, "buffer.interval"); err != nil {
			return err
		}
		if err := setDuration(&cfg.Buffer.DrainTimeout, b.DrainTimeout, "buffer.drain_timeout"); err != nil {
			return err
		}
	}
	if f := fc.Flush; f != nil {
		set(&cfg.Flush.Handler, f.Handler)
		set(&cfg.Flush.Strict, f.Strict)
		set(&cfg.Flush.HubURL, f.HubURL)
		set(&cfg.Flush.Retries, f.Retries)
		set(&cfg.Flush.Gzip, f.Gzip)
		set(&cfg.Flush.RateLimit, f.RateLimit)
		set(&cfg.Flush.SpoolDir, f.SpoolDir)
		if err := setDuration(&cfg.Flush.Timeout, f.Timeout, "flush.hub_timeout"); err != nil {
			return err
		}
	}
	if i := fc.IDs; i != nil {
		set(&cfg.IDs.Strategy, i.Strategy)
	}
	if t := fc.Tracer; t != nil {
		set(&cfg.Tracer.FlushOnRootExit, t.FlushOnRootExit)
	}
	if l := fc.Logging; l != nil {
		set(&cfg.Logging.Level, l.Level)
		set(&cfg.Logging.Development, l.Development)
	}
	if a := fc.Admin; a != nil {
		set(&cfg.Admin.Enabled, a.Enabled)
		set(&cfg.Admin.Host, a.Host)
		set(&cfg.Admin.Port, a.Port)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = d
	return nil
}
