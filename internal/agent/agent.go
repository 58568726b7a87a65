package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/vfl/internal/buffer"
	"github.com/GriffinCanCode/vfl/internal/flow"
	"github.com/GriffinCanCode/vfl/internal/flush"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/config"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/server"
	"github.com/GriffinCanCode/vfl/internal/logging"
	"github.com/GriffinCanCode/vfl/internal/shared/id"
)

// Agent is one assembled pipeline
type Agent struct {
	Config   *config.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Handler  flush.Handler
	Buffer   buffer.Buffer
	Tracer   *flow.Tracer

	admin     *server.Server
	adminAddr string

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customizes assembly
type Option func(*options)

type options struct {
	logger  *logging.Logger
	handler flush.Handler
}

// WithLogger uses logger instead of building one from the configuration
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHandler uses h instead of the configured flush handler
func WithHandler(h flush.Handler) Option {
	return func(o *options) { o.handler = h }
}

// New validates cfg and builds the pipeline. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Initialize logger
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	// Initialize metrics on a private registry
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(registry)

	handler := o.handler
	if handler == nil {
		var err error
		handler, err = NewHandler(cfg.Flush, logger)
		if err != nil {
			return nil, err
		}
	}

	strategy, err := id.ParseStrategy(cfg.IDs.Strategy)
	if err != nil {
		return nil, err
	}

	bufCfg := buffer.Config{
		Threshold:    cfg.Buffer.Size,
		Interval:     cfg.Buffer.Interval,
		DrainTimeout: cfg.Buffer.DrainTimeout,
		Workers:      cfg.Buffer.Workers,
		Logger:       logger.Component("buffer"),
		Metrics:      metrics,
	}
	var buf buffer.Buffer
	if cfg.Buffer.Mode == config.ModeSync {
		buf = buffer.NewSync(handler, bufCfg)
	} else {
		buf = buffer.NewAsync(handler, bufCfg)
	}

	tracer := flow.New(buf,
		flow.WithLogger(logger.Component("flow")),
		flow.WithMetrics(metrics),
		flow.WithIDGenerator(id.NewGeneratorWithStrategy(strategy)),
		flow.WithFlushOnRootExit(cfg.Tracer.FlushOnRootExit),
	)

	a := &Agent{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics,
		Handler:  handler,
		Buffer:   buf,
		Tracer:   tracer,
	}

	if cfg.Admin.Enabled {
		a.admin = server.New(server.Config{
			Addr:        cfg.Admin.Addr(),
			Development: cfg.Logging.Development,
			LogLevel:    logger.LevelHandler(),
		}, buf, metrics, registry, logger.Component("admin"))

		addr, err := a.admin.Start()
		if err != nil {
			_ = buf.Close(context.Background())
			return nil, err
		}
		a.adminAddr = addr
	}

	logger.Info("Agent initialized",
		zap.String("buffer_mode", cfg.Buffer.Mode),
		zap.String("flush_handler", cfg.Flush.Handler),
		zap.Int("buffer_size", cfg.Buffer.Size),
		zap.Duration("flush_interval", cfg.Buffer.Interval),
		zap.String("id_strategy", string(strategy)),
		zap.String("admin_addr", a.adminAddr),
	)
	return a, nil
}

// NewHandler builds the flush handler selected by cfg
func NewHandler(cfg config.FlushConfig, logger *logging.Logger) (flush.Handler, error) {
	switch cfg.Handler {
	case config.HandlerHub:
		return flush.NewHubHandler(flush.HubConfig{
			BaseURL:   cfg.HubURL,
			Timeout:   cfg.Timeout,
			Retries:   cfg.Retries,
			Gzip:      cfg.Gzip,
			RateLimit: cfg.RateLimit,
			Strict:    cfg.Strict,
			Logger:    logger.Component("hub"),
		}), nil
	case config.HandlerSpool:
		return flush.NewSpoolHandler(cfg.SpoolDir, cfg.Strict, logger.Component("spool"))
	case config.HandlerLog:
		return flush.NewLogHandler(logger.Component("trace"), zapcore.InfoLevel), nil
	case config.HandlerNop:
		return flush.Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: flush handler %q", config.ErrInvalid, cfg.Handler)
	}
}

// AdminAddr returns the bound admin address, empty when the server is disabled
func (a *Agent) AdminAddr() string {
	return a.adminAddr
}

// Shutdown drains the buffer and stops the admin server. Later calls return
// the first call's result.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.Logger.Info("Shutting down agent", zap.Int64("pending", a.Buffer.Stats().Pending))

		var errs []error
		if err := a.Buffer.Close(ctx); err != nil {
			a.Logger.Error("Drain failed", zap.Error(err))
			errs = append(errs, err)
		}
		if a.admin != nil {
			if err := a.admin.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop admin server: %w", err))
			}
		}
		_ = a.Logger.Close()
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}
