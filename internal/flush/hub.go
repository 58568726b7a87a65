package flush

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/resilience"
)

// hubPaths maps each category to its collector endpoint
var hubPaths = map[Category]string{
	CategoryBlocks:   "/api/v1/blocks",
	CategoryLogs:     "/api/v1/logs",
	CategoryEntered:  "/api/v1/block-entered",
	CategoryExited:   "/api/v1/block-exited",
	CategoryReturned: "/api/v1/block-returned",
}

// HubConfig configures delivery to a collector
type HubConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Gzip         bool
	RateLimit    float64 // requests per second, 0 = unlimited
	Strict       bool
	UserAgent    string
	Logger       *zap.Logger
	Breaker      *resilience.Breaker
}

// DefaultHubConfig returns the configuration for a local collector
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BaseURL:      "http://localhost:8080",
		Timeout:      10 * time.Second,
		Retries:      3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		UserAgent:    "vfl-agent/1.0",
	}
}

// HubHandler POSTs batches to a collector
type HubHandler struct {
	baseURL string
	gzip    bool
	strict  bool
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewHubHandler creates a collector handler with retries, rate limiting and a circuit breaker
func NewHubHandler(cfg HubConfig) *HubHandler {
	defaults := DefaultHubConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = defaults.RetryWaitMin
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create underlying retryable client
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil // Disable logging
	// Hand the last response back so the status can be reported
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Content-Type", "application/json")

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.New("vfl-hub", resilience.Settings{
			Threshold: 5,
			Cooldown:  15 * time.Second,
			Probes:    2,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Collector circuit changed state",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HubHandler{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		gzip:    cfg.Gzip,
		strict:  cfg.Strict,
		client:  restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// FlushBlocks posts blocks
func (h *HubHandler) FlushBlocks(ctx context.Context, blocks []model.Block) error {
	return h.post(ctx, CategoryBlocks, BlocksToWire(blocks), len(blocks))
}

// FlushLogs posts logs
func (h *HubHandler) FlushLogs(ctx context.Context, logs []model.BlockLog) error {
	return h.post(ctx, CategoryLogs, LogsToWire(logs), len(logs))
}

// FlushEntered posts entered timestamps
func (h *HubHandler) FlushEntered(ctx context.Context, entered Timestamps) error {
	return h.post(ctx, CategoryEntered, TimestampsToWire(entered), len(entered))
}

// FlushExited posts exited timestamps
func (h *HubHandler) FlushExited(ctx context.Context, exited Timestamps) error {
	return h.post(ctx, CategoryExited, TimestampsToWire(exited), len(exited))
}

// FlushReturned posts returned timestamps
func (h *HubHandler) FlushReturned(ctx context.Context, returned Timestamps) error {
	return h.post(ctx, CategoryReturned, TimestampsToWire(returned), len(returned))
}

// BreakerState returns the collector circuit state
func (h *HubHandler) BreakerState() resilience.State {
	return h.breaker.State()
}

// Endpoint returns the full URL for a category
func (h *HubHandler) Endpoint(cat Category) string {
	return h.baseURL + hubPaths[cat]
}

// post delivers one batch and applies the strict policy
func (h *HubHandler) post(ctx context.Context, cat Category, payload any, count int) error {
	err := h.deliver(ctx, cat, payload)
	if err == nil {
		return nil
	}

	h.logger.Error("Failed to flush batch",
		zap.String("category", cat.String()),
		zap.Int("count", count),
		zap.Error(err))

	if h.strict {
		return err
	}
	return nil
}

func (h *HubHandler) deliver(ctx context.Context, cat Category, payload any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode %s batch: %w", ErrDeliveryFailed, cat, err)
	}

	encoding := ""
	if h.gzip {
		if body, err = gzipBody(body); err != nil {
			return fmt.Errorf("%w: compress %s batch: %w", ErrDeliveryFailed, cat, err)
		}
		encoding = "gzip"
	}

	// Wait for rate limiter
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %w", ErrDeliveryFailed, err)
	}

	endpoint := h.Endpoint(cat)
	err = h.breaker.Do(func() error {
		req := h.client.R().SetContext(ctx).SetBody(body)
		if encoding != "" {
			req.SetHeader("Content-Encoding", encoding)
		}

		resp, err := req.Post(endpoint)
		if err != nil {
			return fmt.Errorf("POST %s: %w", endpoint, err)
		}
		if resp.IsError() {
			return fmt.Errorf("POST %s: status %d", endpoint, resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
