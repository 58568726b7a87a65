package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flush"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/monitoring"
)

var (
	// ErrDrainTimeout is returned when in-flight dispatches outlive the drain timeout
	ErrDrainTimeout = errors.New("buffer drain timed out")
	// ErrClosed is returned by a second Close
	ErrClosed = errors.New("buffer is closed")
)

// Buffer is the ingestion side of a trace pipeline
type Buffer interface {
	PushBlock(block model.Block)
	PushLog(log model.BlockLog)
	PushEntered(id model.BlockID, at time.Time)
	PushExited(id model.BlockID, at time.Time)
	PushReturned(id model.BlockID, at time.Time)

	// RequestFlush starts a flush without waiting for it
	RequestFlush()
	// Flush drains the buffer and waits for delivery, bounded by the drain timeout
	Flush(ctx context.Context) error
	// Close stops background work and drains
	Close(ctx context.Context) error

	Stats() Stats
}

// Config configures a buffer
type Config struct {
	Threshold    int           // flush once this many items are pending
	Interval     time.Duration // periodic flush, Async only
	DrainTimeout time.Duration // upper bound for Flush and Close
	Workers      int           // concurrent handler calls, Async only
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
}

// DefaultConfig returns the default buffer configuration
func DefaultConfig() Config {
	return Config{
		Threshold:    500,
		Interval:     5 * time.Second,
		DrainTimeout: 10 * time.Second,
		Workers:      8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Stats describes the buffer state at one moment
type Stats struct {
	Mode      string `json:"mode"`
	Pending   int64  `json:"pending"`
	InFlight  int    `json:"in_flight"`
	Threshold int    `json:"threshold"`
	Closed    bool   `json:"closed"`
}

// ============================================================================
// Snapshot
// ============================================================================

// Snapshot is the content of the buffer taken in one critical section
type Snapshot struct {
	Blocks   []model.Block
	Logs     []model.BlockLog
	Entered  flush.Timestamps
	Exited   flush.Timestamps
	Returned flush.Timestamps
}

// Len returns the number of items in the snapshot
func (s Snapshot) Len() int {
	return len(s.Blocks) + len(s.Logs) + len(s.Entered) + len(s.Exited) + len(s.Returned)
}

// IsEmpty reports whether the snapshot holds nothing
func (s Snapshot) IsEmpty() bool {
	return s.Len() == 0
}

// ============================================================================
// Shared core
// ============================================================================

// core holds the pending collections and the delivery path shared by Async and Sync
type core struct {
	handler flush.Handler
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	blocks   []model.Block
	logs     []model.BlockLog
	entered  flush.Timestamps
	exited   flush.Timestamps
	returned flush.Timestamps
	total    atomic.Int64

	failures failureLog
}

func newCore(handler flush.Handler, cfg Config) *core {
	if handler == nil {
		handler = flush.Nop{}
	}
	cfg = cfg.withDefaults()
	return &core{
		handler:  handler,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		entered:  make(flush.Timestamps),
		exited:   make(flush.Timestamps),
		returned: make(flush.Timestamps),
	}
}

// add runs fn under the lock and returns the total count after the push
func (c *core) add(cat flush.Category, fn func()) int64 {
	c.mu.Lock()
	fn()
	total := c.total.Add(1)
	c.mu.Unlock()

	c.metrics.RecordPush(cat.String())
	c.metrics.SetPending(total)
	return total
}

func (c *core) pushBlock(block model.Block) int64 {
	return c.add(flush.CategoryBlocks, func() { c.blocks = append(c.blocks, block) })
}

func (c *core) pushLog(log model.BlockLog) int64 {
	return c.add(flush.CategoryLogs, func() { c.logs = append(c.logs, log) })
}

func (c *core) pushEntered(id model.BlockID, at time.Time) int64 {
	return c.add(flush.CategoryEntered, func() { c.entered[id] = at })
}

func (c *core) pushExited(id model.BlockID, at time.Time) int64 {
	return c.add(flush.CategoryExited, func() { c.exited[id] = at })
}

func (c *core) pushReturned(id model.BlockID, at time.Time) int64 {
	return c.add(flush.CategoryReturned, func() { c.returned[id] = at })
}

// snapshotAndClear is the only reader of pending data
func (c *core) snapshotAndClear() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Blocks:   c.blocks,
		Logs:     c.logs,
		Entered:  c.entered,
		Exited:   c.exited,
		Returned: c.returned,
	}
	c.blocks = nil
	c.logs = nil
	c.entered = make(flush.Timestamps)
	c.exited = make(flush.Timestamps)
	c.returned = make(flush.Timestamps)
	c.total.Store(0)
	c.metrics.SetPending(0)

	return snap
}

func (c *core) pending() int64 {
	return c.total.Load()
}

// calls splits a snapshot into one handler call per non-empty category
func (c *core) calls(snap Snapshot) []func(context.Context) error {
	var out []func(context.Context) error
	if len(snap.Blocks) > 0 {
		out = append(out, func(ctx context.Context) error {
			return c.call(ctx, flush.CategoryBlocks, len(snap.Blocks), func(ctx context.Context) error {
				return c.handler.FlushBlocks(ctx, snap.Blocks)
			})
		})
	}
	if len(snap.Logs) > 0 {
		out = append(out, func(ctx context.Context) error {
			return c.call(ctx, flush.CategoryLogs, len(snap.Logs), func(ctx context.Context) error {
				return c.handler.FlushLogs(ctx, snap.Logs)
			})
		})
	}
	for _, ts := range []struct {
		cat flush.Category
		m   flush.Timestamps
	}{
		{flush.CategoryEntered, snap.Entered},
		{flush.CategoryExited, snap.Exited},
		{flush.CategoryReturned, snap.Returned},
	} {
		if len(ts.m) == 0 {
			continue
		}
		cat, m := ts.cat, ts.m
		out = append(out, func(ctx context.Context) error {
			return c.call(ctx, cat, len(m), func(ctx context.Context) error {
				return flush.FlushTimestamps(ctx, c.handler, cat, m)
			})
		})
	}
	return out
}

// call runs one handler call, converting a panic into a delivery failure
func (c *core) call(ctx context.Context, cat flush.Category, count int, fn func(context.Context) error) (err error) {
	timer := monitoring.NewTimer(c.metrics, cat.String())
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s handler panicked: %v", flush.ErrDeliveryFailed, cat, r)
		}
		duration := timer.Stop(count, err)
		if err != nil {
			c.logger.Error("Flush handler call failed",
				zap.String("category", cat.String()),
				zap.Int("count", count),
				zap.Duration("duration", duration),
				zap.Error(err))
			c.failures.record(cat, err)
		}
	}()

	return fn(ctx)
}

// deliver runs every call of a snapshot in parallel and waits for all of them
func (c *core) deliver(ctx context.Context, snap Snapshot) error {
	var g errgroup.Group
	for _, call := range c.calls(snap) {
		g.Go(func() error { return call(ctx) })
	}
	return g.Wait()
}

// takeFailures returns a summary of the failures since the last drain
func (c *core) takeFailures() error {
	return c.failures.take()
}
