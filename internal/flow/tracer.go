package flow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/buffer"
	"github.com/GriffinCanCode/vfl/internal/domain/blockctx"
	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vfl/internal/shared/id"
)

// Tracer records blocks and logs into one buffer
type Tracer struct {
	buf             buffer.Buffer
	ids             *id.Generator
	now             func() time.Time
	logger          *zap.Logger
	metrics         *monitoring.Metrics
	flushOnRootExit bool
}

// Option configures a Tracer
type Option func(*Tracer)

// WithLogger sets the logger for missing-context and malformed-call reports
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records skipped calls
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithIDGenerator sets the generator for block and log ids
func WithIDGenerator(g *id.Generator) Option {
	return func(t *Tracer) {
		if g != nil {
			t.ids = g
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithFlushOnRootExit requests a flush each time a root block ends
func WithFlushOnRootExit(enabled bool) Option {
	return func(t *Tracer) { t.flushOnRootExit = enabled }
}

// New creates a tracer writing into buf
func New(buf buffer.Buffer, opts ...Option) *Tracer {
	t := &Tracer{
		buf:             buf,
		ids:             id.Default(),
		now:             time.Now,
		logger:          zap.NewNop(),
		flushOnRootExit: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Buffer returns the buffer the tracer writes into
func (t *Tracer) Buffer() buffer.Buffer {
	return t.buf
}

// ============================================================================
// Harness primitives
// ============================================================================

// OnBlockConstructed creates a block and queues it. An empty parent makes a root.
func (t *Tracer) OnBlockConstructed(name string, parent model.BlockID) model.Block {
	block := model.NewBlock(model.BlockID(t.ids.NewString()), name, parent, t.now())
	t.buf.PushBlock(block)
	return block
}

// OnBlockEntered records when a block started running
func (t *Tracer) OnBlockEntered(id model.BlockID, at time.Time) {
	t.buf.PushEntered(id, at)
}

// OnBlockExited records when a block stopped running
func (t *Tracer) OnBlockExited(id model.BlockID, at time.Time) {
	t.buf.PushExited(id, at)
}

// OnBlockReturned records when control returned to the block's caller
func (t *Tracer) OnBlockReturned(id model.BlockID, at time.Time) {
	t.buf.PushReturned(id, at)
}

// Current returns the block active on ctx's execution path
func (t *Tracer) Current(ctx context.Context) (model.Block, bool) {
	bc, ok := blockctx.Current(ctx)
	if !ok {
		return model.Block{}, false
	}
	return bc.Block(), true
}

// ============================================================================
// Logging
// ============================================================================

// LogEvent appends a plain log to the current block's chain and returns its id.
// Without an active block it warns and returns the empty id.
func (t *Tracer) LogEvent(ctx context.Context, message string, level model.Level) model.LogID {
	bc, ok := t.current(ctx, "log")
	if !ok {
		return ""
	}
	return t.appendLog(bc, model.NewPlainLog(model.LogID(t.ids.NewString()), bc.Block().ID, "", message, level, t.now()))
}

// Info logs at INFO
func (t *Tracer) Info(ctx context.Context, message string) model.LogID {
	return t.LogEvent(ctx, message, model.LevelInfo)
}

// Warn logs at WARN
func (t *Tracer) Warn(ctx context.Context, message string) model.LogID {
	return t.LogEvent(ctx, message, model.LevelWarn)
}

// Error logs at ERROR
func (t *Tracer) Error(ctx context.Context, message string) model.LogID {
	return t.LogEvent(ctx, message, model.LevelError)
}

// Infof logs a formatted message at INFO
func (t *Tracer) Infof(ctx context.Context, format string, args ...any) model.LogID {
	return t.LogEvent(ctx, fmt.Sprintf(format, args...), model.LevelInfo)
}

// Warnf logs a formatted message at WARN
func (t *Tracer) Warnf(ctx context.Context, format string, args ...any) model.LogID {
	return t.LogEvent(ctx, fmt.Sprintf(format, args...), model.LevelWarn)
}

// Errorf logs a formatted message at ERROR
func (t *Tracer) Errorf(ctx context.Context, format string, args ...any) model.LogID {
	return t.LogEvent(ctx, fmt.Sprintf(format, args...), model.LevelError)
}

// ============================================================================
// Internal helpers
// ============================================================================

// current resolves the active context or reports the miss
func (t *Tracer) current(ctx context.Context, operation string) (*blockctx.BlockContext, bool) {
	bc, ok := blockctx.Current(ctx)
	if !ok {
		t.miss(operation, "No active block, skipping trace call")
		return nil, false
	}
	return bc, true
}

// miss reports a trace call that had no block to attach to
func (t *Tracer) miss(operation, msg string, fields ...zap.Field) {
	t.logger.Warn(msg, append(fields, zap.String("operation", operation))...)
	t.metrics.RecordContextMiss(operation)
}

// reference appends a block-reference log to bc's chain
func (t *Tracer) reference(bc *blockctx.BlockContext, kind model.RefKind, ref model.BlockID, message string) {
	log, err := model.NewReferenceLog(model.LogID(t.ids.NewString()), bc.Block().ID, "", message, kind, ref, t.now())
	if err != nil {
		t.logger.Error("Malformed reference log", zap.String("block_id", bc.Block().ID.String()), zap.Error(err))
		return
	}
	t.appendLog(bc, log)
}

// errorLog records err on bc's chain
func (t *Tracer) errorLog(bc *blockctx.BlockContext, err error) {
	t.appendLog(bc, model.NewPlainLog(model.LogID(t.ids.NewString()), bc.Block().ID, "",
		"Exception: "+err.Error(), model.LevelError, t.now()))
}

// appendLog links log to the end of bc's chain and queues it
func (t *Tracer) appendLog(bc *blockctx.BlockContext, log model.BlockLog) model.LogID {
	log.ParentLogID = bc.Advance(log.ID)
	t.buf.PushLog(log)
	return log.ID
}
