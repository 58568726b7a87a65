package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flush"
)

var _ Buffer = (*Async)(nil)

// Async flushes on a size threshold and a timer, dispatching on a worker pool
type Async struct {
	*core
	pool *pool

	closeOnce sync.Once
	stop      chan struct{}
	loopDone  chan struct{}
}

// NewAsync creates an async buffer and starts its periodic flush
func NewAsync(handler flush.Handler, cfg Config) *Async {
	c := newCore(handler, cfg)
	b := &Async{
		core:     c,
		pool:     newPool(c.cfg.Workers),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go b.flusher()
	return b
}

// PushBlock queues a block
func (b *Async) PushBlock(block model.Block) {
	b.afterPush(b.pushBlock(block))
}

// PushLog queues a log
func (b *Async) PushLog(log model.BlockLog) {
	b.afterPush(b.pushLog(log))
}

// PushEntered queues an entered timestamp
func (b *Async) PushEntered(id model.BlockID, at time.Time) {
	b.afterPush(b.pushEntered(id, at))
}

// PushExited queues an exited timestamp
func (b *Async) PushExited(id model.BlockID, at time.Time) {
	b.afterPush(b.pushExited(id, at))
}

// PushReturned queues a returned timestamp
func (b *Async) PushReturned(id model.BlockID, at time.Time) {
	b.afterPush(b.pushReturned(id, at))
}

// afterPush runs outside the lock
func (b *Async) afterPush(total int64) {
	if total >= int64(b.cfg.Threshold) {
		b.flushAsync("threshold")
	}
}

// RequestFlush dispatches whatever is pending without waiting
func (b *Async) RequestFlush() {
	b.flushAsync("requested")
}

// flusher runs in a goroutine and periodically flushes
func (b *Async) flusher() {
	defer close(b.loopDone)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushAsync("periodic")
		case <-b.stop:
			return
		}
	}
}

// flushAsync takes a snapshot and submits its calls to the pool.
// A concurrent trigger simply finds the buffer empty.
func (b *Async) flushAsync(trigger string) {
	snap := b.snapshotAndClear()
	if snap.IsEmpty() {
		return
	}

	b.logger.Debug("Dispatching snapshot",
		zap.String("trigger", trigger),
		zap.Int("count", snap.Len()))

	ctx := context.Background()
	for _, call := range b.calls(snap) {
		run := func() { _ = call(ctx) }
		if b.pool.trySubmit(run) {
			continue
		}
		// Saturated: deliver here rather than drop
		b.metrics.IncSyncFallback()
		b.logger.Warn("Flush worker pool saturated, dispatching on caller",
			zap.String("trigger", trigger))
		b.pool.runInline(run)
	}
}

// Flush drains the buffer. The final snapshot is dispatched on a tracked
// goroutine, then Flush waits for every in-flight call up to the drain timeout.
// It returns ErrDrainTimeout on timeout, otherwise the joined failures of
// strict handlers since the previous drain.
func (b *Async) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DrainTimeout)
	defer cancel()

	if snap := b.snapshotAndClear(); !snap.IsEmpty() {
		b.pool.track(func() {
			_ = b.deliver(context.Background(), snap)
		})
	}

	if err := b.pool.inflight.wait(ctx); err != nil {
		remaining := b.pool.inflight.count()
		b.logger.Error("Drain timed out, dispatches still running",
			zap.Duration("timeout", b.cfg.DrainTimeout),
			zap.Int("in_flight", remaining),
			zap.Error(err))
		b.metrics.RecordDrain("timeout")
		return fmt.Errorf("%w: %d dispatches still running: %w", ErrDrainTimeout, remaining, err)
	}

	if err := b.takeFailures(); err != nil {
		b.metrics.RecordDrain("error")
		return err
	}
	b.metrics.RecordDrain("ok")
	return nil
}

// Close stops the periodic flush and drains. A second Close returns ErrClosed.
func (b *Async) Close(ctx context.Context) error {
	closed := false
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.loopDone
		closed = true
	})
	if !closed {
		return ErrClosed
	}
	return b.Flush(ctx)
}

// Stats reports the current buffer state
func (b *Async) Stats() Stats {
	closed := false
	select {
	case <-b.stop:
		closed = true
	default:
	}
	return Stats{
		Mode:      "async",
		Pending:   b.pending(),
		InFlight:  b.pool.inflight.count(),
		Threshold: b.cfg.Threshold,
		Closed:    closed,
	}
}
