package buffer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flush"
)

var _ Buffer = (*Sync)(nil)

// Sync delivers on the pushing goroutine once the threshold is reached.
// That push blocks on the handler.
type Sync struct {
	*core
	closed atomic.Bool
}

// NewSync creates a synchronous buffer
func NewSync(handler flush.Handler, cfg Config) *Sync {
	return &Sync{core: newCore(handler, cfg)}
}

// PushBlock queues a block
func (b *Sync) PushBlock(block model.Block) {
	b.afterPush(b.pushBlock(block))
}

// PushLog queues a log
func (b *Sync) PushLog(log model.BlockLog) {
	b.afterPush(b.pushLog(log))
}

// PushEntered queues an entered timestamp
func (b *Sync) PushEntered(id model.BlockID, at time.Time) {
	b.afterPush(b.pushEntered(id, at))
}

// PushExited queues an exited timestamp
func (b *Sync) PushExited(id model.BlockID, at time.Time) {
	b.afterPush(b.pushExited(id, at))
}

// PushReturned queues a returned timestamp
func (b *Sync) PushReturned(id model.BlockID, at time.Time) {
	b.afterPush(b.pushReturned(id, at))
}

func (b *Sync) afterPush(total int64) {
	if total >= int64(b.cfg.Threshold) {
		b.RequestFlush()
	}
}

// RequestFlush delivers whatever is pending on the caller
func (b *Sync) RequestFlush() {
	snap := b.snapshotAndClear()
	if snap.IsEmpty() {
		return
	}
	// Failures are logged by the call wrapper and surface from the next Flush
	_ = b.deliver(context.Background(), snap)
}

// Flush delivers what is pending and waits for it, bounded by the drain timeout
func (b *Sync) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DrainTimeout)
	defer cancel()

	if snap := b.snapshotAndClear(); !snap.IsEmpty() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = b.deliver(ctx, snap)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Error("Drain timed out, delivery still running",
				zap.Duration("timeout", b.cfg.DrainTimeout),
				zap.Error(ctx.Err()))
			b.metrics.RecordDrain("timeout")
			return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
		}
	}

	if err := b.takeFailures(); err != nil {
		b.metrics.RecordDrain("error")
		return err
	}
	b.metrics.RecordDrain("ok")
	return nil
}

// Close drains; a second Close returns ErrClosed
func (b *Sync) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return b.Flush(ctx)
}

// Stats reports the current buffer state
func (b *Sync) Stats() Stats {
	return Stats{
		Mode:      "sync",
		Pending:   b.pending(),
		Threshold: b.cfg.Threshold,
		Closed:    b.closed.Load(),
	}
}
