package flush

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// Multi delivers every batch to all of its handlers in parallel.
// Handlers must not mutate the batch they receive.
type Multi []Handler

// FlushBlocks fans blocks out
func (m Multi) FlushBlocks(ctx context.Context, blocks []model.Block) error {
	return m.each(func(h Handler) error { return h.FlushBlocks(ctx, blocks) })
}

// FlushLogs fans logs out
func (m Multi) FlushLogs(ctx context.Context, logs []model.BlockLog) error {
	return m.each(func(h Handler) error { return h.FlushLogs(ctx, logs) })
}

// FlushEntered fans entered timestamps out
func (m Multi) FlushEntered(ctx context.Context, entered Timestamps) error {
	return m.each(func(h Handler) error { return h.FlushEntered(ctx, entered) })
}

// FlushExited fans exited timestamps out
func (m Multi) FlushExited(ctx context.Context, exited Timestamps) error {
	return m.each(func(h Handler) error { return h.FlushExited(ctx, exited) })
}

// FlushReturned fans returned timestamps out
func (m Multi) FlushReturned(ctx context.Context, returned Timestamps) error {
	return m.each(func(h Handler) error { return h.FlushReturned(ctx, returned) })
}

// each runs fn for every handler; one failing handler does not cancel the others
func (m Multi) each(fn func(Handler) error) error {
	var g errgroup.Group
	for _, h := range m {
		g.Go(func() error { return fn(h) })
	}
	return g.Wait()
}
