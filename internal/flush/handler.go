package flush

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// ErrDeliveryFailed wraps every error a strict handler returns
var ErrDeliveryFailed = errors.New("flush delivery failed")

// Category names one of the five independent data streams
type Category string

const (
	CategoryBlocks   Category = "blocks"
	CategoryLogs     Category = "logs"
	CategoryEntered  Category = "entered"
	CategoryExited   Category = "exited"
	CategoryReturned Category = "returned"
)

// Categories lists every category in dispatch order
var Categories = []Category{
	CategoryBlocks,
	CategoryLogs,
	CategoryEntered,
	CategoryExited,
	CategoryReturned,
}

// String returns the category name
func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Timestamps maps a block to the moment of one lifecycle event
type Timestamps map[model.BlockID]time.Time

// Handler consumes batches. Every call receives a non-empty batch and may
// run concurrently with calls for other categories.
type Handler interface {
	FlushBlocks(ctx context.Context, blocks []model.Block) error
	FlushLogs(ctx context.Context, logs []model.BlockLog) error
	FlushEntered(ctx context.Context, entered Timestamps) error
	FlushExited(ctx context.Context, exited Timestamps) error
	FlushReturned(ctx context.Context, returned Timestamps) error
}

// Nop discards every batch
type Nop struct{}

// FlushBlocks discards blocks
func (Nop) FlushBlocks(context.Context, []model.Block) error { return nil }

// FlushLogs discards logs
func (Nop) FlushLogs(context.Context, []model.BlockLog) error { return nil }

// FlushEntered discards timestamps
func (Nop) FlushEntered(context.Context, Timestamps) error { return nil }

// FlushExited discards timestamps
func (Nop) FlushExited(context.Context, Timestamps) error { return nil }

// FlushReturned discards timestamps
func (Nop) FlushReturned(context.Context, Timestamps) error { return nil }

// FlushTimestamps routes a timestamp batch to the handler method for cat
func FlushTimestamps(ctx context.Context, h Handler, cat Category, ts Timestamps) error {
	switch cat {
	case CategoryEntered:
		return h.FlushEntered(ctx, ts)
	case CategoryExited:
		return h.FlushExited(ctx, ts)
	case CategoryReturned:
		return h.FlushReturned(ctx, ts)
	default:
		return errors.New("not a timestamp category: " + string(cat))
	}
}
