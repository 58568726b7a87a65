package flush

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// Recorder keeps every batch in memory. Tests and the demo command use it to
// inspect what a pipeline delivered.
type Recorder struct {
	// Hook runs before a batch is recorded; a non-nil error rejects the batch
	Hook func(ctx context.Context, cat Category) error

	mu       sync.Mutex
	blocks   []model.Block
	logs     []model.BlockLog
	entered  Timestamps
	exited   Timestamps
	returned Timestamps
	calls    map[Category]int
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{
		entered:  make(Timestamps),
		exited:   make(Timestamps),
		returned: make(Timestamps),
		calls:    make(map[Category]int),
	}
}

func (r *Recorder) hook(ctx context.Context, cat Category) error {
	if r.Hook == nil {
		return nil
	}
	return r.Hook(ctx, cat)
}

// FlushBlocks records blocks
func (r *Recorder) FlushBlocks(ctx context.Context, blocks []model.Block) error {
	if err := r.hook(ctx, CategoryBlocks); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, blocks...)
	r.calls[CategoryBlocks]++
	return nil
}

// FlushLogs records logs
func (r *Recorder) FlushLogs(ctx context.Context, logs []model.BlockLog) error {
	if err := r.hook(ctx, CategoryLogs); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, logs...)
	r.calls[CategoryLogs]++
	return nil
}

// FlushEntered records entered timestamps
func (r *Recorder) FlushEntered(ctx context.Context, entered Timestamps) error {
	return r.recordTimestamps(ctx, CategoryEntered, r.entered, entered)
}

// FlushExited records exited timestamps
func (r *Recorder) FlushExited(ctx context.Context, exited Timestamps) error {
	return r.recordTimestamps(ctx, CategoryExited, r.exited, exited)
}

// FlushReturned records returned timestamps
func (r *Recorder) FlushReturned(ctx context.Context, returned Timestamps) error {
	return r.recordTimestamps(ctx, CategoryReturned, r.returned, returned)
}

func (r *Recorder) recordTimestamps(ctx context.Context, cat Category, dst, src Timestamps) error {
	if err := r.hook(ctx, cat); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range src {
		dst[id] = t
	}
	r.calls[cat]++
	return nil
}

// Blocks returns a copy of every recorded block
func (r *Recorder) Blocks() []model.Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Block(nil), r.blocks...)
}

// Logs returns a copy of every recorded log
func (r *Recorder) Logs() []model.BlockLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BlockLog(nil), r.logs...)
}

// Entered returns a copy of the recorded entered timestamps
func (r *Recorder) Entered() Timestamps { return r.copyOf(r.entered) }

// Exited returns a copy of the recorded exited timestamps
func (r *Recorder) Exited() Timestamps { return r.copyOf(r.exited) }

// Returned returns a copy of the recorded returned timestamps
func (r *Recorder) Returned() Timestamps { return r.copyOf(r.returned) }

func (r *Recorder) copyOf(src Timestamps) Timestamps {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Timestamps, len(src))
	for id, t := range src {
		out[id] = t
	}
	return out
}

// Calls returns how many batches a category received
func (r *Recorder) Calls(cat Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[cat]
}

// Items returns the total number of recorded items
func (r *Recorder) Items() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks) + len(r.logs) + len(r.entered) + len(r.exited) + len(r.returned)
}

// Block returns the recorded block with the given id
func (r *Recorder) Block(id model.BlockID) (model.Block, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.blocks {
		if b.ID == id {
			return b, true
		}
	}
	return model.Block{}, false
}

// LogsOf returns the recorded logs owned by a block, in arrival order
func (r *Recorder) LogsOf(id model.BlockID) []model.BlockLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BlockLog
	for _, l := range r.logs {
		if l.BlockID == id {
			out = append(out, l)
		}
	}
	return out
}
