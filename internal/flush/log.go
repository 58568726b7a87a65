package flush

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// LogHandler writes batches to a zap logger, one entry per item
type LogHandler struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogHandler creates a handler logging at the given level
func NewLogHandler(logger *zap.Logger, level zapcore.Level) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger.Named("vfl"), level: level}
}

// FlushBlocks logs blocks
func (h *LogHandler) FlushBlocks(_ context.Context, blocks []model.Block) error {
	for _, b := range blocks {
		h.logger.Log(h.level, "block",
			zap.String("id", b.ID.String()),
			zap.String("parent_block_id", b.ParentBlockID.String()),
			zap.String("name", b.Name),
			zap.Time("created_at", b.CreatedAt))
	}
	return nil
}

// FlushLogs logs trace logs
func (h *LogHandler) FlushLogs(_ context.Context, logs []model.BlockLog) error {
	for _, l := range logs {
		fields := []zap.Field{
			zap.String("id", l.ID.String()),
			zap.String("block_id", l.BlockID.String()),
			zap.String("parent_log_id", l.ParentLogID.String()),
			zap.String("type", string(l.Type())),
			zap.String("message", l.Message),
			zap.Time("timestamp", l.Timestamp),
		}
		if ref := l.ReferencedBlockID(); !ref.IsZero() {
			fields = append(fields, zap.String("referenced_block_id", ref.String()))
		}
		h.logger.Log(h.level, "log", fields...)
	}
	return nil
}

// FlushEntered logs entered timestamps
func (h *LogHandler) FlushEntered(_ context.Context, entered Timestamps) error {
	h.timestamps(CategoryEntered, entered)
	return nil
}

// FlushExited logs exited timestamps
func (h *LogHandler) FlushExited(_ context.Context, exited Timestamps) error {
	h.timestamps(CategoryExited, exited)
	return nil
}

// FlushReturned logs returned timestamps
func (h *LogHandler) FlushReturned(_ context.Context, returned Timestamps) error {
	h.timestamps(CategoryReturned, returned)
	return nil
}

func (h *LogHandler) timestamps(cat Category, ts Timestamps) {
	for id, t := range ts {
		h.logger.Log(h.level, "lifecycle",
			zap.String("event", cat.String()),
			zap.String("block_id", id.String()),
			zap.Time("at", t))
	}
}
