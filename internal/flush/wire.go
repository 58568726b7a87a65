package flush

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
)

// WireBlock is the collector representation of a block
type WireBlock struct {
	ID            string  `json:"id" msgpack:"id"`
	ParentBlockID *string `json:"parentBlockId" msgpack:"parentBlockId"`
	Name          string  `json:"name" msgpack:"name"`
	CreatedAt     int64   `json:"createdAt" msgpack:"createdAt"`
}

// WireLog is the collector representation of a log
type WireLog struct {
	ID                string  `json:"id" msgpack:"id"`
	BlockID           string  `json:"blockId" msgpack:"blockId"`
	ParentLogID       *string `json:"parentLogId" msgpack:"parentLogId"`
	Message           *string `json:"message" msgpack:"message"`
	ReferencedBlockID *string `json:"referencedBlockId" msgpack:"referencedBlockId"`
	Timestamp         int64   `json:"timestamp" msgpack:"timestamp"`
	Type              string  `json:"type" msgpack:"type"`
}

// WireTimestamps maps block ids to epoch milliseconds
type WireTimestamps map[string]int64

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ============================================================================
// Encoding
// ============================================================================

// BlocksToWire converts blocks for transmission
func BlocksToWire(blocks []model.Block) []WireBlock {
	out := make([]WireBlock, len(blocks))
	for i, b := range blocks {
		out[i] = WireBlock{
			ID:            b.ID.String(),
			ParentBlockID: optional(b.ParentBlockID.String()),
			Name:          b.Name,
			CreatedAt:     b.CreatedAt.UnixMilli(),
		}
	}
	return out
}

// LogsToWire converts logs for transmission. An empty message or parent id
// is sent as null, so LogsFromWire cannot tell "" from an absent value: both
// come back as "".
func LogsToWire(logs []model.BlockLog) []WireLog {
	out := make([]WireLog, len(logs))
	for i, l := range logs {
		out[i] = WireLog{
			ID:                l.ID.String(),
			BlockID:           l.BlockID.String(),
			ParentLogID:       optional(l.ParentLogID.String()),
			Message:           optional(l.Message),
			ReferencedBlockID: optional(l.ReferencedBlockID().String()),
			Timestamp:         l.Timestamp.UnixMilli(),
			Type:              string(l.Type()),
		}
	}
	return out
}

// TimestampsToWire converts a lifecycle map for transmission
func TimestampsToWire(ts Timestamps) WireTimestamps {
	out := make(WireTimestamps, len(ts))
	for id, t := range ts {
		out[id.String()] = t.UnixMilli()
	}
	return out
}

// ============================================================================
// Decoding
// ============================================================================

// BlocksFromWire restores blocks
func BlocksFromWire(in []WireBlock) []model.Block {
	out := make([]model.Block, len(in))
	for i, b := range in {
		out[i] = model.NewBlock(
			model.BlockID(b.ID),
			b.Name,
			model.BlockID(deref(b.ParentBlockID)),
			time.UnixMilli(b.CreatedAt),
		)
	}
	return out
}

// LogsFromWire restores logs, rejecting entries that break the type invariant.
// A null message or parent id becomes "".
func LogsFromWire(in []WireLog) ([]model.BlockLog, error) {
	out := make([]model.BlockLog, len(in))
	for i, l := range in {
		event, err := model.EventOf(model.LogType(l.Type), model.BlockID(deref(l.ReferencedBlockID)))
		if err != nil {
			return nil, fmt.Errorf("log %s: %w", l.ID, err)
		}
		out[i] = model.BlockLog{
			ID:          model.LogID(l.ID),
			BlockID:     model.BlockID(l.BlockID),
			ParentLogID: model.LogID(deref(l.ParentLogID)),
			Message:     deref(l.Message),
			Timestamp:   time.UnixMilli(l.Timestamp),
			Event:       event,
		}
	}
	return out, nil
}

// TimestampsFromWire restores a lifecycle map
func TimestampsFromWire(in WireTimestamps) Timestamps {
	out := make(Timestamps, len(in))
	for id, ms := range in {
		out[model.BlockID(id)] = time.UnixMilli(ms)
	}
	return out
}
